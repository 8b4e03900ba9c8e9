/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package console

import (
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mattn/go-runewidth"
	"github.com/pingcap/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/configutil"
)

// MainConsole receives the output of cluster-wide tool commands
const MainConsole = "main"

// Consoles owns the main console and one console per server, and tracks which one is
// currently shown
type Consoles struct {
	maxLines int
	dir      string

	mu     sync.RWMutex
	sinks  map[string]*Sink
	files  map[string]*lumberjack.Logger
	active string

	follow      io.Writer
	followMu    *sync.Mutex
	followWidth int
	followed    map[string]io.Writer
}

// NewConsoles creates the console set, a non-empty dir mirrors each console into
// <dir>/<name>.log with size rotation
func NewConsoles(maxLines int, dir string) *Consoles {
	c := &Consoles{
		maxLines: maxLines,
		dir:      dir,
		sinks:    make(map[string]*Sink),
		files:    make(map[string]*lumberjack.Logger),
		active:   MainConsole,
		followed: make(map[string]io.Writer),
	}
	c.Get(MainConsole)
	return c
}

func (c *Consoles) Main() *Sink {
	return c.Get(MainConsole)
}

// Get returns the console of name, creating it on first use
func (c *Consoles) Get(name string) *Sink {
	c.mu.RLock()
	s, ok := c.sinks[name]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.sinks[name]; ok {
		return s
	}
	s = NewSink(name, c.maxLines)
	if c.dir != "" {
		f := logger.NewRotateWriter(filepath.Join(c.dir, name+".log"), configutil.DefaultConsoleMaxSize, 0, configutil.DefaultConsoleMaxBackups)
		c.files[name] = f
		s.AddMirror(f)
	}
	if c.follow != nil {
		c.attachFollowLocked(s)
	}
	c.sinks[name] = s
	return s
}

func (c *Consoles) Lookup(name string) (*Sink, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sinks[name]
	return s, ok
}

// Names returns the console names, main first and the rest sorted
func (c *Consoles) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sinks))
	for name := range c.sinks {
		if name != MainConsole {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{MainConsole}, names...)
}

func (c *Consoles) SetActive(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = name
}

func (c *Consoles) Active() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Follow mirrors every console, present and future, into w with a padded name prefix.
// width is the minimum prefix width so that columns line up across servers.
func (c *Consoles) Follow(w io.Writer, width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follow = w
	c.followMu = &sync.Mutex{}
	c.followWidth = width
	for _, s := range c.sinks {
		c.attachFollowLocked(s)
	}
}

// Unfollow detaches the writer given to Follow
func (c *Consoles) Unfollow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, w := range c.followed {
		if s, ok := c.sinks[name]; ok {
			s.RemoveMirror(w)
		}
	}
	c.followed = make(map[string]io.Writer)
	c.follow = nil
}

func (c *Consoles) attachFollowLocked(s *Sink) {
	if _, ok := c.followed[s.Name()]; ok {
		return
	}
	w := &prefixWriter{
		prefix: runewidth.FillRight(s.Name(), c.followWidth) + " | ",
		w:      c.follow,
		mu:     c.followMu,
	}
	c.followed[s.Name()] = w
	s.AddMirror(w)
}

// Close closes the console files
func (c *Consoles) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for name, f := range c.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "close console file of [%s]", name)
		}
	}
	c.files = make(map[string]*lumberjack.Logger)
	return firstErr
}

// prefixWriter tags each line with its console name, all writers of one Follow share mu
type prefixWriter struct {
	prefix string
	w      io.Writer
	mu     *sync.Mutex
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, p.prefix); err != nil {
		return 0, err
	}
	return p.w.Write(b)
}
