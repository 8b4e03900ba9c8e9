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
	"fmt"
	"io"
	"sync"
)

// Sink is an append-only ordered buffer of console lines, safe for one writer and many
// readers. A positive maxLines keeps only the newest lines and counts what was dropped.
type Sink struct {
	name     string
	maxLines int

	mu        sync.RWMutex
	lines     []string
	truncated int
	mirrors   []io.Writer
}

func NewSink(name string, maxLines int) *Sink {
	return &Sink{name: name, maxLines: maxLines}
}

func (s *Sink) Name() string {
	return s.name
}

// AddMirror copies every line appended from now on to w
func (s *Sink) AddMirror(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirrors = append(s.mirrors, w)
}

// RemoveMirror detaches w, mirrors are compared by identity
func (s *Sink) RemoveMirror(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.mirrors {
		if m == w {
			s.mirrors = append(s.mirrors[:i], s.mirrors[i+1:]...)
			return
		}
	}
}

func (s *Sink) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, lines...)
	if s.maxLines > 0 && len(s.lines) > s.maxLines {
		drop := len(s.lines) - s.maxLines
		s.truncated += drop
		// copy so the dropped prefix can be collected
		s.lines = append([]string(nil), s.lines[drop:]...)
	}
	for _, w := range s.mirrors {
		for _, line := range lines {
			// mirror failures must not stop the console
			_, _ = io.WriteString(w, line+"\n")
		}
	}
}

// Len returns the number of retained lines
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Total returns every line ever appended, including truncated ones
func (s *Sink) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.truncated + len(s.lines)
}

func (s *Sink) Truncated() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.truncated
}

// Snapshot returns the retained lines, led by a marker when older lines were dropped
func (s *Sink) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.lines)+1)
	if s.truncated > 0 {
		out = append(out, TruncationMarker(s.truncated))
	}
	return append(out, s.lines...)
}

// Tail returns at most the last n retained lines, n <= 0 returns all of them
func (s *Sink) Tail(n int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.lines) {
		start = len(s.lines) - n
	}
	out := make([]string, len(s.lines)-start)
	copy(out, s.lines[start:])
	return out
}

func TruncationMarker(n int) string {
	return fmt.Sprintf("[... %d lines truncated ...]", n)
}
