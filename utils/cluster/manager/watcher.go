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
package manager

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/utils/cluster"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// ReloadFunc receives the outcome of a topology reload
type ReloadFunc func(res *cluster.GenerateResult, err error)

// TopologyWatcher reloads the topology file when it changes and regenerates the stripe
// config files with the session overwrite policy. Running servers are left untouched.
type TopologyWatcher struct {
	ctl    *Controller
	path   string
	watch  *fsnotify.Watcher
	notify ReloadFunc

	done chan struct{}
	wg   sync.WaitGroup
}

// WatchTopology watches the directory of path so that editors replacing the file
// through a rename are seen too
func (c *Controller) WatchTopology(path string, notify ReloadFunc) (*TopologyWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Annotatef(err, "resolve topology file [%s]", path)
	}
	watch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Annotate(err, "create topology watcher")
	}
	if err = watch.Add(filepath.Dir(abs)); err != nil {
		watch.Close()
		return nil, errors.Annotatef(err, "watch topology file [%s]", abs)
	}
	w := &TopologyWatcher{
		ctl:    c,
		path:   abs,
		watch:  watch,
		notify: notify,
		done:   make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *TopologyWatcher) loop() {
	defer w.wg.Done()
	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watch.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// editors write in several steps, reload once they are done
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			trigger = timer.C
		case <-trigger:
			trigger = nil
			w.reload()
		case err, ok := <-w.watch.Errors:
			if !ok {
				return
			}
			w.ctl.Logger.Warn("topology watcher error", zap.Error(err))
		}
	}
}

// Reload parses the topology file, replaces the session topology and regenerates
func (w *TopologyWatcher) reload() {
	res, err := w.ctl.ReloadTopology(w.path)
	if err != nil {
		w.ctl.Logger.Warn("topology reload failed, keeping the previous topology", zap.String("file", w.path), zap.Error(err))
	} else {
		w.ctl.Logger.Info("topology reloaded", zap.String("file", w.path))
	}
	if w.notify != nil {
		w.notify(res, err)
	}
}

// Close stops watching
func (w *TopologyWatcher) Close() error {
	close(w.done)
	err := w.watch.Close()
	w.wg.Wait()
	return err
}

// ReloadTopology reads path, validates it, makes it the session topology and
// regenerates the stripe config files with the session overwrite policy
func (c *Controller) ReloadTopology(path string) (*cluster.GenerateResult, error) {
	topo, err := cluster.ParseTopologyYaml(path)
	if err != nil {
		return nil, err
	}
	if err = c.SetTopology(topo); err != nil {
		return nil, err
	}
	return c.Generate(c.ForceOverwrite())
}
