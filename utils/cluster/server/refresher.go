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
package server

import (
	"fmt"
	"time"

	"github.com/pingcap/errors"
	"github.com/robfig/cron/v3"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/configutil"
	"go.uber.org/zap"
)

// Refresher periodically flushes the output of every registered server into its
// console. Runs never overlap, a slow flush skips the next tick.
type Refresher struct {
	registry *Registry
	interval time.Duration
	cron     *cron.Cron
	log      *zap.Logger
	entry    cron.EntryID
}

func NewRefresher(registry *Registry, interval time.Duration, l *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = configutil.DefaultConsoleRefreshInterval
	}
	if l == nil {
		l = logger.GetRootLogger()
	}
	cl := logger.NewCronLogger(l)
	return &Refresher{
		registry: registry,
		interval: interval,
		log:      l,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
}

// Start schedules the refresh job
func (r *Refresher) Start() error {
	id, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.interval), func() {
		r.RefreshAll()
	})
	if err != nil {
		return errors.Annotatef(err, "schedule console refresh every %s", r.interval)
	}
	r.entry = id
	r.cron.Start()
	r.log.Debug("console refresher started", zap.Duration("interval", r.interval))
	return nil
}

// RefreshAll flushes every registered server once and returns the number of lines moved
func (r *Refresher) RefreshAll() int {
	total := 0
	r.registry.Range(func(_ cluster.ServerKey, sup *Supervisor) bool {
		total += sup.RefreshConsole()
		return true
	})
	return total
}

// Stop removes the job and waits for a running flush
func (r *Refresher) Stop() {
	r.cron.Remove(r.entry)
	<-r.cron.Stop().Done()
}
