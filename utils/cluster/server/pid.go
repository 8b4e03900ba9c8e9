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
	"context"
	"regexp"
	"strconv"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/utils/executor"
	"go.uber.org/zap"
)

var pidPattern = regexp.MustCompile(`PID is (\d+)`)

var errPidNotReported = errors.New("pid not reported yet")

// ScanPid returns the first pid reported in lines
func ScanPid(lines []string) (int, bool) {
	for _, line := range lines {
		m := pidPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(m[1])
		if err != nil || pid <= 0 {
			continue
		}
		return pid, true
	}
	return 0, false
}

// discoverPid polls the output of proc until the server reports its pid, the run ends
// or ctx is cancelled
func (s *Supervisor) discoverPid(ctx context.Context, gen uint64, proc *executor.Process) {
	cursor := 0
	op := func() (int, error) {
		lines, next := proc.LinesSince(cursor)
		cursor = next
		if pid, ok := ScanPid(lines); ok {
			return pid, nil
		}
		if proc.Exited() {
			return 0, backoff.Permanent(errors.New("server exited before reporting its pid"))
		}
		return 0, errPidNotReported
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.PidPollInterval), ctx)
	pid, err := backoff.RetryWithData(op, b)
	if err != nil {
		s.log.Debug("pid discovery ended", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) || s.State() == StateStopped {
		return
	}
	s.pid.Store(int64(pid))
	s.log.Info("server pid discovered", zap.Int("pid", pid))
	s.emitLocked(Event{Key: s.key, Kind: EventPid, Pid: pid})
	s.markRunningLocked()
}
