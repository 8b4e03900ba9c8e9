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
package executor

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/wentaojin/pounder/logger"
)

// DefaultDrainTimeout bounds how long the output reader may go without a new line once
// the process exited, a detached grandchild can hold the pipe open forever
const DefaultDrainTimeout = 2 * time.Second

// Local spawns commands on the local host through the platform shell
type Local struct {
	// Env is appended to the inherited environment
	Env          []string
	DrainTimeout time.Duration
	Logger       *zap.Logger
}

// Process is one running invocation started by Local.Run
type Process struct {
	ID      string
	Command string
	WorkDir string
	Started time.Time

	cmd *exec.Cmd
	pid *atomic.Int64

	mu    sync.RWMutex
	lines []string

	done    chan struct{}
	exitErr error
}

// Run starts cmdline in workDir and returns without waiting for it. Every line of the
// combined stdout and stderr is appended to the process history and handed to onLine,
// in the order produced. onComplete is called exactly once after the process exited
// and the last onLine returned. A command that cannot be launched returns a *SpawnError
// and onComplete is never called. ctx only bounds the spawn, cancelling it later does
// not touch the running process.
func (l *Local) Run(ctx context.Context, workDir, cmdline string, onLine func(string), onComplete func(error)) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Command: cmdline, WorkDir: workDir, Err: err}
	}
	fi, err := os.Stat(workDir)
	if err != nil {
		return nil, &SpawnError{Command: cmdline, WorkDir: workDir, Err: err}
	}
	if !fi.IsDir() {
		return nil, &SpawnError{Command: cmdline, WorkDir: workDir, Err: errors.Errorf("%s is not a directory", workDir)}
	}
	if err = checkProgram(workDir, cmdline); err != nil {
		return nil, &SpawnError{Command: cmdline, WorkDir: workDir, Err: err}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Command: cmdline, WorkDir: workDir, Err: err}
	}

	cmd := shellCommand(cmdline)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	setProcessGroup(cmd)

	if err = cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, &SpawnError{Command: cmdline, WorkDir: workDir, Err: err}
	}
	// the child owns the write end now, EOF arrives once every writer is gone
	pw.Close()

	p := &Process{
		ID:      uuid.NewString(),
		Command: cmdline,
		WorkDir: workDir,
		Started: time.Now(),
		cmd:     cmd,
		pid:     atomic.NewInt64(int64(cmd.Process.Pid)),
		done:    make(chan struct{}),
	}
	log := l.logger().With(zap.String("process", p.ID), zap.Int("pid", cmd.Process.Pid))
	log.Debug("process spawned", zap.String("command", cmdline), zap.String("work-dir", workDir))

	readerDone := make(chan struct{})
	progress := atomic.NewUint64(0)
	go func() {
		defer close(readerDone)
		p.readLines(pr, progress, onLine)
	}()

	go func() {
		waitErr := cmd.Wait()
		if !drain(readerDone, progress, l.drainTimeout()) {
			log.Warn("process output still open after exit, closing reader")
			pr.Close()
			<-readerDone
		}
		pr.Close()

		p.mu.Lock()
		p.exitErr = waitErr
		p.mu.Unlock()
		log.Debug("process exited", zap.Error(waitErr))

		if onComplete != nil {
			onComplete(waitErr)
		}
		close(p.done)
	}()
	return p, nil
}

func (l *Local) logger() *zap.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return logger.GetRootLogger()
}

func (l *Local) drainTimeout() time.Duration {
	if l.DrainTimeout > 0 {
		return l.DrainTimeout
	}
	return DefaultDrainTimeout
}

// drain waits for the reader to reach EOF and reports false once it went idle longer
// than timeout, a reader still handing out lines is never cut
func drain(readerDone <-chan struct{}, progress *atomic.Uint64, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	seen := progress.Load()
	for {
		select {
		case <-readerDone:
			return true
		case <-timer.C:
			n := progress.Load()
			if n == seen {
				return false
			}
			seen = n
			timer.Reset(timeout)
		}
	}
}

func (p *Process) readLines(r io.Reader, progress *atomic.Uint64, onLine func(string)) {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			p.mu.Lock()
			p.lines = append(p.lines, line)
			p.mu.Unlock()
			progress.Inc()
			if onLine != nil {
				onLine(line)
			}
			progress.Inc()
		}
		if err != nil {
			return
		}
	}
}

// Pid returns the os pid of the spawned shell
func (p *Process) Pid() int {
	return int(p.pid.Load())
}

// Lines returns a copy of every line produced so far
func (p *Process) Lines() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// LinesSince returns the lines after cursor and the new cursor
func (p *Process) LinesSince(cursor int) ([]string, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cursor < 0 {
		cursor = 0
	}
	if cursor >= len(p.lines) {
		return nil, len(p.lines)
	}
	out := make([]string, len(p.lines)-cursor)
	copy(out, p.lines[cursor:])
	return out, len(p.lines)
}

// LineCount returns the number of lines produced so far
func (p *Process) LineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lines)
}

// Done is closed after onComplete returned
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process has completed
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error cmd.Wait returned, nil while running or on a zero exit
func (p *Process) ExitErr() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Wait blocks until the process completed or ctx is done
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.ExitErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate asks the process group to exit
func (p *Process) Terminate() error {
	if p.Exited() {
		return nil
	}
	return terminate(p.cmd)
}

// Kill forcibly stops the process group
func (p *Process) Kill() error {
	if p.Exited() {
		return nil
	}
	return kill(p.cmd)
}
