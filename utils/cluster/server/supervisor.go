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
	"sync"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/configutil"
	"github.com/wentaojin/pounder/utils/console"
	"github.com/wentaojin/pounder/utils/executor"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	ErrInvalidState = errors.New("invalid server state")
	ErrStartTimeout = errors.New("server did not report progress before the start timeout")

	serverStatePattern = regexp.MustCompile(`Moved to State\[ ?([A-Z-]+) ?\]`)
)

// Runner spawns a command line and streams its output, executor.Local implements it
type Runner interface {
	Run(ctx context.Context, workDir, cmdline string, onLine func(string), onComplete func(error)) (*executor.Process, error)
}

// ArtifactResolver returns the configuration file of a 1-based stripe index,
// generating it when it does not exist yet
type ArtifactResolver interface {
	ResolveArtifact(stripe int) (string, error)
}

type ArtifactResolverFunc func(stripe int) (string, error)

func (f ArtifactResolverFunc) ResolveArtifact(stripe int) (string, error) {
	return f(stripe)
}

// Config carries the collaborators and timeouts of a supervisor
type Config struct {
	Kit      *cluster.Kit
	Runner   Runner
	Resolver ArtifactResolver
	Bus      EventBus.Bus
	// Dispatcher orders the events per slot, supervisors of one session share it.
	// A supervisor without one gets its own, publishing on Bus.
	Dispatcher *Dispatcher
	Sink       *console.Sink
	Logger     *zap.Logger
	// ClientSecurityRootDir adds -srd to the launch command when set
	ClientSecurityRootDir string

	PidPollInterval time.Duration
	StartTimeout    time.Duration
	StopTimeout     time.Duration
	KillTimeout     time.Duration

	// OnStopped runs once per run after the slot reached STOPPED
	OnStopped func(key cluster.ServerKey, sup *Supervisor)
}

// Supervisor drives the lifecycle of one server slot:
// STOPPED -> STARTING -> RUNNING -> STOPPING -> STOPPED
type Supervisor struct {
	inst *cluster.Instance
	key  cluster.ServerKey
	cfg  Config
	log  *zap.Logger

	// opMu serialises Start and Stop
	opMu sync.Mutex

	state       *atomic.Int32
	pid         *atomic.Int64
	serverState *atomic.String
	generation  *atomic.Uint64

	// mu guards the current run and orders state changes with their events
	mu      sync.Mutex
	proc    *executor.Process
	cancel  context.CancelFunc
	exited  chan struct{}
	lastErr error

	flushMu sync.Mutex
	cursor  int
}

func NewSupervisor(inst *cluster.Instance, cfg Config) *Supervisor {
	if cfg.Runner == nil {
		cfg.Runner = &executor.Local{Logger: cfg.Logger}
	}
	if cfg.PidPollInterval <= 0 {
		cfg.PidPollInterval = configutil.DefaultPidPollInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = configutil.DefaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = configutil.DefaultStopTimeout
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = configutil.DefaultKillTimeout
	}
	l := cfg.Logger
	if l == nil {
		l = logger.GetRootLogger()
	}
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = NewDispatcher(cfg.Bus, l)
	}

	exited := make(chan struct{})
	close(exited)
	return &Supervisor{
		inst:        inst,
		key:         inst.Key(),
		cfg:         cfg,
		log:         l.With(zap.String("server", inst.Key().String())),
		state:       atomic.NewInt32(int32(StateStopped)),
		pid:         atomic.NewInt64(0),
		serverState: atomic.NewString(""),
		generation:  atomic.NewUint64(0),
		exited:      exited,
	}
}

func (s *Supervisor) Key() cluster.ServerKey {
	return s.key
}

func (s *Supervisor) Instance() *cluster.Instance {
	return s.inst
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Pid returns the server pid reported in its output, 0 until discovered
func (s *Supervisor) Pid() int {
	return int(s.pid.Load())
}

// ServerState returns the last role the server reported, such as ACTIVE-COORDINATOR
func (s *Supervisor) ServerState() string {
	return s.serverState.Load()
}

// LastError returns the exit error of the last finished run
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Process returns the process of the current or last run
func (s *Supervisor) Process() *executor.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// LaunchCommand builds the server start command line for artifact
func (s *Supervisor) LaunchCommand(artifact string) string {
	return LaunchCommand(s.cfg.Kit, artifact, s.inst.Name, s.cfg.ClientSecurityRootDir)
}

// LaunchCommand builds `<kit>/server/bin/start-tc-server -f <artifact> -n <name> [-srd <dir>]`
func LaunchCommand(kit *cluster.Kit, artifact, name, securityRootDir string) string {
	args := []string{kit.ServerScript(), "-f", artifact, "-n", name}
	if securityRootDir != "" {
		args = append(args, "-srd", securityRootDir)
	}
	return executor.JoinArgs(args...)
}

// Start launches the server, it is only valid from STOPPED. The artifact of the stripe
// is resolved first and generated on demand. Start returns once the process is
// spawned, progress is reported through events.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return errors.Annotatef(ErrInvalidState, "cannot start server [%s] in state %s", s.key, s.State())
	}
	gen := s.generation.Inc()
	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancel = cancel
	s.exited = make(chan struct{})
	s.proc = nil
	s.lastErr = nil
	s.pid.Store(0)
	s.serverState.Store("")
	s.emitLocked(Event{Key: s.key, Kind: EventState, State: StateStarting})
	s.mu.Unlock()

	s.flushMu.Lock()
	s.cursor = 0
	s.flushMu.Unlock()

	artifact, err := s.cfg.Resolver.ResolveArtifact(s.inst.StripeIndex)
	if err != nil {
		err = errors.Annotatef(err, "resolve config of %s", s.inst.StripeName())
		s.failStart(err)
		return err
	}

	cmdline := s.LaunchCommand(artifact)
	s.log.Info("starting server", zap.String("command", cmdline))
	proc, err := s.cfg.Runner.Run(ctx, s.cfg.Kit.Path, cmdline,
		func(line string) { s.handleLine(gen, line) },
		func(exitErr error) { s.handleExit(gen, exitErr) })
	if err != nil {
		err = errors.Annotatef(err, "start server [%s]", s.key)
		s.failStart(err)
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	go s.discoverPid(runCtx, gen, proc)
	go s.watchStart(runCtx, gen)
	return nil
}

// failStart ends a run that never spawned a process
func (s *Supervisor) failStart(err error) {
	s.log.Error("server start failed", zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.state.Store(int32(StateStopped))
	s.emitLocked(Event{Key: s.key, Kind: EventFailed, Err: err})
	s.emitLocked(Event{Key: s.key, Kind: EventState, State: StateStopped})
	s.endRunLocked()
}

func (s *Supervisor) endRunLocked() {
	s.cancel()
	close(s.exited)
}

// emitLocked queues e for the subscribers, s.mu orders it with the state change it reports
func (s *Supervisor) emitLocked(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.cfg.Dispatcher.push(e)
}

// Stop asks a STARTING or RUNNING server to exit and returns without waiting. The
// process group gets SIGTERM, then SIGKILL once StopTimeout passed. Stopping a
// STOPPED or STOPPING server is a no-op.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	s.mu.Lock()
	st := s.State()
	if !st.Live() {
		s.mu.Unlock()
		return nil
	}
	s.state.Store(int32(StateStopping))
	s.emitLocked(Event{Key: s.key, Kind: EventState, State: StateStopping})
	proc, exited := s.proc, s.exited
	s.mu.Unlock()

	s.log.Info("stopping server")
	if err := proc.Terminate(); err != nil {
		s.log.Warn("terminate server failed", zap.Error(err))
	}
	go s.escalate(proc, exited)
	return nil
}

func (s *Supervisor) escalate(proc *executor.Process, exited <-chan struct{}) {
	stopTimer := time.NewTimer(s.cfg.StopTimeout)
	defer stopTimer.Stop()
	select {
	case <-exited:
		return
	case <-stopTimer.C:
	}

	s.log.Warn("server did not stop in time, killing it", zap.Duration("stop-timeout", s.cfg.StopTimeout))
	if err := proc.Kill(); err != nil {
		s.log.Error("kill server failed", zap.Error(err))
	}
	killTimer := time.NewTimer(s.cfg.KillTimeout)
	defer killTimer.Stop()
	select {
	case <-exited:
	case <-killTimer.C:
		s.log.Error("server still running after kill", zap.Duration("kill-timeout", s.cfg.KillTimeout))
	}
}

// Wait blocks until the current run ended or ctx is done
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshConsole copies the lines produced since the last refresh into the console of
// the slot. It is valid in any state so trailing output is not lost after exit.
func (s *Supervisor) RefreshConsole() int {
	proc := s.Process()
	if proc == nil || s.cfg.Sink == nil {
		return 0
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	lines, next := proc.LinesSince(s.cursor)
	s.cursor = next
	if len(lines) > 0 {
		s.cfg.Sink.Append(lines...)
	}
	return len(lines)
}

func (s *Supervisor) current(gen uint64) bool {
	return s.generation.Load() == gen
}

func (s *Supervisor) handleLine(gen uint64, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(gen) {
		return
	}
	s.emitLocked(Event{Key: s.key, Kind: EventLine, Line: line})
	s.markRunningLocked()

	if m := serverStatePattern.FindStringSubmatch(line); m != nil {
		s.serverState.Store(m[1])
		s.emitLocked(Event{Key: s.key, Kind: EventServerState, ServerState: m[1]})
	}
}

func (s *Supervisor) markRunningLocked() {
	if s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		s.emitLocked(Event{Key: s.key, Kind: EventState, State: StateRunning})
	}
}

func (s *Supervisor) handleExit(gen uint64, exitErr error) {
	s.mu.Lock()
	if !s.current(gen) {
		s.mu.Unlock()
		return
	}
	if exitErr != nil {
		s.log.Info("server exited", zap.Error(exitErr))
	} else {
		s.log.Info("server exited")
	}
	s.lastErr = exitErr
	s.pid.Store(0)
	s.state.Store(int32(StateStopped))
	s.emitLocked(Event{Key: s.key, Kind: EventCompleted, Err: exitErr})
	s.emitLocked(Event{Key: s.key, Kind: EventState, State: StateStopped})
	s.endRunLocked()
	s.mu.Unlock()

	if s.cfg.OnStopped != nil {
		s.cfg.OnStopped(s.key, s)
	}
}

// watchStart fails a run that neither printed a line nor reported a pid in time
func (s *Supervisor) watchStart(ctx context.Context, gen uint64) {
	timer := time.NewTimer(s.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	if !s.current(gen) || s.State() != StateStarting {
		s.mu.Unlock()
		return
	}
	err := errors.Annotatef(ErrStartTimeout, "server [%s] after %s", s.key, s.cfg.StartTimeout)
	s.log.Error("server start timed out", zap.Error(err))
	s.emitLocked(Event{Key: s.key, Kind: EventFailed, Err: err})
	s.mu.Unlock()

	_ = s.stopLocked()
}
