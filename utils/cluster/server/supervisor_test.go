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
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/console"
	"github.com/wentaojin/pounder/utils/executor"
	"go.uber.org/atomic"
)

const serverScript = `#!/bin/sh
echo "starting $*"
echo "PID is $$"
echo "Moved to State[ ACTIVE-COORDINATOR ]"
trap 'echo stopping; exit 0' TERM
while true; do sleep 0.1; done
`

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("supervisor tests drive /bin/sh scripts")
	}
}

func writeKit(t *testing.T, script string) *cluster.Kit {
	dir := t.TempDir()
	bin := filepath.Join(dir, "server", "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "start-tc-server.sh"), []byte(script), 0755))
	return &cluster.Kit{Path: dir, Edition: cluster.EditionOpenSource}
}

type countingRunner struct {
	executor.Local
	spawned atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, workDir, cmdline string, onLine func(string), onComplete func(error)) (*executor.Process, error) {
	// exec keeps signal handling in the script instead of the wrapping shell
	p, err := r.Local.Run(ctx, workDir, "exec "+cmdline, onLine, onComplete)
	if err == nil {
		r.spawned.Inc()
	}
	return p, err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) states() []State {
	var out []State
	for _, e := range r.snapshot() {
		if e.Kind == EventState {
			out = append(out, e.State)
		}
	}
	return out
}

func (r *recorder) kinds(kind EventKind) []Event {
	var out []Event
	for _, e := range r.snapshot() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	kit      *cluster.Kit
	topo     *cluster.Topology
	inst     *cluster.Instance
	runner   *countingRunner
	sink     *console.Sink
	rec      *recorder
	stopped  atomic.Int32
	registry *Registry
}

func newFixture(t *testing.T, script string) *fixture {
	f := &fixture{
		kit:      writeKit(t, script),
		topo:     cluster.NewTopology(1, 2, t.TempDir()),
		runner:   &countingRunner{},
		sink:     console.NewSink("stripe-1-server-1", 0),
		rec:      &recorder{},
		registry: NewRegistry(),
	}
	f.inst, _ = f.topo.FindInstance("stripe-1-server-1")
	return f
}

func (f *fixture) config(t *testing.T) Config {
	bus := NewBus()
	unsubscribe, err := Subscribe(bus, f.rec.record)
	require.NoError(t, err)
	t.Cleanup(unsubscribe)
	dispatcher := NewDispatcher(bus, nil)
	t.Cleanup(dispatcher.Close)
	return Config{
		Kit:    f.kit,
		Runner: f.runner,
		Resolver: ArtifactResolverFunc(func(stripe int) (string, error) {
			res, err := cluster.GenerateArtifacts(f.topo, cluster.GenerateOptions{KitDir: f.kit.Path})
			if err != nil {
				return "", err
			}
			return res.Artifacts[stripe-1].Path, nil
		}),
		Bus:             bus,
		Dispatcher:      dispatcher,
		Sink:            f.sink,
		PidPollInterval: 20 * time.Millisecond,
		StopTimeout:     5 * time.Second,
		KillTimeout:     time.Second,
		OnStopped: func(key cluster.ServerKey, sup *Supervisor) {
			f.stopped.Inc()
			f.registry.Release(key, sup)
		},
	}
}

func waitStopped(t *testing.T, sup *Supervisor) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, sup.Wait(ctx))
}

func TestSupervisorLifecycle(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, serverScript)
	sup := NewSupervisor(f.inst, f.config(t))

	require.NoError(t, f.registry.Launch(context.Background(), sup))
	require.Eventually(t, func() bool {
		return sup.State() == StateRunning && sup.Pid() > 0 && sup.ServerState() == "ACTIVE-COORDINATOR"
	}, 10*time.Second, 20*time.Millisecond)

	pid := sup.Pid()
	require.NoError(t, sup.Stop())
	waitStopped(t, sup)
	assert.Equal(t, StateStopped, sup.State())
	assert.Equal(t, int32(1), f.stopped.Load())
	assert.Equal(t, 0, f.registry.Len())

	require.Eventually(t, func() bool {
		states := f.rec.states()
		return len(states) > 0 && states[len(states)-1] == StateStopped
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, f.rec.states())

	pids := f.rec.kinds(EventPid)
	require.Len(t, pids, 1)
	assert.Equal(t, pid, pids[0].Pid)
	serverStates := f.rec.kinds(EventServerState)
	require.Len(t, serverStates, 1)
	assert.Equal(t, "ACTIVE-COORDINATOR", serverStates[0].ServerState)

	events := f.rec.snapshot()
	assert.Equal(t, EventCompleted, events[len(events)-2].Kind)
	for _, e := range events {
		assert.Equal(t, f.inst.Key(), e.Key)
	}

	// trailing output is still flushed after exit
	sup.RefreshConsole()
	lines := f.sink.Snapshot()
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[0], "-n stripe-1-server-1")
	assert.Equal(t, "stopping", lines[len(lines)-1])
}

func TestRestartKeepsSlotEventOrder(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, serverScript)
	cfg := f.config(t)
	slow, err := Subscribe(cfg.Bus, func(Event) { time.Sleep(20 * time.Millisecond) })
	require.NoError(t, err)
	defer slow()

	run := func() {
		sup := NewSupervisor(f.inst, cfg)
		require.NoError(t, f.registry.Launch(context.Background(), sup))
		require.Eventually(t, func() bool { return sup.State() == StateRunning }, 10*time.Second, 20*time.Millisecond)
		require.NoError(t, sup.Stop())
		waitStopped(t, sup)
	}
	run()
	run()

	want := []State{StateStarting, StateRunning, StateStopping, StateStopped, StateStarting, StateRunning, StateStopping, StateStopped}
	require.Eventually(t, func() bool { return len(f.rec.states()) == len(want) }, 15*time.Second, 20*time.Millisecond)
	assert.Equal(t, want, f.rec.states())
}

func TestDoubleStartSpawnsOnce(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, serverScript)
	cfg := f.config(t)
	first := NewSupervisor(f.inst, cfg)
	second := NewSupervisor(f.inst, cfg)

	require.NoError(t, f.registry.Launch(context.Background(), first))
	err := f.registry.Launch(context.Background(), second)
	require.Error(t, err)
	assert.Equal(t, ErrAlreadyRunning, errors.Cause(err))

	err = first.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrInvalidState, errors.Cause(err))
	assert.Equal(t, int32(1), f.runner.spawned.Load())

	got, ok := f.registry.Lookup(f.inst.Key())
	require.True(t, ok)
	assert.Same(t, first, got)

	require.NoError(t, first.Stop())
	waitStopped(t, first)
}

func TestStopOnStoppedIsSilent(t *testing.T) {
	f := newFixture(t, serverScript)
	sup := NewSupervisor(f.inst, f.config(t))

	require.NoError(t, sup.Stop())
	require.NoError(t, sup.Wait(context.Background()))
	assert.Equal(t, StateStopped, sup.State())
	assert.Zero(t, sup.RefreshConsole())
	assert.Empty(t, f.rec.snapshot())
	assert.Zero(t, f.stopped.Load())
}

func TestStartGeneratesArtifactOnDemand(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, serverScript)
	sup := NewSupervisor(f.inst, f.config(t))

	artifact := f.kit.ArtifactPath(1)
	assert.NoFileExists(t, artifact)
	require.NoError(t, sup.Start(context.Background()))
	assert.FileExists(t, artifact)
	assert.Equal(t, "exec "+LaunchCommand(f.kit, artifact, "stripe-1-server-1", ""), sup.Process().Command)

	require.NoError(t, sup.Stop())
	waitStopped(t, sup)
}

func TestLinesReachConsoleInOrder(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, "#!/bin/sh\ni=0\nwhile [ $i -lt 300 ]; do echo \"line $i\"; i=$((i+1)); done\n")
	sup := NewSupervisor(f.inst, f.config(t))

	require.NoError(t, sup.Start(context.Background()))
	waitStopped(t, sup)
	assert.Equal(t, 300, sup.RefreshConsole())
	assert.Zero(t, sup.RefreshConsole())

	lines := f.sink.Snapshot()
	require.Len(t, lines, 300)
	for i, line := range lines {
		assert.Equal(t, "line "+strconv.Itoa(i), line)
	}
	assert.NoError(t, sup.LastError())

	require.Eventually(t, func() bool { return len(f.rec.kinds(EventCompleted)) == 1 }, 5*time.Second, 10*time.Millisecond)
	var got []string
	for _, e := range f.rec.kinds(EventLine) {
		got = append(got, e.Line)
	}
	assert.Equal(t, lines, got)
}

func TestStartTimeoutForcesStop(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, "#!/bin/sh\nexec sleep 30\n")
	cfg := f.config(t)
	cfg.StartTimeout = 200 * time.Millisecond
	sup := NewSupervisor(f.inst, cfg)

	require.NoError(t, f.registry.Launch(context.Background(), sup))
	waitStopped(t, sup)
	assert.Equal(t, StateStopped, sup.State())
	assert.Equal(t, 0, f.registry.Len())

	require.Eventually(t, func() bool { return len(f.rec.kinds(EventFailed)) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, ErrStartTimeout, errors.Cause(f.rec.kinds(EventFailed)[0].Err))
}

func TestStopEscalatesToKill(t *testing.T) {
	skipOnWindows(t)
	f := newFixture(t, "#!/bin/sh\ntrap '' TERM\necho ready\nwhile true; do sleep 0.1; done\n")
	cfg := f.config(t)
	cfg.StopTimeout = 300 * time.Millisecond
	sup := NewSupervisor(f.inst, cfg)

	require.NoError(t, sup.Start(context.Background()))
	require.Eventually(t, func() bool { return sup.State() == StateRunning }, 5*time.Second, 10*time.Millisecond)

	started := time.Now()
	require.NoError(t, sup.Stop())
	// a second stop while STOPPING is a no-op
	require.NoError(t, sup.Stop())
	waitStopped(t, sup)
	assert.GreaterOrEqual(t, time.Since(started), 300*time.Millisecond)
	assert.Error(t, sup.LastError())
}

func TestSpawnFailureLeavesNoEntry(t *testing.T) {
	f := newFixture(t, serverScript)
	cfg := f.config(t)
	cfg.Kit = &cluster.Kit{Path: filepath.Join(t.TempDir(), "missing")}
	cfg.Resolver = ArtifactResolverFunc(func(int) (string, error) { return "/tmp/tc-config-stripe-1.xml", nil })
	sup := NewSupervisor(f.inst, cfg)

	err := f.registry.Launch(context.Background(), sup)
	require.Error(t, err)
	assert.True(t, executor.IsSpawnError(err))
	assert.Equal(t, StateStopped, sup.State())
	assert.Equal(t, 0, f.registry.Len())

	require.Eventually(t, func() bool { return len(f.rec.kinds(EventFailed)) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []State{StateStarting, StateStopped}, f.rec.states())
}

func TestUnusableLaunchScriptFailsStart(t *testing.T) {
	skipOnWindows(t)
	for name, spoil := range map[string]func(script string) error{
		"missing":        os.Remove,
		"not executable": func(script string) error { return os.Chmod(script, 0644) },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, serverScript)
			require.NoError(t, spoil(f.kit.ServerScript()))
			sup := NewSupervisor(f.inst, f.config(t))

			err := f.registry.Launch(context.Background(), sup)
			require.Error(t, err)
			assert.True(t, executor.IsSpawnError(err))
			assert.Equal(t, StateStopped, sup.State())
			assert.Equal(t, 0, f.registry.Len())
			assert.Zero(t, f.runner.spawned.Load())

			require.Eventually(t, func() bool { return len(f.rec.states()) == 2 }, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, []State{StateStarting, StateStopped}, f.rec.states())
			assert.Len(t, f.rec.kinds(EventFailed), 1)
		})
	}
}

func TestLaunchCommand(t *testing.T) {
	skipOnWindows(t)
	kit := &cluster.Kit{Path: "/opt/kit"}
	assert.Equal(t,
		"/opt/kit/server/bin/start-tc-server.sh -f /opt/kit/tc-config-stripe-2.xml -n stripe-2-server-1",
		LaunchCommand(kit, "/opt/kit/tc-config-stripe-2.xml", "stripe-2-server-1", ""))
	assert.Equal(t,
		"/opt/kit/server/bin/start-tc-server.sh -f /opt/kit/tc-config-stripe-1.xml -n s1 -srd /sec/client",
		LaunchCommand(kit, "/opt/kit/tc-config-stripe-1.xml", "s1", "/sec/client"))
}

func TestScanPid(t *testing.T) {
	pid, ok := ScanPid([]string{"booting", "2024-01-01 INFO - PID is 4242", "PID is 7"})
	assert.True(t, ok)
	assert.Equal(t, 4242, pid)

	_, ok = ScanPid([]string{"PID is", "PID is x"})
	assert.False(t, ok)
}
