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
package operator

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/pounder/utils/cluster"
	"go.uber.org/atomic"
)

type fakeController struct {
	mu      sync.Mutex
	started []string
	stopped []string
	fail    map[string]bool

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeController) track() func() {
	n := f.inFlight.Inc()
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.inFlight.Dec() }
}

func (f *fakeController) StartServer(_ context.Context, name string) error {
	defer f.track()()
	if f.fail[name] {
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	return nil
}

func (f *fakeController) StopServer(_ context.Context, name string) error {
	defer f.track()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return nil
}

func TestStartAllWithConcurrencyLimit(t *testing.T) {
	topo := cluster.NewTopology(3, 3, t.TempDir())
	ctl := &fakeController{}

	require.NoError(t, Start(context.Background(), topo, ctl, &Options{Concurrency: 2}))
	sort.Strings(ctl.started)
	want := topo.InstanceNames()
	sort.Strings(want)
	assert.Equal(t, want, ctl.started)
	assert.LessOrEqual(t, ctl.peak.Load(), int32(2))
}

func TestStopFilteredByStripe(t *testing.T) {
	topo := cluster.NewTopology(2, 2, t.TempDir())
	ctl := &fakeController{}

	require.NoError(t, Stop(context.Background(), topo, ctl, &Options{Nodes: []string{"stripe-2"}}))
	sort.Strings(ctl.stopped)
	assert.Equal(t, []string{"stripe-2-server-1", "stripe-2-server-2"}, ctl.stopped)

	err := Stop(context.Background(), topo, ctl, &Options{Nodes: []string{"stripe-9"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe-9")
}

func TestForceKeepsGoing(t *testing.T) {
	topo := cluster.NewTopology(1, 3, t.TempDir())
	ctl := &fakeController{fail: map[string]bool{"stripe-1-server-2": true}}

	err := Start(context.Background(), topo, ctl, &Options{Force: true, Concurrency: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 servers failed to start")
	assert.Equal(t, []string{"stripe-1-server-1", "stripe-1-server-3"}, ctl.started)

	ctl = &fakeController{fail: map[string]bool{"stripe-1-server-1": true}}
	err = Start(context.Background(), topo, ctl, &Options{Concurrency: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start: stripe-1/stripe-1-server-1")
	assert.Empty(t, ctl.started)
}

func TestRestartStopsThenStarts(t *testing.T) {
	topo := cluster.NewTopology(1, 1, t.TempDir())
	ctl := &fakeController{}
	require.NoError(t, Restart(context.Background(), topo, ctl, nil))
	assert.Equal(t, []string{"stripe-1-server-1"}, ctl.stopped)
	assert.Equal(t, []string{"stripe-1-server-1"}, ctl.started)
	assert.Equal(t, "RestartOperation", RestartOperation.String())
}
