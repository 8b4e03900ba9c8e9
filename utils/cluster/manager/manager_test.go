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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/cluster/operator"
	"github.com/wentaojin/pounder/utils/cluster/server"
	"github.com/wentaojin/pounder/utils/configutil"
	"github.com/wentaojin/pounder/utils/console"
)

const fakeServer = `#!/bin/sh
echo "PID is $$"
trap 'exit 0' TERM
while true; do sleep 0.1; done
`

const fakeClusterTool = `#!/bin/sh
echo "cluster-tool $*"
`

func skipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("controller tests drive /bin/sh scripts")
	}
}

func newKit(t *testing.T, enterprise bool) *cluster.Kit {
	dir := t.TempDir()
	bin := filepath.Join(dir, "server", "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "start-tc-server.sh"), []byte(fakeServer), 0755))
	if enterprise {
		tool := filepath.Join(dir, "tools", "cluster-tool", "bin")
		require.NoError(t, os.MkdirAll(tool, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(tool, "cluster-tool.sh"), []byte(fakeClusterTool), 0755))
	}
	kit, err := cluster.DetectKit(dir, "auto")
	require.NoError(t, err)
	return kit
}

func newController(t *testing.T, topo *cluster.Topology, kit *cluster.Kit) *Controller {
	opts := configutil.DefaultPounderConfig().Apply(
		configutil.WithKitPath(kit.Path),
		configutil.WithPidPollInterval(20*time.Millisecond),
		configutil.WithStopTimeout(5*time.Second),
		configutil.WithKillTimeout(time.Second),
	)
	ctl, err := New(topo, kit, opts, nil)
	require.NoError(t, err)
	require.NoError(t, ctl.Open())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		assert.NoError(t, ctl.Close(ctx))
	})
	return ctl
}

func TestStartServerGeneratesOnDemand(t *testing.T) {
	skipOnWindows(t)
	kit := newKit(t, false)
	ctl := newController(t, cluster.NewTopology(1, 2, t.TempDir()), kit)
	ctx := context.Background()

	assert.NoFileExists(t, kit.ArtifactPath(1))
	require.NoError(t, ctl.StartServer(ctx, "stripe-1-server-1"))
	assert.FileExists(t, kit.ArtifactPath(1))

	err := ctl.StartServer(ctx, "stripe-1-server-1")
	require.Error(t, err)
	assert.Equal(t, server.ErrAlreadyRunning, errors.Cause(err))
	assert.Equal(t, 1, ctl.Registry.Len())

	require.Error(t, ctl.StartServer(ctx, "stripe-9-server-1"))

	sup, ok := ctl.Registry.Lookup(cluster.ServerKey{Stripe: "stripe-1", Server: "stripe-1-server-1"})
	require.True(t, ok)
	require.Eventually(t, func() bool { return sup.Pid() > 0 }, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, ctl.StopServer(ctx, "stripe-1-server-1"))
	assert.Equal(t, 0, ctl.Registry.Len())
	assert.Equal(t, server.StateStopped, sup.State())

	// the exit path flushed the output into the server console
	sink, ok := ctl.Consoles.Lookup("stripe-1-server-1")
	require.True(t, ok)
	assert.Contains(t, sink.Snapshot()[0], "PID is ")

	// stopping a stopped server is a silent no-op
	require.NoError(t, ctl.StopServer(ctx, "stripe-1-server-1"))
}

func TestStartAllAndStopAll(t *testing.T) {
	skipOnWindows(t)
	ctl := newController(t, cluster.NewTopology(1, 3, t.TempDir()), newKit(t, false))
	ctx := context.Background()

	require.NoError(t, ctl.StartAll(ctx))
	assert.Equal(t, 3, ctl.Registry.Len())
	// already running servers are skipped
	require.NoError(t, ctl.StartAll(ctx))

	var buf bytes.Buffer
	ctl.Display(&buf)
	assert.Contains(t, buf.String(), "stripe-1-server-3")
	assert.Contains(t, buf.String(), "9412/9432")

	require.NoError(t, ctl.StopAll(ctx))
	assert.Equal(t, 0, ctl.Registry.Len())
}

func TestRunToolAgainstTopology(t *testing.T) {
	skipOnWindows(t)
	kit := newKit(t, true)
	ctl := newController(t, cluster.NewTopology(2, 1, t.TempDir()), kit)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proc, err := ctl.RunTool(ctx, operator.ToolBackup, "")
	require.NoError(t, err)
	require.NoError(t, proc.Wait(ctx))
	lines := ctl.Consoles.Main().Snapshot()
	assert.Equal(t, "cluster-tool backup -n "+ctl.Topology().ClusterName()+" localhost:9410 localhost:9420", lines[len(lines)-1])

	proc, err = ctl.RunTool(ctx, operator.ToolStatus, "stripe-2-server-1")
	require.NoError(t, err)
	require.NoError(t, proc.Wait(ctx))
	lines = ctl.Consoles.Main().Snapshot()
	assert.Equal(t, "cluster-tool status -s localhost:9420", lines[len(lines)-1])
	assert.Equal(t, console.MainConsole, ctl.Consoles.Active())

	// no license configured
	_, err = ctl.RunTool(ctx, operator.ToolConfigure, "")
	assert.Equal(t, operator.ErrMissingPrerequisite, errors.Cause(err))
	ctl.Opts.LicensePath = filepath.Join(t.TempDir(), "missing.xml")
	_, err = ctl.RunTool(ctx, operator.ToolReconfigure, "")
	assert.Equal(t, operator.ErrMissingPrerequisite, errors.Cause(err))
	assert.NoFileExists(t, kit.ArtifactPath(1))
	assert.NoFileExists(t, kit.ArtifactPath(2))

	license := filepath.Join(t.TempDir(), "license.xml")
	require.NoError(t, os.WriteFile(license, []byte("<license/>"), 0644))
	ctl.Opts.LicensePath = license
	proc, err = ctl.RunTool(ctx, operator.ToolConfigure, "")
	require.NoError(t, err)
	require.NoError(t, proc.Wait(ctx))
	assert.FileExists(t, kit.ArtifactPath(1))
	assert.FileExists(t, kit.ArtifactPath(2))
	lines = ctl.Consoles.Main().Snapshot()
	assert.Contains(t, lines[len(lines)-1], "cluster-tool configure -n "+ctl.Topology().ClusterName()+" -l "+license)
}

func TestReloadTopologyKeepsPreviousOnError(t *testing.T) {
	kit := newKit(t, false)
	base := t.TempDir()
	ctl := newController(t, cluster.NewTopology(1, 1, base), kit)

	file := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(file, []byte("global:\n  base_dir: "+base+"\nstripes:\n  - servers:\n      - name: alpha\n      - name: beta\n"), 0644))
	res, err := ctl.ReloadTopology(file)
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, []string{"alpha", "beta"}, ctl.Topology().InstanceNames())

	require.NoError(t, os.WriteFile(file, []byte("stripes:\n  - servers:\n      - name: alpha\n      - name: alpha\n"), 0644))
	_, err = ctl.ReloadTopology(file)
	require.Error(t, err)
	assert.True(t, cluster.IsValidationError(err))
	assert.Equal(t, []string{"alpha", "beta"}, ctl.Topology().InstanceNames())
}

func TestWatcherRegeneratesOnWrite(t *testing.T) {
	kit := newKit(t, false)
	base := t.TempDir()
	ctl := newController(t, cluster.NewTopology(1, 1, base), kit)
	ctl.SetForceOverwrite(true)

	file := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(file, []byte("stripes:\n  - servers:\n      - name: alpha\n"), 0644))

	reloaded := make(chan error, 4)
	w, err := ctl.WatchTopology(file, func(_ *cluster.GenerateResult, err error) { reloaded <- err })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(file, []byte("global:\n  base_dir: "+base+"\nstripes:\n  - servers:\n      - name: gamma\n"), 0644))
	select {
	case err = <-reloaded:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("topology was not reloaded")
	}
	content, err := os.ReadFile(kit.ArtifactPath(1))
	require.NoError(t, err)
	assert.Contains(t, string(content), `name="gamma"`)
}

func TestCheckTopologyConflicts(t *testing.T) {
	topo := cluster.NewTopology(1, 2, "/tmp/c")
	assert.Empty(t, CheckTopologyConflicts(topo))

	topo.Stripes[0].Servers[1].Port = 9410
	topo.Stripes[0].Servers[1].LogDir = "/tmp/c/logs/stripe-1-server-1/nested"
	warns := CheckTopologyConflicts(topo)
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0], "port 9410 of stripe-1-server-1 conflicts with port 9410 of stripe-1-server-2")
	assert.Contains(t, warns[1], "overlaps")
}

func TestCleanBaseLocation(t *testing.T) {
	base := filepath.Join(t.TempDir(), "MyCluster")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "logs"), 0755))

	_, err := CleanBaseLocation(base, "")
	require.Error(t, err)
	assert.DirExists(t, base)

	require.NoError(t, os.MkdirAll(filepath.Join(base, "data", "platform"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "logs", "server.log"), []byte("hello"), 0644))
	backupTo := t.TempDir()
	backup, err := CleanBaseLocation(base, backupTo)
	require.NoError(t, err)
	assert.NoDirExists(t, base)
	data, err := os.ReadFile(filepath.Join(backup, "logs", "server.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = CleanBaseLocation(base, "")
	assert.Error(t, err)
}
