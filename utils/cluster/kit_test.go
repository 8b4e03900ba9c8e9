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
package cluster

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKit(t *testing.T) {
	kit := t.TempDir()

	k, err := DetectKit(kit, "auto")
	require.NoError(t, err)
	assert.False(t, k.Enterprise())

	require.NoError(t, os.MkdirAll(filepath.Join(kit, "tools", "cluster-tool", "bin"), 0755))
	k, err = DetectKit(kit, "")
	require.NoError(t, err)
	assert.True(t, k.Enterprise())

	k, err = DetectKit(kit, "opensource")
	require.NoError(t, err)
	assert.False(t, k.Enterprise())

	_, err = DetectKit(kit, "premium")
	require.Error(t, err)
	_, err = DetectKit("", "auto")
	require.Error(t, err)
	_, err = DetectKit(filepath.Join(kit, "missing"), "auto")
	require.Error(t, err)
}

func TestKitScripts(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix script names")
	}
	k := &Kit{Path: "/opt/kit", Edition: EditionEnterprise}
	assert.Equal(t, "/opt/kit/server/bin/start-tc-server.sh", k.ServerScript())
	assert.Equal(t, "/opt/kit/tools/cluster-tool/bin/cluster-tool.sh", k.ClusterToolScript())
	assert.Equal(t, "/opt/kit/tc-config-stripe-3.xml", k.ArtifactPath(3))
}
