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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripeOneAvailability = `<?xml version="1.0" encoding="UTF-8"?>

<tc-config xmlns="http://www.terracotta.org/config"
           xmlns:ohr="http://www.terracotta.org/config/offheap-resource"
           xmlns:backup="http://www.terracottatech.com/config/backup-restore"
           xmlns:data="http://www.terracottatech.com/config/data-roots">

  <plugins>

    <config>
      <ohr:offheap-resources>
        <ohr:resource name="main" unit="MB">512</ohr:resource>
      </ohr:offheap-resources>
    </config>

  </plugins>

  <servers>

    <server host="localhost" name="stripe-1-server-1">
      <logs>/tmp/c/logs/stripe-1-server-1</logs>
      <tsa-port>9410</tsa-port>
      <tsa-group-port>9430</tsa-group-port>
    </server>

    <server host="localhost" name="stripe-1-server-2">
      <logs>/tmp/c/logs/stripe-1-server-2</logs>
      <tsa-port>9411</tsa-port>
      <tsa-group-port>9431</tsa-group-port>
    </server>

    <client-reconnect-window>120</client-reconnect-window>

  </servers>

  <failover-priority>
    <availability/>
  </failover-priority>

</tc-config>
`

func TestGenerateTwoByTwoAvailability(t *testing.T) {
	kit := t.TempDir()
	topo := NewTopology(2, 2, "/tmp/c")
	topo.OffheapResources = []*OffheapResource{{Name: "main", Size: 512, Unit: "MB"}}

	res, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit, Enterprise: true})
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, []string{filepath.Join(kit, "tc-config-stripe-1.xml"), filepath.Join(kit, "tc-config-stripe-2.xml")}, res.Paths())
	for _, n := range res.Notices {
		assert.Equal(t, NoticeWritten, n.Kind)
	}

	data, err := os.ReadFile(filepath.Join(kit, "tc-config-stripe-1.xml"))
	require.NoError(t, err)
	assert.Equal(t, stripeOneAvailability, string(data))

	second := string(res.Artifacts[1].Content)
	assert.Contains(t, second, `<server host="localhost" name="stripe-2-server-1">`)
	assert.Contains(t, second, `<tsa-port>9420</tsa-port>`)
	assert.Contains(t, second, `<tsa-group-port>9440</tsa-group-port>`)
	assert.NotContains(t, second, "stripe-1-server")
	assert.NotContains(t, second, "voter")
	assert.Equal(t, map[string]string{
		"stripe-1": filepath.Join(kit, "tc-config-stripe-1.xml"),
		"stripe-2": filepath.Join(kit, "tc-config-stripe-2.xml"),
	}, res.StripePaths())
}

func TestGenerateConsistencyVoters(t *testing.T) {
	topo := NewTopology(1, 3, "/tmp/c")
	topo.FailoverPriority = &FailoverOptions{Mode: FailoverConsistency, Voters: "3"}

	content, err := RenderStripe(topo, 1, false)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "  <failover-priority>\n    <consistency>\n      <voter count=\"3\"/>\n    </consistency>\n  </failover-priority>\n")
	assert.NotContains(t, text, "<availability/>")
	// open source kits only declare the offheap namespace
	assert.NotContains(t, text, "xmlns:data")
}

func TestGenerateRejectsNonNumericVoters(t *testing.T) {
	kit := filepath.Join(t.TempDir(), "kit")
	topo := NewTopology(2, 1, "/tmp/c")
	topo.FailoverPriority = &FailoverOptions{Mode: FailoverConsistency, Voters: "3x"}

	_, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit, Enterprise: true})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.NoDirExists(t, kit)
}

func TestGenerateKeepsExistingFiles(t *testing.T) {
	kit := t.TempDir()
	topo := NewTopology(1, 2, "/tmp/c")

	first, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit})
	require.NoError(t, err)

	second, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit})
	require.NoError(t, err)
	assert.Equal(t, first.Artifacts[0].Content, second.Artifacts[0].Content)
	require.Len(t, second.Notices, 1)
	assert.Equal(t, NoticeKept, second.Notices[0].Kind)
	assert.False(t, second.Notices[0].Diverged)

	// topology edits are not reflected while the file is kept
	topo.GlobalOptions.ReconnectWindow = 30
	third, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit})
	require.NoError(t, err)
	assert.Equal(t, first.Artifacts[0].Content, third.Artifacts[0].Content)
	assert.True(t, third.Notices[0].Diverged)
	assert.Contains(t, third.Notices[0].Diff, "-     <client-reconnect-window>120</client-reconnect-window>")
	assert.Contains(t, third.Notices[0].Diff, "+     <client-reconnect-window>30</client-reconnect-window>")
	assert.Contains(t, third.Notices[0].String(), "differs")
}

func TestLineDiffKeepsWholeLines(t *testing.T) {
	var kept, fresh strings.Builder
	for i := 1; i <= 24; i++ {
		fmt.Fprintf(&kept, "line %d\n", i)
		if i == 12 || i == 21 {
			fmt.Fprintf(&fresh, "changed %d\n", i)
			continue
		}
		fmt.Fprintf(&fresh, "line %d\n", i)
	}

	assert.Equal(t, "- line 12\n+ changed 12\n- line 21\n+ changed 21\n", lineDiff(kept.String(), fresh.String()))
	assert.Empty(t, lineDiff(kept.String(), kept.String()))
	assert.Equal(t, "+ tail\n", lineDiff("a\n", "a\ntail"))
}

func TestGenerateForceOverwrite(t *testing.T) {
	kit := t.TempDir()
	topo := NewTopology(1, 1, "/tmp/c")
	_, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit})
	require.NoError(t, err)

	topo.Stripes[0].Servers[0].Name = "renamed"
	res, err := GenerateArtifacts(topo, GenerateOptions{KitDir: kit, ForceOverwrite: true})
	require.NoError(t, err)
	assert.Equal(t, NoticeWritten, res.Notices[0].Kind)

	data, err := os.ReadFile(res.Artifacts[0].Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `name="renamed"`)
	assert.NoFileExists(t, res.Artifacts[0].Path+".tmp")
}

func TestGenerateDataRootsOrder(t *testing.T) {
	topo := NewTopology(1, 1, "/tmp/c")
	topo.DataRoots = &DataRootOptions{
		Enabled:             true,
		PlatformPersistence: true,
		PlatformBackup:      true,
		Roots:               []*DataRoot{{Role: DataRootUser, ID: "cache", Path: "/data/cache&co"}},
	}
	topo.Security = &SecurityOptions{ServerRootDir: "/sec/server"}

	content, err := RenderStripe(topo, 1, true)
	require.NoError(t, err)
	text := string(content)

	platform := strings.Index(text, `<data:directory name="PLATFORM" use-for-platform="true">/tmp/c/data/platform</data:directory>`)
	user := strings.Index(text, `<data:directory name="cache" use-for-platform="false">/data/cache&amp;co</data:directory>`)
	backup := strings.Index(text, `<backup:backup-location path="/tmp/c/data/backup" />`)
	security := strings.Index(text, `<security:security-root-directory>/sec/server</security:security-root-directory>`)
	servers := strings.Index(text, "<servers>")
	for _, idx := range []int{platform, user, backup, security, servers} {
		require.NotEqual(t, -1, idx, text)
	}
	assert.True(t, platform < user && user < backup && backup < security && security < servers)
	assert.NotContains(t, text, `name="BACKUP"`)

	// the open source rendering drops every edition gated block
	content, err = RenderStripe(topo, 1, false)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "data:directory")
	assert.NotContains(t, string(content), "security")
}

func TestGenerateWriteFailure(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notDir, []byte("x"), 0644))

	_, err := GenerateArtifacts(NewTopology(1, 1, "/tmp/c"), GenerateOptions{KitDir: notDir})
	require.Error(t, err)
	assert.True(t, IsConfigWriteError(err))
}

func TestRenderStripeOutOfRange(t *testing.T) {
	_, err := RenderStripe(NewTopology(1, 1, "/tmp/c"), 2, false)
	require.Error(t, err)
}
