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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name       string
		mutate     func(topo *Topology)
		enterprise bool
		field      string
	}{
		{
			name:   "valid default grid",
			mutate: func(*Topology) {},
		},
		{
			name:   "duplicate server name across stripes",
			mutate: func(topo *Topology) { topo.Stripes[1].Servers[0].Name = "stripe-1-server-1" },
			field:  "stripes[1].servers[0].name",
		},
		{
			name:   "empty server name",
			mutate: func(topo *Topology) { topo.Stripes[0].Servers[1].Name = " " },
			field:  "stripes[0].servers[1].name",
		},
		{
			name: "non numeric voters",
			mutate: func(topo *Topology) {
				topo.FailoverPriority = &FailoverOptions{Mode: FailoverConsistency, Voters: "two"}
			},
			field: "failover_priority.voters",
		},
		{
			name: "zero voters",
			mutate: func(topo *Topology) {
				topo.FailoverPriority = &FailoverOptions{Mode: FailoverConsistency, Voters: "0"}
			},
			field: "failover_priority.voters",
		},
		{
			name: "voters ignored in availability mode",
			mutate: func(topo *Topology) {
				topo.FailoverPriority = &FailoverOptions{Mode: FailoverAvailability, Voters: "two"}
			},
		},
		{
			name:   "unknown failover mode",
			mutate: func(topo *Topology) { topo.FailoverPriority.Mode = "quorum" },
			field:  "failover_priority.mode",
		},
		{
			name:   "reconnect window too small",
			mutate: func(topo *Topology) { topo.GlobalOptions.ReconnectWindow = 4 },
			field:  "global.reconnect_window",
		},
		{
			name: "duplicate offheap",
			mutate: func(topo *Topology) {
				topo.OffheapResources = append(topo.OffheapResources, &OffheapResource{Name: "offheap-1", Size: 1, Unit: "GB"})
			},
			field: "offheap_resources[1].name",
		},
		{
			name:   "unknown offheap unit",
			mutate: func(topo *Topology) { topo.OffheapResources[0].Unit = "mb" },
			field:  "offheap_resources[0].unit",
		},
		{
			name:   "non positive offheap size",
			mutate: func(topo *Topology) { topo.OffheapResources[0].Size = 0 },
			field:  "offheap_resources[0].size",
		},
		{
			name: "data roots need enterprise",
			mutate: func(topo *Topology) {
				topo.Stripes = topo.Stripes[:1]
				topo.DataRoots = &DataRootOptions{Enabled: true}
			},
			field: "data_roots.enabled",
		},
		{
			name: "reserved data root id",
			mutate: func(topo *Topology) {
				topo.DataRoots = &DataRootOptions{Enabled: true, Roots: []*DataRoot{{ID: "PLATFORM", Path: "/x"}}}
			},
			enterprise: true,
			field:      "data_roots.roots[0].id",
		},
		{
			name:   "multi stripe needs enterprise",
			mutate: func(*Topology) {},
			field:  "stripes",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			topo := NewTopology(2, 2, "/tmp/c")
			c.mutate(topo)
			enterprise := c.enterprise || (c.field != "stripes" && c.field != "data_roots.enabled")
			err := topo.Validate(enterprise)
			if c.field == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, IsValidationError(err))
			assert.Equal(t, c.field, err.(*ValidationError).Field)
		})
	}
}
