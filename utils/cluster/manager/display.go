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
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/cluster/server"
	"github.com/wentaojin/pounder/utils/stringutil"
)

// InstInfo represents a server slot as shown by display
type InstInfo struct {
	Stripe          string `json:"stripe"`
	Name            string `json:"name"`
	Host            string `json:"host"`
	Ports           string `json:"ports"`
	LogDir          string `json:"log_dir"`
	Artifact        string `json:"artifact"`
	ArtifactPresent bool   `json:"artifact_present"`
	Status          string `json:"status"`
	Pid             int    `json:"pid"`
	ServerState     string `json:"server_state"`
	Since           string `json:"since"`
}

// GetClusterTopology returns one row per server slot in topology order, merged with
// the live state of the running servers
func (c *Controller) GetClusterTopology() []InstInfo {
	var infos []InstInfo
	c.Topology().IterInstance(func(inst *cluster.Instance) {
		artifact := c.Kit.ArtifactPath(inst.StripeIndex)
		info := InstInfo{
			Stripe:          inst.StripeName(),
			Name:            inst.Name,
			Host:            inst.Host,
			Ports:           strconv.Itoa(inst.Port) + "/" + strconv.Itoa(inst.GroupPort),
			LogDir:          inst.LogDir,
			Artifact:        artifact,
			ArtifactPresent: stringutil.IsPathExist(artifact),
			Status:          server.StateStopped.String(),
			ServerState:     "-",
			Since:           "-",
		}
		if sup, ok := c.Registry.Lookup(inst.Key()); ok {
			info.Status = sup.State().String()
			info.Pid = sup.Pid()
			if st := sup.ServerState(); st != "" {
				info.ServerState = st
			}
			if proc := sup.Process(); proc != nil {
				info.Since = formatInstanceSince(time.Since(proc.Started))
			}
		}
		infos = append(infos, info)
	})
	return infos
}

// Display prints the slot table of the session
func (c *Controller) Display(w io.Writer) {
	topo := c.Topology()
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Fprintf(w, "Cluster name:    %s\n", cyan.Sprint(topo.ClusterName()))
	fmt.Fprintf(w, "Base location:   %s\n", cyan.Sprint(topo.BaseDir()))
	fmt.Fprintf(w, "Kit:             %s (%s)\n", cyan.Sprint(c.Kit.Path), c.Kit.Edition)
	fmt.Fprintf(w, "Failover:        %s\n", topo.Failover())

	rows := [][]string{
		{"Stripe", "Name", "Host", "Ports", "Status", "Pid", "Server State", "Since", "Log Dir", "Config"},
	}
	for _, info := range c.GetClusterTopology() {
		pid := "-"
		if info.Pid > 0 {
			pid = strconv.Itoa(info.Pid)
		}
		artifact := info.Artifact
		if !info.ArtifactPresent {
			artifact = color.YellowString("%s (missing)", info.Artifact)
		}
		rows = append(rows, []string{
			info.Stripe,
			info.Name,
			info.Host,
			info.Ports,
			FormatInstanceStatus(info.Status),
			pid,
			info.ServerState,
			info.Since,
			info.LogDir,
			artifact,
		})
	}
	stringutil.FprintTable(w, rows, true)

	for _, warn := range CheckTopologyConflicts(topo) {
		fmt.Fprintln(w, color.YellowString("Attention: %s", warn))
	}
}

func formatInstanceSince(uptime time.Duration) string {
	if uptime < time.Second {
		return "-"
	}

	d := int64(uptime.Hours() / 24)
	h := int64(math.Mod(uptime.Hours(), 24))
	m := int64(math.Mod(uptime.Minutes(), 60))
	s := int64(math.Mod(uptime.Seconds(), 60))

	chunks := []struct {
		unit  string
		value int64
	}{
		{"d", d},
		{"h", h},
		{"m", m},
		{"s", s},
	}

	parts := []string{}

	for _, chunk := range chunks {
		switch chunk.value {
		case 0:
			continue
		default:
			parts = append(parts, fmt.Sprintf("%d%s", chunk.value, chunk.unit))
		}
	}

	return strings.Join(parts, "")
}

func FormatInstanceStatus(status string) string {
	switch strings.ToUpper(status) {
	case server.StateRunning.String():
		return color.GreenString(status)
	case server.StateStarting.String(), server.StateStopping.String():
		return color.YellowString(status)
	case "FAILED":
		return color.RedString(status)
	default:
		return status
	}
}
