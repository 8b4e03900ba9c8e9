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
	"path/filepath"
	"strings"

	"github.com/wentaojin/pounder/utils/cluster"
	"go.uber.org/zap"
)

// DirEntry stands for a directory used by a server slot
type DirEntry struct {
	dirKind string
	dir     string
	owner   string
}

// PortEntry stands for a port bound by a server slot
type PortEntry struct {
	portKind string
	host     string
	port     int
	owner    string
}

func dirEntries(topo *cluster.Topology) []DirEntry {
	var entries []DirEntry
	topo.IterInstance(func(inst *cluster.Instance) {
		entries = append(entries, DirEntry{dirKind: "log directory", dir: filepath.Clean(inst.LogDir), owner: inst.Name})
	})
	for _, r := range topo.ResolvedDataRoots() {
		entries = append(entries, DirEntry{dirKind: "data root", dir: filepath.Clean(r.Path), owner: r.ID})
	}
	return entries
}

func portEntries(topo *cluster.Topology) []PortEntry {
	var entries []PortEntry
	topo.IterInstance(func(inst *cluster.Instance) {
		entries = append(entries,
			PortEntry{portKind: "port", host: inst.Host, port: inst.Port, owner: inst.Name},
			PortEntry{portKind: "group port", host: inst.Host, port: inst.GroupPort, owner: inst.Name},
		)
	})
	return entries
}

// CheckTopologyConflicts reports ports bound twice on one host and directories nested
// in each other. Servers of one host cannot share them, the topology is still accepted
// so that a file can be fixed while the session runs.
func CheckTopologyConflicts(topo *cluster.Topology) []string {
	var warns []string

	ports := portEntries(topo)
	for i := 0; i < len(ports)-1; i++ {
		p1 := ports[i]
		for j := i + 1; j < len(ports); j++ {
			p2 := ports[j]
			if p1.port != p2.port || p1.host != p2.host {
				continue
			}
			zap.L().Info("Meet port conflict", zap.String("host", p1.host), zap.Int("port", p1.port),
				zap.String("this", p1.owner), zap.String("that", p2.owner))
			warns = append(warns, fmt.Sprintf("%s %d of %s conflicts with %s %d of %s on host %s",
				p1.portKind, p1.port, p1.owner, p2.portKind, p2.port, p2.owner, p1.host))
		}
	}

	dirs := dirEntries(topo)
	for i := 0; i < len(dirs)-1; i++ {
		d1 := dirs[i]
		for j := i + 1; j < len(dirs); j++ {
			d2 := dirs[j]
			if d1.dir == "" || d2.dir == "" || d1.dir == "." || d2.dir == "." {
				continue
			}
			if d1.dir == d2.dir || isSubDir(d1.dir, d2.dir) || isSubDir(d2.dir, d1.dir) {
				zap.L().Info("Meet directory overlap", zap.String("this", d1.dir), zap.String("that", d2.dir))
				warns = append(warns, fmt.Sprintf("%s %s of %s overlaps with %s %s of %s",
					d1.dirKind, d1.dir, d1.owner, d2.dirKind, d2.dir, d2.owner))
			}
		}
	}
	return warns
}

// isSubDir reports whether sub lies strictly inside parent
func isSubDir(parent, sub string) bool {
	rel, err := filepath.Rel(parent, sub)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
