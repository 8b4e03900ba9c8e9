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
	"path/filepath"
)

const (
	DefaultClusterName     = "MyCluster"
	DefaultHost            = "localhost"
	DefaultReconnectWindow = 120
	MinReconnectWindow     = 5
	MaxReconnectWindow     = 300
	DefaultClientPortBase  = 9410
	DefaultGroupPortBase   = 9430
	DefaultOffheapName     = "offheap-1"
	DefaultOffheapSize     = 256
	DefaultOffheapUnit     = "MB"
	DefaultVoters          = "2"

	LogDirName      = "logs"
	DataDirName     = "data"
	PlatformDirName = "platform"
	BackupDirName   = "backup"
)

// FailoverMode decides how a stripe behaves on a network partition
type FailoverMode string

const (
	FailoverAvailability FailoverMode = "availability"
	FailoverConsistency  FailoverMode = "consistency"
)

// DataRootRole tells apart the reserved directories from the user data roots
type DataRootRole string

const (
	DataRootUser     DataRootRole = "USER"
	DataRootPlatform DataRootRole = "PLATFORM"
	DataRootBackup   DataRootRole = "BACKUP"
)

// Topology describes the stripes and servers started on the local host
type Topology struct {
	GlobalOptions    *GlobalOptions     `yaml:"global,omitempty"`
	OffheapResources []*OffheapResource `yaml:"offheap_resources,omitempty"`
	DataRoots        *DataRootOptions   `yaml:"data_roots,omitempty"`
	Security         *SecurityOptions   `yaml:"security,omitempty"`
	FailoverPriority *FailoverOptions   `yaml:"failover_priority,omitempty"`
	Stripes          []*StripeOptions   `yaml:"stripes"`
}

type GlobalOptions struct {
	ClusterName string `yaml:"cluster_name,omitempty" default:"MyCluster"`
	// BaseDir holds the server logs, data roots and backups
	BaseDir         string `yaml:"base_dir,omitempty"`
	Host            string `yaml:"host,omitempty" default:"localhost"`
	ReconnectWindow int    `yaml:"reconnect_window,omitempty" default:"120"`
}

type OffheapResource struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
	Unit string `yaml:"unit,omitempty" default:"MB"`
}

type DataRootOptions struct {
	Enabled             bool        `yaml:"enabled"`
	PlatformPersistence bool        `yaml:"platform_persistence,omitempty"`
	PlatformBackup      bool        `yaml:"platform_backup,omitempty"`
	Roots               []*DataRoot `yaml:"roots,omitempty"`
}

// DataRoot is one typed data directory, the PLATFORM and BACKUP rows are derived
// from the role flags and never read from user input
type DataRoot struct {
	Role DataRootRole `yaml:"role,omitempty"`
	ID   string       `yaml:"id"`
	Path string       `yaml:"path,omitempty"`
}

type SecurityOptions struct {
	// ServerRootDir enables the security service in the generated configuration
	ServerRootDir string `yaml:"server_root_dir,omitempty"`
	// ClientRootDir is handed to the server script and the cluster tool with -srd
	ClientRootDir string `yaml:"client_root_dir,omitempty"`
}

type FailoverOptions struct {
	Mode FailoverMode `yaml:"mode,omitempty" default:"availability"`
	// Voters is kept as text so that a non numeric value is reported by validation
	Voters string `yaml:"voters,omitempty" default:"2"`
}

type StripeOptions struct {
	Servers []*ServerOptions `yaml:"servers"`
}

// ServerOptions represents one server slot in topology.yaml
type ServerOptions struct {
	Name      string `yaml:"name,omitempty"`
	Host      string `yaml:"host,omitempty"`
	LogDir    string `yaml:"log_dir,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	GroupPort int    `yaml:"group_port,omitempty"`
}

// ServerKey identifies a server slot in the process registry
type ServerKey struct {
	Stripe string
	Server string
}

func (k ServerKey) String() string {
	return k.Stripe + "/" + k.Server
}

// StripeName returns the stripe label of a 1-based stripe index
func StripeName(idx int) string {
	return fmt.Sprintf("stripe-%d", idx)
}

// ServerName returns the default name of a server slot, both indexes are 1-based
func ServerName(stripe, server int) string {
	return fmt.Sprintf("stripe-%d-server-%d", stripe, server)
}

// NewTopology builds a stripes x servers grid with every default filled in
func NewTopology(stripes, servers int, baseDir string) *Topology {
	topo := &Topology{
		GlobalOptions: &GlobalOptions{BaseDir: baseDir},
	}
	if baseDir != "" {
		topo.GlobalOptions.ClusterName = filepath.Base(baseDir)
	}
	for r := 0; r < stripes; r++ {
		stripe := &StripeOptions{}
		for c := 0; c < servers; c++ {
			stripe.Servers = append(stripe.Servers, &ServerOptions{})
		}
		topo.Stripes = append(topo.Stripes, stripe)
	}
	FillTopologyDefaults(topo)
	return topo
}

// ClusterName returns the configured cluster name
func (t *Topology) ClusterName() string {
	if t.GlobalOptions == nil || t.GlobalOptions.ClusterName == "" {
		return DefaultClusterName
	}
	return t.GlobalOptions.ClusterName
}

// BaseDir returns the base location of logs and data
func (t *Topology) BaseDir() string {
	if t.GlobalOptions == nil {
		return ""
	}
	return t.GlobalOptions.BaseDir
}

// DataRootsEnabled reports whether data roots are configured
func (t *Topology) DataRootsEnabled() bool {
	return t.DataRoots != nil && t.DataRoots.Enabled
}

// ServerSecurityRootDir returns the server security root directory, empty when disabled
func (t *Topology) ServerSecurityRootDir() string {
	if t.Security == nil {
		return ""
	}
	return t.Security.ServerRootDir
}

// ClientSecurityRootDir returns the client security root directory, empty when disabled
func (t *Topology) ClientSecurityRootDir() string {
	if t.Security == nil {
		return ""
	}
	return t.Security.ClientRootDir
}

// Failover returns the failover mode, availability when unset
func (t *Topology) Failover() FailoverMode {
	if t.FailoverPriority == nil || t.FailoverPriority.Mode == "" {
		return FailoverAvailability
	}
	return t.FailoverPriority.Mode
}

// ResolvedDataRoots returns the data directories in emission order: PLATFORM when
// persistence is on, the user roots, then BACKUP when backups are on
func (t *Topology) ResolvedDataRoots() []*DataRoot {
	if !t.DataRootsEnabled() {
		return nil
	}
	base := t.BaseDir()
	var roots []*DataRoot
	if t.DataRoots.PlatformPersistence {
		roots = append(roots, &DataRoot{Role: DataRootPlatform, ID: string(DataRootPlatform), Path: filepath.Join(base, DataDirName, PlatformDirName)})
	}
	for _, r := range t.DataRoots.Roots {
		if r.Role != "" && r.Role != DataRootUser {
			continue
		}
		roots = append(roots, &DataRoot{Role: DataRootUser, ID: r.ID, Path: r.Path})
	}
	if t.DataRoots.PlatformBackup {
		roots = append(roots, &DataRoot{Role: DataRootBackup, ID: string(DataRootBackup), Path: filepath.Join(base, DataDirName, BackupDirName)})
	}
	return roots
}

// Clone returns a deep copy, the generator and the watcher never share a topology
func (t *Topology) Clone() *Topology {
	c := &Topology{}
	if t.GlobalOptions != nil {
		g := *t.GlobalOptions
		c.GlobalOptions = &g
	}
	for _, o := range t.OffheapResources {
		r := *o
		c.OffheapResources = append(c.OffheapResources, &r)
	}
	if t.DataRoots != nil {
		d := *t.DataRoots
		d.Roots = nil
		for _, r := range t.DataRoots.Roots {
			root := *r
			d.Roots = append(d.Roots, &root)
		}
		c.DataRoots = &d
	}
	if t.Security != nil {
		s := *t.Security
		c.Security = &s
	}
	if t.FailoverPriority != nil {
		f := *t.FailoverPriority
		c.FailoverPriority = &f
	}
	for _, st := range t.Stripes {
		stripe := &StripeOptions{}
		for _, s := range st.Servers {
			srv := *s
			stripe.Servers = append(stripe.Servers, &srv)
		}
		c.Stripes = append(c.Stripes, stripe)
	}
	return c
}
