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
	"strconv"
	"strings"

	"github.com/scylladb/go-set"
)

var offheapUnits = set.NewStringSet("B", "kB", "MB", "GB", "TB", "PB")

// Validate checks the topology before anything is generated. enterprise enables the
// edition gated parts: data roots, security and more than one stripe.
func (t *Topology) Validate(enterprise bool) error {
	if t.GlobalOptions == nil {
		return &ValidationError{Field: "global", Reason: "missing global options"}
	}
	if err := ValidateClusterNameOrError(t.ClusterName()); err != nil {
		return &ValidationError{Field: "global.cluster_name", Value: t.ClusterName(), Reason: err.Error()}
	}
	if w := t.GlobalOptions.ReconnectWindow; w < MinReconnectWindow || w > MaxReconnectWindow {
		return &ValidationError{
			Field:  "global.reconnect_window",
			Value:  strconv.Itoa(w),
			Reason: fmt.Sprintf("must be within [%d, %d] seconds", MinReconnectWindow, MaxReconnectWindow),
		}
	}

	if err := t.validateOffheaps(); err != nil {
		return err
	}
	if err := t.validateDataRoots(enterprise); err != nil {
		return err
	}
	if err := t.validateFailover(); err != nil {
		return err
	}
	if !enterprise && (t.ServerSecurityRootDir() != "" || t.ClientSecurityRootDir() != "") {
		return &ValidationError{Field: "security", Reason: "security requires an enterprise kit"}
	}
	return t.validateServers(enterprise)
}

func (t *Topology) validateOffheaps() error {
	names := set.NewStringSet()
	for i, o := range t.OffheapResources {
		field := fmt.Sprintf("offheap_resources[%d]", i)
		if strings.TrimSpace(o.Name) == "" {
			return &ValidationError{Field: field + ".name", Reason: "offheap resource name must not be empty"}
		}
		if names.Has(o.Name) {
			return &ValidationError{Field: field + ".name", Value: o.Name, Reason: "duplicate offheap resource name"}
		}
		names.Add(o.Name)
		if o.Size <= 0 {
			return &ValidationError{Field: field + ".size", Value: strconv.Itoa(o.Size), Reason: "size must be a positive integer"}
		}
		if !offheapUnits.Has(o.Unit) {
			return &ValidationError{Field: field + ".unit", Value: o.Unit, Reason: fmt.Sprintf("unit must be one of %v", []string{"B", "kB", "MB", "GB", "TB", "PB"})}
		}
	}
	return nil
}

func (t *Topology) validateDataRoots(enterprise bool) error {
	if !t.DataRootsEnabled() {
		return nil
	}
	if !enterprise {
		return &ValidationError{Field: "data_roots.enabled", Value: "true", Reason: "data roots require an enterprise kit"}
	}
	ids := set.NewStringSet(string(DataRootPlatform), string(DataRootBackup))
	for i, r := range t.DataRoots.Roots {
		field := fmt.Sprintf("data_roots.roots[%d]", i)
		if r.Role != "" && r.Role != DataRootUser {
			return &ValidationError{Field: field + ".role", Value: string(r.Role), Reason: "PLATFORM and BACKUP come from platform_persistence and platform_backup"}
		}
		if strings.TrimSpace(r.ID) == "" {
			return &ValidationError{Field: field + ".id", Reason: "data root id must not be empty"}
		}
		if ids.Has(r.ID) {
			return &ValidationError{Field: field + ".id", Value: r.ID, Reason: "duplicate or reserved data root id"}
		}
		ids.Add(r.ID)
		if strings.TrimSpace(r.Path) == "" {
			return &ValidationError{Field: field + ".path", Value: r.ID, Reason: "data root path must not be empty"}
		}
	}
	return nil
}

func (t *Topology) validateFailover() error {
	switch t.Failover() {
	case FailoverAvailability:
		return nil
	case FailoverConsistency:
		if _, err := t.VoterCount(); err != nil {
			return err
		}
		return nil
	default:
		return &ValidationError{
			Field:  "failover_priority.mode",
			Value:  string(t.FailoverPriority.Mode),
			Reason: fmt.Sprintf("must be %s or %s", FailoverAvailability, FailoverConsistency),
		}
	}
}

// VoterCount parses the consistency voter count
func (t *Topology) VoterCount() (int, error) {
	voters := ""
	if t.FailoverPriority != nil {
		voters = strings.TrimSpace(t.FailoverPriority.Voters)
	}
	n, err := strconv.Atoi(voters)
	if err != nil {
		return 0, &ValidationError{Field: "failover_priority.voters", Value: voters, Reason: "voter count must be an integer"}
	}
	if n <= 0 {
		return 0, &ValidationError{Field: "failover_priority.voters", Value: voters, Reason: "voter count must be positive"}
	}
	return n, nil
}

func (t *Topology) validateServers(enterprise bool) error {
	if len(t.Stripes) == 0 {
		return &ValidationError{Field: "stripes", Reason: "at least one stripe is required"}
	}
	if !enterprise && len(t.Stripes) > 1 {
		return &ValidationError{Field: "stripes", Value: strconv.Itoa(len(t.Stripes)), Reason: "an open source kit only supports one stripe"}
	}
	names := set.NewStringSet()
	for r, stripe := range t.Stripes {
		if len(stripe.Servers) == 0 {
			return &ValidationError{Field: fmt.Sprintf("stripes[%d].servers", r), Reason: "a stripe needs at least one server"}
		}
		for c, s := range stripe.Servers {
			field := fmt.Sprintf("stripes[%d].servers[%d]", r, c)
			if strings.TrimSpace(s.Name) == "" {
				return &ValidationError{Field: field + ".name", Reason: "server name must not be empty"}
			}
			if names.Has(s.Name) {
				return &ValidationError{Field: field + ".name", Value: s.Name, Reason: "server names must be unique in the whole topology"}
			}
			names.Add(s.Name)
			if s.Port <= 0 || s.Port > 65535 {
				return &ValidationError{Field: field + ".port", Value: strconv.Itoa(s.Port), Reason: "not a valid port"}
			}
			if s.GroupPort <= 0 || s.GroupPort > 65535 {
				return &ValidationError{Field: field + ".group_port", Value: strconv.Itoa(s.GroupPort), Reason: "not a valid port"}
			}
		}
	}
	return nil
}
