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
	"reflect"
	"strconv"

	"github.com/pingcap/errors"
	"gopkg.in/yaml.v2"
)

// ReadYamlFile read yaml content from file
func ReadYamlFile(file string) ([]byte, error) {
	yamlFile, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Annotatef(err, "read topology yaml file [%s] failed", file)
	}
	return yamlFile, nil
}

// ParseTopologyYaml read yaml content from `file`, unmarshal it strictly and fill the defaults
func ParseTopologyYaml(file string) (*Topology, error) {
	yamlFile, err := ReadYamlFile(file)
	if err != nil {
		return nil, err
	}
	topo, err := ParseTopology(yamlFile)
	if err != nil {
		return nil, errors.Annotatef(err, "please check the syntax of your topology file [%s] and try again", file)
	}
	return topo, nil
}

// ParseTopology unmarshals topology yaml content and fills the defaults
func ParseTopology(content []byte) (*Topology, error) {
	topo := &Topology{}
	if err := yaml.UnmarshalStrict(content, topo); err != nil {
		return nil, errors.Annotate(err, "parse topology yaml failed")
	}
	FillTopologyDefaults(topo)
	return topo, nil
}

// MarshalTopology renders the topology back to yaml
func MarshalTopology(topo *Topology) ([]byte, error) {
	data, err := yaml.Marshal(topo)
	if err != nil {
		return nil, errors.Annotate(err, "marshal topology yaml failed")
	}
	return data, nil
}

// FillTopologyDefaults fills every unset field: `default` struct tags first, then the
// per slot names, log directories and ports derived from the slot position
func FillTopologyDefaults(topo *Topology) {
	if topo.GlobalOptions == nil {
		topo.GlobalOptions = &GlobalOptions{}
	}
	if topo.FailoverPriority == nil {
		topo.FailoverPriority = &FailoverOptions{}
	}
	if len(topo.OffheapResources) == 0 {
		topo.OffheapResources = []*OffheapResource{{Name: DefaultOffheapName, Size: DefaultOffheapSize}}
	}
	setDefaults(reflect.ValueOf(topo))

	g := topo.GlobalOptions
	if g.BaseDir == "" {
		g.BaseDir = filepath.Join(UserHome(), "terracotta", g.ClusterName)
	}

	if topo.DataRoots != nil {
		for i, r := range topo.DataRoots.Roots {
			if r.Role == "" {
				r.Role = DataRootUser
			}
			if r.ID == "" {
				r.ID = "dataroot-" + strconv.Itoa(i+1)
			}
			if r.Path == "" {
				r.Path = filepath.Join(g.BaseDir, DataDirName, r.ID)
			}
		}
	}

	for r, stripe := range topo.Stripes {
		for c, s := range stripe.Servers {
			FillServerDefaults(g, s, r+1, c+1)
		}
	}
}

// FillServerDefaults fills one server slot, stripe and server are 1-based
func FillServerDefaults(g *GlobalOptions, s *ServerOptions, stripe, server int) {
	if s.Name == "" {
		s.Name = ServerName(stripe, server)
	}
	if s.Host == "" {
		s.Host = g.Host
	}
	if s.LogDir == "" {
		s.LogDir = filepath.Join(g.BaseDir, LogDirName, s.Name)
	} else if !filepath.IsAbs(s.LogDir) {
		s.LogDir = filepath.Join(g.BaseDir, s.LogDir)
	}
	if s.Port == 0 {
		s.Port = DefaultClientPortBase + (stripe-1)*10 + (server - 1)
	}
	if s.GroupPort == 0 {
		s.GroupPort = DefaultGroupPortBase + (stripe-1)*10 + (server - 1)
	}
}

// setDefaults walks structs, pointers and slices and sets zero string and int fields
// from their `default` tag
func setDefaults(v reflect.Value) {
	switch v.Kind() {
	case reflect.Ptr:
		if !v.IsNil() {
			setDefaults(v.Elem())
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			setDefaults(v.Index(i))
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			field := v.Field(i)
			if !field.CanSet() {
				continue
			}
			def, ok := t.Field(i).Tag.Lookup("default")
			if !ok || !field.IsZero() {
				setDefaults(field)
				continue
			}
			switch field.Kind() {
			case reflect.String:
				field.SetString(def)
			case reflect.Int, reflect.Int64:
				if n, err := strconv.ParseInt(def, 10, 64); err == nil {
					field.SetInt(n)
				}
			}
		}
	}
}
