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
	"fmt"

	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/configutil"
	"github.com/wentaojin/pounder/utils/stringutil"
)

// Options represents the batch operation options
type Options struct {
	// Nodes filters the servers by server or stripe name, empty means all
	Nodes []string
	// Force keeps going when one server fails
	Force bool
	// Concurrency bounds the servers handled in parallel
	Concurrency int
}

func (o *Options) concurrency() int {
	if o == nil || o.Concurrency <= 0 {
		return configutil.DefaultConcurrency
	}
	return o.Concurrency
}

// Operation represents the kind of batch operation
type Operation byte

const (
	StartOperation Operation = iota
	StopOperation
	RestartOperation
)

var opStringify = [...]string{
	"StartOperation",
	"StopOperation",
	"RestartOperation",
}

func (op Operation) String() string {
	if op <= RestartOperation {
		return opStringify[op]
	}
	return fmt.Sprintf("unknonw-op(%d)", op)
}

// FilterInstance returns the servers selected by options.Nodes, naming a server or
// stripe that is not in the topology is an error
func FilterInstance(topo *cluster.Topology, options *Options) ([]*cluster.Instance, error) {
	if options == nil || len(options.Nodes) == 0 {
		return topo.Instances(), nil
	}
	known := topo.InstanceNames()
	for i := range topo.Stripes {
		known = append(known, cluster.StripeName(i+1))
	}
	if unknown := stringutil.StringItemsFilterDifference(options.Nodes, known); len(unknown) > 0 {
		return nil, errors.Errorf("unknown server or stripe %v, the topology has %v", unknown, topo.InstanceNames())
	}
	return topo.FilterInstances(options.Nodes), nil
}
