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
	"github.com/wentaojin/pounder/utils/stringutil"
)

// Instance is one server slot with its stripe position resolved
type Instance struct {
	*ServerOptions
	// StripeIndex and ServerIndex are 1-based
	StripeIndex int
	ServerIndex int
}

func (i *Instance) StripeName() string {
	return StripeName(i.StripeIndex)
}

// Key returns the registry key of the slot
func (i *Instance) Key() ServerKey {
	return ServerKey{Stripe: i.StripeName(), Server: i.Name}
}

// Endpoint returns the client host:port of the slot
func (i *Instance) Endpoint() string {
	return stringutil.JoinHostPort(i.Host, i.Port)
}

// Instances returns every server slot in definition order, stripe by stripe
func (t *Topology) Instances() []*Instance {
	var ins []*Instance
	for r, stripe := range t.Stripes {
		for c, s := range stripe.Servers {
			ins = append(ins, &Instance{ServerOptions: s, StripeIndex: r + 1, ServerIndex: c + 1})
		}
	}
	return ins
}

// IterInstance iterates all instances in definition order
func (t *Topology) IterInstance(fn func(inst *Instance)) {
	for _, inst := range t.Instances() {
		fn(inst)
	}
}

// FindInstance looks a slot up by server name
func (t *Topology) FindInstance(name string) (*Instance, bool) {
	for _, inst := range t.Instances() {
		if inst.Name == name {
			return inst, true
		}
	}
	return nil, false
}

// Endpoints returns the client host:port of every slot in definition order
func (t *Topology) Endpoints() []string {
	var eps []string
	t.IterInstance(func(inst *Instance) {
		eps = append(eps, inst.Endpoint())
	})
	return eps
}

// InstanceNames returns every server name in definition order
func (t *Topology) InstanceNames() []string {
	var names []string
	t.IterInstance(func(inst *Instance) {
		names = append(names, inst.Name)
	})
	return names
}

// FilterInstances keeps the slots whose server or stripe name is listed, no filter keeps all
func (t *Topology) FilterInstances(names []string) []*Instance {
	all := t.Instances()
	if len(names) == 0 {
		return all
	}
	var kept []*Instance
	for _, inst := range all {
		if stringutil.IsContainedString(names, inst.Name) || stringutil.IsContainedString(names, inst.StripeName()) {
			kept = append(kept, inst)
		}
	}
	return kept
}
