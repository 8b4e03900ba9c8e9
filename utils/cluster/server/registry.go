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
package server

import (
	"context"
	"sort"
	"sync"

	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/utils/cluster"
)

// ErrAlreadyRunning is returned when a slot already has a live supervisor
var ErrAlreadyRunning = errors.New("server is already running")

// Registry maps server slots to their live supervisors, at most one per slot
type Registry struct {
	m sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register stores sup under key unless the slot is taken
func (r *Registry) Register(key cluster.ServerKey, sup *Supervisor) error {
	if _, loaded := r.m.LoadOrStore(key, sup); loaded {
		return errors.Annotatef(ErrAlreadyRunning, "server [%s]", key)
	}
	return nil
}

// Unregister removes the slot whatever supervisor holds it
func (r *Registry) Unregister(key cluster.ServerKey) {
	r.m.Delete(key)
}

// Release removes the slot only while sup still holds it, a newer supervisor of the
// same slot is left alone
func (r *Registry) Release(key cluster.ServerKey, sup *Supervisor) bool {
	return r.m.CompareAndDelete(key, sup)
}

func (r *Registry) Lookup(key cluster.ServerKey) (*Supervisor, bool) {
	v, ok := r.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Supervisor), true
}

func (r *Registry) Range(fn func(key cluster.ServerKey, sup *Supervisor) bool) {
	r.m.Range(func(k, v any) bool {
		return fn(k.(cluster.ServerKey), v.(*Supervisor))
	})
}

func (r *Registry) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Keys returns the registered slots sorted by stripe then server name
func (r *Registry) Keys() []cluster.ServerKey {
	var keys []cluster.ServerKey
	r.Range(func(key cluster.ServerKey, _ *Supervisor) bool {
		keys = append(keys, key)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Stripe != keys[j].Stripe {
			return keys[i].Stripe < keys[j].Stripe
		}
		return keys[i].Server < keys[j].Server
	})
	return keys
}

// Launch registers sup and starts it, a start failure leaves no registry entry
func (r *Registry) Launch(ctx context.Context, sup *Supervisor) error {
	key := sup.Key()
	if err := r.Register(key, sup); err != nil {
		return err
	}
	if err := sup.Start(ctx); err != nil {
		r.Release(key, sup)
		return err
	}
	return nil
}
