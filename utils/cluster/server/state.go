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

import "fmt"

// State is the lifecycle state of a supervised server slot
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var stateNames = [...]string{"STOPPED", "STARTING", "RUNNING", "STOPPING"}

func (s State) String() string {
	if s >= StateStopped && s <= StateStopping {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown-state(%d)", int32(s))
}

// Live reports whether a process may be attached to the slot
func (s State) Live() bool {
	return s == StateStarting || s == StateRunning
}
