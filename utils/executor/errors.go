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
package executor

import (
	"fmt"

	"github.com/pingcap/errors"
)

// SpawnError is returned synchronously when a command could not be launched
type SpawnError struct {
	Command string
	WorkDir string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn [%s] in [%s]: %v", e.Command, e.WorkDir, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// IsSpawnError reports whether the cause of err is a *SpawnError
func IsSpawnError(err error) bool {
	_, ok := errors.Cause(err).(*SpawnError)
	return ok
}
