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

	"github.com/pingcap/errors"
)

// ValidationError reports a topology value that cannot be turned into a configuration
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid topology field [%s] value [%s]: %s", e.Field, e.Value, e.Reason)
}

// ConfigWriteError reports an artifact that could not be written
type ConfigWriteError struct {
	Path string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("write configuration file [%s] failed: %v", e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether the cause of err is a *ValidationError
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// IsConfigWriteError reports whether the cause of err is a *ConfigWriteError
func IsConfigWriteError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigWriteError)
	return ok
}
