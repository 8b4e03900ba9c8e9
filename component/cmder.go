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
package component

import (
	"github.com/spf13/cobra"
)

// Cmder is implemented by every command of the application tree
type Cmder interface {
	Cmd() *cobra.Command
	RunE(*cobra.Command, []string) error
}

// Command is a cobra command built from a Cmder, sub commands hang off it
type Command struct {
	*cobra.Command
}

// WrapCmd builds the cobra command of c
func WrapCmd(c Cmder) *Command {
	return &Command{Command: c.Cmd()}
}

// AddCommand attaches the sub commands and returns the parent for chaining
func (c *Command) AddCommand(subs ...*Command) *Command {
	for _, s := range subs {
		c.Command.AddCommand(s.Command)
	}
	return c
}
