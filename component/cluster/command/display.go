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
package command

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wentaojin/pounder/component"
)

type AppDisplay struct {
	*App
}

func (a *App) AppDisplay() component.Cmder {
	return &AppDisplay{App: a}
}

func (a *AppDisplay) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:              "display",
		Short:            "Display the server slots of the topology",
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
	return c
}

func (a *AppDisplay) RunE(cmd *cobra.Command, args []string) error {
	ctl, err := a.NewController()
	if err != nil {
		return err
	}
	ctl.Display(os.Stdout)
	return nil
}
