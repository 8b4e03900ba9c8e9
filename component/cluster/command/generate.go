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
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wentaojin/pounder/component"
	"github.com/wentaojin/pounder/utils/cluster"
)

type AppGenerate struct {
	*App
	force bool
}

func (a *App) AppGenerate() component.Cmder {
	return &AppGenerate{App: a}
}

func (a *AppGenerate) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:              "generate",
		Short:            "Generate the stripe config files of the topology",
		Long:             "Generate one tc-config-stripe-<n>.xml per stripe into the kit directory, existing files are kept unless --force is given",
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
	c.Flags().BoolVarP(&a.force, "force", "f", false, "overwrite the existing stripe config files")
	return c
}

func (a *AppGenerate) RunE(cmd *cobra.Command, args []string) error {
	ctl, err := a.NewController()
	if err != nil {
		return err
	}
	res, err := ctl.Generate(a.force)
	if err != nil {
		return err
	}
	printNotices(os.Stdout, res)
	return nil
}

// printNotices reports the outcome of each stripe file, a kept file that differs from
// the topology is followed by its diff
func printNotices(w io.Writer, res *cluster.GenerateResult) {
	for _, n := range res.Notices {
		switch {
		case n.Kind == cluster.NoticeKept && n.Diverged:
			fmt.Fprintln(w, color.YellowString(n.String()))
			fmt.Fprintln(w, n.Diff)
		case n.Kind == cluster.NoticeKept:
			fmt.Fprintln(w, n.String())
		default:
			fmt.Fprintln(w, color.GreenString(n.String()))
		}
	}
}
