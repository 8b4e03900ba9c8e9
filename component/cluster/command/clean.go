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

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wentaojin/pounder/component"
	"github.com/wentaojin/pounder/utils/cluster/manager"
	"github.com/wentaojin/pounder/utils/stringutil"
)

type AppClean struct {
	*App
	backupTo string
}

func (a *App) AppClean() component.Cmder {
	return &AppClean{App: a}
}

func (a *AppClean) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:              "clean",
		Short:            "Delete the logs and data of the cluster base location",
		Long:             "Delete the cluster base location, it must contain both a logs and a data directory",
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
	c.Flags().StringVar(&a.backupTo, "backup-to", "", "copy the base location into this directory before deleting it")
	return c
}

func (a *AppClean) RunE(cmd *cobra.Command, args []string) error {
	topo, err := a.LoadTopology()
	if err != nil {
		return err
	}
	base := topo.BaseDir()
	if err := manager.CheckCleanable(base); err != nil {
		return err
	}

	if !a.SkipConfirm {
		if err := stringutil.PromptForConfirmOrAbortError(
			"This operation will delete the base location %s of cluster %s, continue? [y/N]:",
			color.HiYellowString(base), color.HiYellowString(topo.ClusterName())); err != nil {
			return err
		}
	}

	backup, err := manager.CleanBaseLocation(base, a.backupTo)
	if err != nil {
		return err
	}
	if backup != "" {
		fmt.Printf("Base location copied to %s\n", color.CyanString(backup))
	}
	fmt.Printf("Base location %s deleted\n", color.CyanString(base))
	return nil
}
