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
	"context"
	"os"
	"strings"

	"github.com/pingcap/errors"
	"github.com/spf13/cobra"

	"github.com/wentaojin/pounder/component"
	"github.com/wentaojin/pounder/signal"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/cluster/operator"
)

type AppTool struct {
	*App
	server string
}

func (a *App) AppTool() component.Cmder {
	return &AppTool{App: a}
}

func (a *AppTool) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:              "tool <" + strings.Join(toolCommandNames(), "|") + ">",
		Short:            "Run one cluster tool command against the topology",
		Long:             "Run one cluster tool command against the topology, stream its output and exit with its status",
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
		ValidArgs:        toolCommandNames(),
	}
	c.Flags().StringVarP(&a.server, "server", "s", "", "only ask this server, status command only")
	return c
}

func (a *AppTool) RunE(cmd *cobra.Command, args []string) error {
	if shouldContinue, err := cluster.CheckCommandArgsAndMayPrintHelp(cmd, args, 1); !shouldContinue {
		return err
	}
	toolCmd, err := operator.ParseToolCommand(args[0])
	if err != nil {
		return err
	}
	if a.server != "" && toolCmd != operator.ToolStatus {
		return errors.Errorf("--server is only supported by the status command")
	}

	ctl, err := a.NewController()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signal.SetupSignalHandler(cancel)

	main := ctl.Consoles.Main()
	main.AddMirror(os.Stdout)
	defer main.RemoveMirror(os.Stdout)

	proc, err := ctl.RunTool(ctx, toolCmd, a.server)
	if err != nil {
		return err
	}
	if err := proc.Wait(ctx); err != nil {
		if errors.Cause(err) == context.Canceled {
			_ = proc.Terminate()
		}
		return errors.Annotatef(err, "cluster tool %s", toolCmd)
	}
	return nil
}

func toolCommandNames() []string {
	names := make([]string, 0, len(operator.ToolCommands))
	for _, c := range operator.ToolCommands {
		names = append(names, string(c))
	}
	return names
}
