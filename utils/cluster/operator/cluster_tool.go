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
package operator

import (
	"context"
	"sort"

	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/cluster/server"
	"github.com/wentaojin/pounder/utils/console"
	"github.com/wentaojin/pounder/utils/executor"
	"github.com/wentaojin/pounder/utils/stringutil"
	"go.uber.org/zap"
)

// ErrMissingPrerequisite is returned before anything is spawned when the cluster tool
// cannot run, such as a missing license or an open source kit
var ErrMissingPrerequisite = errors.New("missing prerequisite")

// ToolCommand is a cluster tool sub command
type ToolCommand string

const (
	ToolConfigure   ToolCommand = "configure"
	ToolReconfigure ToolCommand = "reconfigure"
	ToolBackup      ToolCommand = "backup"
	ToolDump        ToolCommand = "dump"
	ToolStatus      ToolCommand = "status"
	ToolStop        ToolCommand = "stop"
)

// ToolCommands lists the sub commands in menu order
var ToolCommands = []ToolCommand{ToolConfigure, ToolReconfigure, ToolBackup, ToolDump, ToolStatus, ToolStop}

// ParseToolCommand maps a command name to its sub command
func ParseToolCommand(name string) (ToolCommand, error) {
	for _, c := range ToolCommands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", errors.Errorf("unknown cluster tool command [%s], should be one of %v", name, ToolCommands)
}

// ClusterTool drives the kit's cluster tool against the running topology, its output
// is streamed into the main console
type ClusterTool struct {
	Kit         *cluster.Kit
	ClusterName string
	LicensePath string
	// SecurityRootDir is the client security root directory, added as -srd when set
	SecurityRootDir string
	Runner          server.Runner
	Consoles        *console.Consoles
	Logger          *zap.Logger
}

func (c *ClusterTool) baseArgs() []string {
	args := []string{c.Kit.ClusterToolScript()}
	if c.SecurityRootDir != "" {
		args = append(args, "-srd", c.SecurityRootDir)
	}
	return args
}

func (c *ClusterTool) checkKit() error {
	if c.Kit == nil || !c.Kit.Enterprise() {
		return errors.Annotate(ErrMissingPrerequisite, "the cluster tool needs an enterprise kit")
	}
	return nil
}

// CheckConfigure reports a missing enterprise kit or license before configure or
// reconfigure, nothing is generated or run
func (c *ClusterTool) CheckConfigure(cmd ToolCommand) error {
	if err := c.checkKit(); err != nil {
		return err
	}
	if cmd != ToolConfigure && cmd != ToolReconfigure {
		return errors.Errorf("[%s] is not a configure command", cmd)
	}
	if c.LicensePath == "" {
		return errors.Annotatef(ErrMissingPrerequisite, "%s needs a license file, set license-path", cmd)
	}
	if stringutil.IsPathNotExist(c.LicensePath) {
		return errors.Annotatef(ErrMissingPrerequisite, "license file [%s] does not exist", c.LicensePath)
	}
	return nil
}

// ConfigureCommand builds `<tool> configure|reconfigure -n <cluster> -l <license> <artifacts...>`
// with the artifact paths sorted
func (c *ClusterTool) ConfigureCommand(cmd ToolCommand, artifacts []string) (string, error) {
	if err := c.CheckConfigure(cmd); err != nil {
		return "", err
	}
	if len(artifacts) == 0 {
		return "", errors.Annotatef(ErrMissingPrerequisite, "%s needs the stripe config files, run generate first", cmd)
	}
	paths := append([]string(nil), artifacts...)
	sort.Strings(paths)

	args := append(c.baseArgs(), string(cmd), "-n", c.ClusterName, "-l", c.LicensePath)
	args = append(args, paths...)
	return executor.JoinArgs(args...), nil
}

// EndpointsCommand builds `<tool> backup|dump|status|stop -n <cluster> <host:port...>`
// keeping the endpoint order
func (c *ClusterTool) EndpointsCommand(cmd ToolCommand, endpoints []string) (string, error) {
	if err := c.checkKit(); err != nil {
		return "", err
	}
	switch cmd {
	case ToolBackup, ToolDump, ToolStatus, ToolStop:
	default:
		return "", errors.Errorf("[%s] does not take endpoints", cmd)
	}
	if len(endpoints) == 0 {
		return "", errors.Annotatef(ErrMissingPrerequisite, "%s needs at least one server endpoint", cmd)
	}
	args := append(c.baseArgs(), string(cmd), "-n", c.ClusterName)
	args = append(args, endpoints...)
	return executor.JoinArgs(args...), nil
}

// ServerStatusCommand builds `<tool> status -s <host:port>`
func (c *ClusterTool) ServerStatusCommand(endpoint string) (string, error) {
	if err := c.checkKit(); err != nil {
		return "", err
	}
	args := append(c.baseArgs(), string(ToolStatus), "-s", endpoint)
	return executor.JoinArgs(args...), nil
}

func (c *ClusterTool) Configure(ctx context.Context, artifacts []string) (*executor.Process, error) {
	cmdline, err := c.ConfigureCommand(ToolConfigure, artifacts)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, cmdline)
}

func (c *ClusterTool) Reconfigure(ctx context.Context, artifacts []string) (*executor.Process, error) {
	cmdline, err := c.ConfigureCommand(ToolReconfigure, artifacts)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, cmdline)
}

func (c *ClusterTool) Backup(ctx context.Context, endpoints []string) (*executor.Process, error) {
	return c.endpoints(ctx, ToolBackup, endpoints)
}

func (c *ClusterTool) Dump(ctx context.Context, endpoints []string) (*executor.Process, error) {
	return c.endpoints(ctx, ToolDump, endpoints)
}

func (c *ClusterTool) Status(ctx context.Context, endpoints []string) (*executor.Process, error) {
	return c.endpoints(ctx, ToolStatus, endpoints)
}

func (c *ClusterTool) Stop(ctx context.Context, endpoints []string) (*executor.Process, error) {
	return c.endpoints(ctx, ToolStop, endpoints)
}

// ServerStatus asks a single server for its status
func (c *ClusterTool) ServerStatus(ctx context.Context, endpoint string) (*executor.Process, error) {
	cmdline, err := c.ServerStatusCommand(endpoint)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, cmdline)
}

func (c *ClusterTool) endpoints(ctx context.Context, cmd ToolCommand, endpoints []string) (*executor.Process, error) {
	cmdline, err := c.EndpointsCommand(cmd, endpoints)
	if err != nil {
		return nil, err
	}
	return c.run(ctx, cmdline)
}

func (c *ClusterTool) log() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.GetRootLogger()
}

// run spawns cmdline in the kit directory, every output line goes to the main console
// and the main console becomes the active view once the tool exited
func (c *ClusterTool) run(ctx context.Context, cmdline string) (*executor.Process, error) {
	runner := c.Runner
	if runner == nil {
		runner = &executor.Local{Logger: c.Logger}
	}
	var main *console.Sink
	if c.Consoles != nil {
		main = c.Consoles.Main()
		main.Append("> " + cmdline)
	}

	l := c.log().With(zap.String("command", cmdline))
	l.Info("running cluster tool")
	proc, err := runner.Run(ctx, c.Kit.Path, cmdline,
		func(line string) {
			if main != nil {
				main.Append(line)
			}
		},
		func(exitErr error) {
			if exitErr != nil {
				l.Warn("cluster tool failed", zap.Error(exitErr))
			} else {
				l.Info("cluster tool finished")
			}
			if c.Consoles != nil {
				c.Consoles.SetActive(console.MainConsole)
			}
		})
	if err != nil {
		return nil, errors.Annotate(err, "run cluster tool")
	}
	return proc, nil
}
