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
package manager

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/cluster/operator"
	"github.com/wentaojin/pounder/utils/cluster/server"
	"github.com/wentaojin/pounder/utils/configutil"
	"github.com/wentaojin/pounder/utils/console"
	"github.com/wentaojin/pounder/utils/executor"
	"go.uber.org/zap"
)

// Controller owns one session: the topology, the kit, the live servers, their
// consoles and the stripe config files
type Controller struct {
	Kit       *cluster.Kit
	Opts      *configutil.PounderOptions
	Registry  *server.Registry
	Consoles  *console.Consoles
	Bus       EventBus.Bus
	Events    *server.Dispatcher
	Refresher *server.Refresher
	Logger    *zap.Logger
	Runner    server.Runner

	mu        sync.RWMutex
	topo      *cluster.Topology
	artifacts map[int]string
	force     bool

	genMu sync.Mutex
}

// New builds a controller for a validated topology
func New(topo *cluster.Topology, kit *cluster.Kit, opts *configutil.PounderOptions, l *zap.Logger) (*Controller, error) {
	if opts == nil {
		opts = configutil.DefaultPounderConfig()
	}
	if l == nil {
		l = logger.GetRootLogger()
	}
	if err := topo.Validate(kit.Enterprise()); err != nil {
		return nil, err
	}
	registry := server.NewRegistry()
	bus := server.NewBus()
	c := &Controller{
		Kit:       kit,
		Opts:      opts,
		Registry:  registry,
		Consoles:  console.NewConsoles(opts.ConsoleMaxLines, opts.ConsoleDir),
		Bus:       bus,
		Events:    server.NewDispatcher(bus, l),
		Refresher: server.NewRefresher(registry, opts.ConsoleRefreshInterval, l),
		Logger:    l,
		Runner:    &executor.Local{Logger: l},
		topo:      topo,
		artifacts: make(map[int]string),
	}
	return c, nil
}

// Open starts the console refresher
func (c *Controller) Open() error {
	return c.Refresher.Start()
}

// Close stops every server, flushes the remaining output and closes the console files
func (c *Controller) Close(ctx context.Context) error {
	err := c.StopAll(ctx)
	c.Refresher.Stop()
	c.Refresher.RefreshAll()
	c.Events.Close()
	if cerr := c.Consoles.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Topology returns the current topology, it must not be modified
func (c *Controller) Topology() *cluster.Topology {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topo
}

// SetTopology replaces the topology after validating it. Running servers keep the
// settings they were started with.
func (c *Controller) SetTopology(topo *cluster.Topology) error {
	if err := topo.Validate(c.Kit.Enterprise()); err != nil {
		return err
	}
	c.mu.Lock()
	c.topo = topo
	c.mu.Unlock()
	return nil
}

// SetForceOverwrite sets the overwrite policy of on demand generation
func (c *Controller) SetForceOverwrite(force bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.force = force
}

func (c *Controller) ForceOverwrite() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.force
}

// Generate writes the stripe config files of the current topology into the kit
func (c *Controller) Generate(force bool) (*cluster.GenerateResult, error) {
	c.genMu.Lock()
	defer c.genMu.Unlock()

	topo := c.Topology()
	res, err := cluster.GenerateArtifacts(topo, cluster.GenerateOptions{
		KitDir:         c.Kit.Path,
		ForceOverwrite: force,
		Enterprise:     c.Kit.Enterprise(),
	})
	if err != nil {
		return nil, err
	}

	artifacts := make(map[int]string, len(res.Artifacts))
	for _, a := range res.Artifacts {
		artifacts[a.StripeIndex] = a.Path
	}
	c.mu.Lock()
	c.artifacts = artifacts
	c.mu.Unlock()

	for _, n := range res.Notices {
		c.Logger.Info("stripe config", zap.String("stripe", n.Stripe), zap.String("result", n.String()))
	}
	return res, nil
}

// ResolveArtifact returns the config file of a stripe, generating the files when it
// is missing
func (c *Controller) ResolveArtifact(stripe int) (string, error) {
	c.mu.RLock()
	path, ok := c.artifacts[stripe]
	c.mu.RUnlock()
	if ok {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	c.Logger.Info("stripe config not found, generating it", zap.String("stripe", cluster.StripeName(stripe)))
	if _, err := c.Generate(c.ForceOverwrite()); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	path, ok = c.artifacts[stripe]
	if !ok {
		return "", errors.Errorf("topology has no %s", cluster.StripeName(stripe))
	}
	return path, nil
}

// ArtifactPaths returns the config file of every stripe, generating them when needed
func (c *Controller) ArtifactPaths() ([]string, error) {
	var paths []string
	for i := range c.Topology().Stripes {
		p, err := c.ResolveArtifact(i + 1)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (c *Controller) instance(name string) (*cluster.Instance, error) {
	inst, ok := c.Topology().FindInstance(name)
	if !ok {
		return nil, errors.Errorf("server [%s] is not in the topology, the topology has %v", name, c.Topology().InstanceNames())
	}
	return inst, nil
}

func (c *Controller) newSupervisor(inst *cluster.Instance) *server.Supervisor {
	srd := ""
	if c.Kit.Enterprise() {
		srd = c.Topology().ClientSecurityRootDir()
	}
	return server.NewSupervisor(inst, server.Config{
		Kit:                   c.Kit,
		Runner:                c.Runner,
		Resolver:              c,
		Bus:                   c.Bus,
		Dispatcher:            c.Events,
		Sink:                  c.Consoles.Get(inst.Name),
		Logger:                c.Logger,
		ClientSecurityRootDir: srd,
		PidPollInterval:       c.Opts.PidPollInterval,
		StartTimeout:          c.Opts.StartTimeout,
		StopTimeout:           c.Opts.StopTimeout,
		KillTimeout:           c.Opts.KillTimeout,
		OnStopped:             c.onStopped,
	})
}

func (c *Controller) onStopped(key cluster.ServerKey, sup *server.Supervisor) {
	sup.RefreshConsole()
	c.Registry.Release(key, sup)
}

// StartServer launches one server by name, a server already running is an error
// wrapping server.ErrAlreadyRunning
func (c *Controller) StartServer(ctx context.Context, name string) error {
	inst, err := c.instance(name)
	if err != nil {
		return err
	}
	return c.Registry.Launch(ctx, c.newSupervisor(inst))
}

// StopServer stops one server and waits for its exit, a server that is not running
// is left alone
func (c *Controller) StopServer(ctx context.Context, name string) error {
	inst, err := c.instance(name)
	if err != nil {
		return err
	}
	sup, ok := c.Registry.Lookup(inst.Key())
	if !ok {
		return nil
	}
	if err = sup.Stop(); err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.Opts.StopTimeout+c.Opts.KillTimeout+time.Second)
	defer cancel()
	if err = sup.Wait(wctx); err != nil {
		return errors.Annotatef(err, "wait for server [%s] to stop", inst.Key())
	}
	return nil
}

// RestartServer stops then starts one server
func (c *Controller) RestartServer(ctx context.Context, name string) error {
	if err := c.StopServer(ctx, name); err != nil {
		return err
	}
	return c.StartServer(ctx, name)
}

// StartAll starts every server of the topology that is not running yet
func (c *Controller) StartAll(ctx context.Context) error {
	var names []string
	for _, inst := range c.Topology().Instances() {
		if _, ok := c.Registry.Lookup(inst.Key()); !ok {
			names = append(names, inst.Name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return operator.Start(ctx, c.Topology(), c, c.operatorOptions(names, false))
}

// StopAll stops every running server, including servers no longer in the topology
func (c *Controller) StopAll(ctx context.Context) error {
	keys := c.Registry.Keys()
	if len(keys) == 0 {
		return nil
	}
	c.Logger.Info("stopping all servers", zap.Int("count", len(keys)))
	sups := make([]*server.Supervisor, 0, len(keys))
	for _, key := range keys {
		if sup, ok := c.Registry.Lookup(key); ok {
			_ = sup.Stop()
			sups = append(sups, sup)
		}
	}
	wctx, cancel := context.WithTimeout(ctx, c.Opts.StopTimeout+c.Opts.KillTimeout+time.Second)
	defer cancel()

	var failed []string
	for _, sup := range sups {
		if err := sup.Wait(wctx); err != nil {
			failed = append(failed, sup.Key().String())
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("servers %v did not stop in time", failed)
	}
	return nil
}

// StartNodes starts the named servers or stripes
func (c *Controller) StartNodes(ctx context.Context, nodes []string) error {
	return operator.Start(ctx, c.Topology(), c, c.operatorOptions(nodes, false))
}

// StopNodes stops the named servers or stripes
func (c *Controller) StopNodes(ctx context.Context, nodes []string) error {
	return operator.Stop(ctx, c.Topology(), c, c.operatorOptions(nodes, false))
}

// RestartNodes restarts the named servers or stripes, no name restarts every server
func (c *Controller) RestartNodes(ctx context.Context, nodes []string) error {
	return operator.Restart(ctx, c.Topology(), c, c.operatorOptions(nodes, false))
}

func (c *Controller) operatorOptions(nodes []string, force bool) *operator.Options {
	return &operator.Options{
		Nodes:       nodes,
		Force:       force,
		Concurrency: c.Opts.Concurrency,
	}
}

// ClusterTool returns a cluster tool bound to the current topology
func (c *Controller) ClusterTool() *operator.ClusterTool {
	topo := c.Topology()
	srd := ""
	if c.Kit.Enterprise() {
		srd = topo.ClientSecurityRootDir()
	}
	return &operator.ClusterTool{
		Kit:             c.Kit,
		ClusterName:     topo.ClusterName(),
		LicensePath:     c.Opts.LicensePath,
		SecurityRootDir: srd,
		Runner:          c.Runner,
		Consoles:        c.Consoles,
		Logger:          c.Logger,
	}
}

// RunTool runs a cluster tool command against the whole topology. A status command
// with a server name only asks that server.
func (c *Controller) RunTool(ctx context.Context, cmd operator.ToolCommand, serverName string) (*executor.Process, error) {
	tool := c.ClusterTool()
	switch cmd {
	case operator.ToolConfigure, operator.ToolReconfigure:
		// stripe configs are only generated once the tool can run
		if err := tool.CheckConfigure(cmd); err != nil {
			return nil, err
		}
		paths, err := c.ArtifactPaths()
		if err != nil {
			return nil, err
		}
		if cmd == operator.ToolConfigure {
			return tool.Configure(ctx, paths)
		}
		return tool.Reconfigure(ctx, paths)
	case operator.ToolStatus:
		if serverName != "" {
			inst, err := c.instance(serverName)
			if err != nil {
				return nil, err
			}
			return tool.ServerStatus(ctx, inst.Endpoint())
		}
		return tool.Status(ctx, c.Topology().Endpoints())
	case operator.ToolBackup:
		return tool.Backup(ctx, c.Topology().Endpoints())
	case operator.ToolDump:
		return tool.Dump(ctx, c.Topology().Endpoints())
	case operator.ToolStop:
		return tool.Stop(ctx, c.Topology().Endpoints())
	default:
		return nil, errors.Errorf("unknown cluster tool command [%s]", cmd)
	}
}
