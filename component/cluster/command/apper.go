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
	"path/filepath"

	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/cluster/manager"
	"github.com/wentaojin/pounder/utils/configutil"
	"github.com/wentaojin/pounder/version"
)

// App is the root command, its flags are shared by every sub command
type App struct {
	ConfigFile   string
	TopologyFile string
	KitPath      string
	LicensePath  string
	Edition      string
	Stripes      int
	Servers      int
	BaseDir      string
	ClusterName  string
	LogLevel     string
	LogFile      string
	Concurrency  int
	SkipConfirm  bool
	Version      bool

	cfg *configutil.Config
}

func (a *App) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:               "pounder",
		Short:             "the launcher of a local multi stripe terracotta cluster",
		PersistentPreRunE: a.PersistentPreRunE,
		RunE:              a.RunE,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	c.PersistentFlags().StringVar(&a.ConfigFile, "config", "", "the settings file path, toml format")
	c.PersistentFlags().StringVarP(&a.TopologyFile, "topology", "t", "", "the topology file path, yaml format, overrides the default grid")
	c.PersistentFlags().StringVar(&a.KitPath, "kit-path", "", "the terracotta kit installation directory")
	c.PersistentFlags().StringVar(&a.LicensePath, "license-path", "", "the license file used by the cluster tool configure command")
	c.PersistentFlags().StringVar(&a.Edition, "edition", "", "the kit edition: auto, enterprise or opensource")
	c.PersistentFlags().IntVar(&a.Stripes, "stripes", 1, "number of stripes of the default grid")
	c.PersistentFlags().IntVar(&a.Servers, "servers", 1, "number of servers per stripe of the default grid")
	c.PersistentFlags().StringVar(&a.BaseDir, "base-dir", "", "the base location of logs and data of the default grid")
	c.PersistentFlags().StringVar(&a.ClusterName, "cluster-name", "", "the cluster name")
	c.PersistentFlags().StringVar(&a.LogLevel, "log-level", "", "the log level: debug, info, warn, error")
	c.PersistentFlags().StringVar(&a.LogFile, "log-file", "", "the log file path")
	c.PersistentFlags().IntVarP(&a.Concurrency, "concurrency", "c", configutil.DefaultConcurrency, "max number of servers started or stopped in parallel")
	c.PersistentFlags().BoolVar(&a.SkipConfirm, "skip-confirm", false, "the operation skip confirm, always yes")
	c.Flags().BoolVarP(&a.Version, "version", "v", false, "version for pounder")
	return c
}

func (a *App) PersistentPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := configutil.Load(a.ConfigFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	var opts []configutil.PounderOption
	if flags.Changed("kit-path") {
		opts = append(opts, configutil.WithKitPath(a.KitPath))
	}
	if flags.Changed("license-path") {
		opts = append(opts, configutil.WithLicensePath(a.LicensePath))
	}
	if flags.Changed("edition") {
		opts = append(opts, configutil.WithEdition(a.Edition))
	}
	if flags.Changed("topology") {
		opts = append(opts, configutil.WithTopologyFile(a.TopologyFile))
	}
	if flags.Changed("concurrency") {
		opts = append(opts, configutil.WithConcurrency(a.Concurrency))
	}
	cfg.Pounder.Apply(opts...)

	if flags.Changed("log-level") {
		cfg.LogConfig.LogLevel = a.LogLevel
	}
	if flags.Changed("log-file") {
		cfg.LogConfig.LogFile = a.LogFile
	}
	if cfg.LogConfig.LogFile == "" {
		cfg.LogConfig.LogFile = filepath.Join(cluster.UserHome(), ".pounder", "pounder.log")
	}
	cfg.LogConfig.Console = true

	logger.NewRootLogger(cfg.LogConfig)
	version.RecordAppVersion("pounder", cfg.String())
	a.cfg = cfg
	return nil
}

func (a *App) RunE(cmd *cobra.Command, args []string) error {
	if a.Version {
		fmt.Println(version.GetRawVersionInfo())
		return nil
	}
	return cmd.Help()
}

// Config returns the settings resolved by PersistentPreRunE
func (a *App) Config() *configutil.Config {
	if a.cfg == nil {
		a.cfg = configutil.NewConfig()
	}
	return a.cfg
}

// LoadTopology reads the topology file when one is set, otherwise builds the default
// stripes x servers grid
func (a *App) LoadTopology() (*cluster.Topology, error) {
	if a.ClusterName != "" {
		if err := cluster.ValidateClusterNameOrError(a.ClusterName); err != nil {
			return nil, err
		}
	}

	var topo *cluster.Topology
	if file := a.Config().Pounder.TopologyFile; file != "" {
		t, err := cluster.ParseTopologyYaml(file)
		if err != nil {
			return nil, err
		}
		topo = t
	} else {
		if a.Stripes < 1 || a.Servers < 1 {
			return nil, errors.Errorf("the grid needs at least one stripe and one server, got %d x %d", a.Stripes, a.Servers)
		}
		name := a.ClusterName
		if name == "" {
			name = cluster.DefaultClusterName
		}
		base := a.BaseDir
		if base == "" {
			base = filepath.Join(cluster.UserHome(), "terracotta", name)
		}
		topo = cluster.NewTopology(a.Stripes, a.Servers, base)
	}
	if a.ClusterName != "" {
		topo.GlobalOptions.ClusterName = a.ClusterName
	}
	return topo, nil
}

// DetectKit inspects the configured kit directory
func (a *App) DetectKit() (*cluster.Kit, error) {
	opts := a.Config().Pounder
	if opts.KitPath == "" {
		return nil, errors.New("the kit path is not set, use --kit-path or kit-path in the settings file")
	}
	return cluster.DetectKit(opts.KitPath, opts.Edition)
}

// NewController builds the session controller of the resolved topology and kit
func (a *App) NewController() (*manager.Controller, error) {
	kit, err := a.DetectKit()
	if err != nil {
		return nil, err
	}
	topo, err := a.LoadTopology()
	if err != nil {
		return nil, err
	}
	ctl, err := manager.New(topo, kit, a.Config().Pounder, logger.GetRootLogger())
	if err != nil {
		return nil, err
	}
	logger.Info("cluster session prepared",
		zap.String("cluster", topo.ClusterName()),
		zap.String("kit", kit.Path),
		zap.String("edition", string(kit.Edition)),
		zap.Int("stripes", len(topo.Stripes)))
	return ctl, nil
}
