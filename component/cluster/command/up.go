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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wentaojin/pounder/component"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/signal"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/configutil"
	"github.com/wentaojin/pounder/utils/console"
	"github.com/wentaojin/pounder/utils/stringutil"
)

type AppUp struct {
	*App
	startAll   bool
	follow     bool
	watch      bool
	watchForce bool

	consoleDir      string
	consoleMaxLines int
	refreshInterval time.Duration
	startTimeout    time.Duration
}

func (a *App) AppUp() component.Cmder {
	return &AppUp{App: a}
}

func (a *AppUp) Cmd() *cobra.Command {
	c := &cobra.Command{
		Use:              "up",
		Short:            "Open an interactive session on the cluster",
		Long:             "Open an interactive session on the cluster, every server still running is stopped when the session ends",
		RunE:             a.RunE,
		TraverseChildren: true,
		SilenceUsage:     true,
	}
	c.Flags().BoolVar(&a.startAll, "start-all", false, "start every server once the session is open")
	c.Flags().BoolVar(&a.follow, "follow", false, "print the output of every console, prefixed by its name")
	c.Flags().BoolVar(&a.watch, "watch", false, "reload the topology file and regenerate the stripe config files when it changes")
	c.Flags().BoolVar(&a.watchForce, "watch-force", false, "overwrite the existing stripe config files on reload and on start")
	c.Flags().StringVar(&a.consoleDir, "console-dir", "", "also write every console into <console-dir>/<name>.log")
	c.Flags().IntVar(&a.consoleMaxLines, "console-max-lines", 0, "max lines kept in memory per console, 0 keeps every line")
	c.Flags().DurationVar(&a.refreshInterval, "refresh-interval", configutil.DefaultConsoleRefreshInterval, "interval of the server console refresh")
	c.Flags().DurationVar(&a.startTimeout, "start-timeout", configutil.DefaultStartTimeout, "time a server may take to report progress after its launch")
	return c
}

func (a *AppUp) RunE(cmd *cobra.Command, args []string) error {
	var opts []configutil.PounderOption
	flags := cmd.Flags()
	if flags.Changed("console-dir") {
		opts = append(opts, configutil.WithConsoleDir(a.consoleDir))
	}
	if flags.Changed("console-max-lines") {
		opts = append(opts, configutil.WithConsoleMaxLines(a.consoleMaxLines))
	}
	if flags.Changed("refresh-interval") {
		opts = append(opts, configutil.WithConsoleRefreshInterval(a.refreshInterval))
	}
	if flags.Changed("start-timeout") {
		opts = append(opts, configutil.WithStartTimeout(a.startTimeout))
	}
	a.Config().Pounder.Apply(opts...)

	ctl, err := a.NewController()
	if err != nil {
		return err
	}
	ctl.SetForceOverwrite(a.watchForce)
	if err = ctl.Open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signal.SetupSignalHandler(cancel)

	out := color.Output
	sess := NewSession(ctl, out)
	if a.follow {
		ctl.Consoles.Follow(&lockedWriter{mu: &sess.mu, w: out}, followWidth(ctl.Topology()))
	}
	if err = sess.Attach(a.follow); err != nil {
		return err
	}
	ctl.Display(out)

	if a.watch {
		file := a.Config().Pounder.TopologyFile
		if file == "" {
			return errors.New("--watch needs a topology file, use --topology or topology-file in the settings file")
		}
		w, err := ctl.WatchTopology(file, func(res *cluster.GenerateResult, err error) {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			if err != nil {
				fmt.Fprintln(out, color.RedString("topology reload failed, the previous topology stays: %v", err))
				return
			}
			fmt.Fprintln(out, color.CyanString("topology %s reloaded", file))
			printNotices(out, res)
		})
		if err != nil {
			return err
		}
		defer w.Close()
	}

	if a.startAll {
		if err = ctl.StartAll(ctx); err != nil {
			printError(out, err)
		}
	}

	a.loop(ctx, sess, out)

	cancel()
	logger.Info("session ending, stopping every server", zap.Int("running", ctl.Registry.Len()))
	sess.Detach()
	ctl.Consoles.Unfollow()
	sctx, scancel := context.WithTimeout(context.Background(),
		ctl.Opts.StopTimeout+ctl.Opts.KillTimeout+5*time.Second)
	defer scancel()
	return ctl.Close(sctx)
}

// loop reads commands until quit, end of input or a signal
func (a *AppUp) loop(ctx context.Context, sess *Session, out io.Writer) {
	lines := make(chan string)
	go readLines(lines)

	interactive := stringutil.IsTerminal(os.Stdin)
	for {
		if interactive {
			fmt.Fprint(out, "pounder> ")
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			quit, err := sess.Execute(ctx, line)
			if err != nil {
				sess.mu.Lock()
				printError(out, err)
				sess.mu.Unlock()
			}
			if quit {
				return
			}
		}
	}
}

// readLines forwards the stdin lines, the channel is closed at end of input
func readLines(lines chan<- string) {
	defer close(lines)
	r := stringutil.StdinReader()
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" || err == nil {
			lines <- line
		}
		if err != nil {
			return
		}
	}
}

// followWidth is the display width of the longest console name
func followWidth(topo *cluster.Topology) int {
	width := runewidth.StringWidth(console.MainConsole)
	for _, name := range topo.InstanceNames() {
		if w := runewidth.StringWidth(name); w > width {
			width = w
		}
	}
	return width
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, color.RedString("Error: %v", err))
}
