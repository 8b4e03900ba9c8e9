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
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster/manager"
	"github.com/wentaojin/pounder/utils/cluster/operator"
	"github.com/wentaojin/pounder/utils/cluster/server"
)

const (
	allServers         = "all"
	defaultConsoleTail = 20
)

var sessionHelp = [][]string{
	{"start <name|stripe|all>", "start servers, missing stripe config files are generated first"},
	{"stop <name|stripe|all>", "stop servers"},
	{"restart <name|stripe|all>", "stop then start servers"},
	{"status [name]", "cluster tool status of the cluster or of one server"},
	{"configure", "cluster tool configure with every stripe config file"},
	{"reconfigure", "cluster tool reconfigure with every stripe config file"},
	{"backup", "cluster tool backup of every server"},
	{"dump", "cluster tool dump of every server"},
	{"shutdown", "cluster tool stop of every server"},
	{"generate [force]", "generate the stripe config files, force overwrites them"},
	{"console <name|main> [n]", "print the last n lines of a console, 0 prints all"},
	{"display", "display the server slots"},
	{"help", "print this help"},
	{"quit", "stop every server and leave"},
}

// Session interprets the interactive commands of `pounder up`
type Session struct {
	ctl *manager.Controller
	out io.Writer
	// mu serialises the writes of the prompt, the events and the tool watchers
	mu sync.Mutex

	unsubscribe func()
	mirror      io.Writer
	tools       sync.WaitGroup
}

func NewSession(ctl *manager.Controller, out io.Writer) *Session {
	return &Session{ctl: ctl, out: out}
}

// Attach prints the server events and, unless every console is followed already, the
// main console output
func (s *Session) Attach(followed bool) error {
	unsubscribe, err := server.Subscribe(s.ctl.Bus, s.printEvent)
	if err != nil {
		return errors.Annotate(err, "subscribe to server events")
	}
	s.unsubscribe = unsubscribe
	if !followed {
		s.mirror = &lockedWriter{mu: &s.mu, w: s.out}
		s.ctl.Consoles.Main().AddMirror(s.mirror)
	}
	return nil
}

// Detach waits for the running tool commands and stops printing
func (s *Session) Detach() {
	s.tools.Wait()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	if s.mirror != nil {
		s.ctl.Consoles.Main().RemoveMirror(s.mirror)
		s.mirror = nil
	}
}

// Execute runs one input line, quit reports that the session should end
func (s *Session) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	logger.Debug("session command", zap.String("command", name), zap.Strings("args", args))

	switch name {
	case "start", "stop", "restart":
		if len(args) == 0 {
			return false, errors.Errorf("usage: %s <name|stripe|all>", name)
		}
		return false, s.control(ctx, operationOf(name), args)
	case "status":
		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		return false, s.tool(ctx, operator.ToolStatus, target)
	case "configure", "reconfigure", "backup", "dump":
		cmd, err := operator.ParseToolCommand(name)
		if err != nil {
			return false, err
		}
		return false, s.tool(ctx, cmd, "")
	case "shutdown":
		return false, s.tool(ctx, operator.ToolStop, "")
	case "generate":
		force := len(args) > 0 && strings.EqualFold(args[0], "force")
		res, err := s.ctl.Generate(force)
		if err != nil {
			return false, err
		}
		s.mu.Lock()
		printNotices(s.out, res)
		s.mu.Unlock()
		return false, nil
	case "console":
		return false, s.console(args)
	case "display":
		s.mu.Lock()
		s.ctl.Display(s.out)
		s.mu.Unlock()
		return false, nil
	case "help", "?":
		s.help()
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, errors.Errorf("unknown command [%s], type help for the command list", name)
	}
}

func operationOf(name string) operator.Operation {
	switch name {
	case "stop":
		return operator.StopOperation
	case "restart":
		return operator.RestartOperation
	default:
		return operator.StartOperation
	}
}

func (s *Session) control(ctx context.Context, op operator.Operation, args []string) error {
	if len(args) == 1 && args[0] == allServers {
		switch op {
		case operator.StopOperation:
			return s.ctl.StopAll(ctx)
		case operator.RestartOperation:
			return s.ctl.RestartNodes(ctx, nil)
		default:
			return s.ctl.StartAll(ctx)
		}
	}
	switch op {
	case operator.StopOperation:
		return s.ctl.StopNodes(ctx, args)
	case operator.RestartOperation:
		return s.ctl.RestartNodes(ctx, args)
	default:
		return s.ctl.StartNodes(ctx, args)
	}
}

// tool starts a cluster tool command and reports its outcome once it exited, the
// prompt stays available meanwhile
func (s *Session) tool(ctx context.Context, cmd operator.ToolCommand, serverName string) error {
	proc, err := s.ctl.RunTool(ctx, cmd, serverName)
	if err != nil {
		return err
	}
	s.tools.Add(1)
	go func() {
		defer s.tools.Done()
		err := proc.Wait(ctx)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			fmt.Fprintln(s.out, color.RedString("cluster tool %s failed: %v", cmd, err))
			return
		}
		fmt.Fprintln(s.out, color.GreenString("cluster tool %s finished", cmd))
	}()
	return nil
}

func (s *Session) console(args []string) error {
	name := s.ctl.Consoles.Active()
	if len(args) > 0 {
		name = args[0]
	}
	n := defaultConsoleTail
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return errors.Errorf("console line count [%s] is not a non-negative number", args[1])
		}
		n = v
	}
	sink, ok := s.ctl.Consoles.Lookup(name)
	if !ok {
		return errors.Errorf("unknown console [%s], consoles are %v", name, s.ctl.Consoles.Names())
	}
	s.ctl.Refresher.RefreshAll()
	s.ctl.Consoles.SetActive(name)

	var lines []string
	if n == 0 {
		lines = sink.Snapshot()
	} else {
		lines = sink.Tail(n)
	}
	total := sink.Total()

	// the sink lock must not be taken under s.mu, its mirrors take s.mu
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, color.CyanString("==> %s (%d lines) <==", name, total))
	for _, line := range lines {
		fmt.Fprintln(s.out, line)
	}
	return nil
}

func (s *Session) help() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range sessionHelp {
		fmt.Fprintf(s.out, "  %-28s %s\n", h[0], h[1])
	}
}

// printEvent runs on the dispatcher goroutine of a supervisor
func (s *Session) printEvent(e server.Event) {
	var msg string
	switch e.Kind {
	case server.EventState:
		msg = fmt.Sprintf("%s is %s", e.Key.Server, colorState(e.State))
	case server.EventPid:
		msg = fmt.Sprintf("%s pid %d", e.Key.Server, e.Pid)
	case server.EventServerState:
		msg = fmt.Sprintf("%s moved to %s", e.Key.Server, color.CyanString(e.ServerState))
	case server.EventFailed:
		msg = color.RedString("%s failed: %v", e.Key.Server, e.Err)
	case server.EventCompleted:
		if e.Err == nil {
			return
		}
		msg = color.YellowString("%s exited: %v", e.Key.Server, e.Err)
	default:
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s %s\n", e.Time.Format("15:04:05"), msg)
}

func colorState(st server.State) string {
	switch st {
	case server.StateRunning:
		return color.GreenString(st.String())
	case server.StateStarting, server.StateStopping:
		return color.YellowString(st.String())
	default:
		return color.RedString(st.String())
	}
}

// lockedWriter shares the session lock with the console mirror
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
