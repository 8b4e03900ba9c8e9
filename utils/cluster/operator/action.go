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
	"sync"

	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/logger"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/stringutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	actionPrevMsgs = map[string]string{
		"start":   "Starting",
		"stop":    "Stopping",
		"restart": "Restarting",
	}
	actionPostMsgs = map[string]string{}
)

func init() {
	for action := range actionPrevMsgs {
		actionPostMsgs[action] = stringutil.StringTitle(action)
	}
}

// ServerController starts and stops single servers by name. StopServer returns once
// the server exited.
type ServerController interface {
	StartServer(ctx context.Context, name string) error
	StopServer(ctx context.Context, name string) error
}

// Start starts the selected servers
func Start(ctx context.Context, topo *cluster.Topology, ctl ServerController, options *Options) error {
	insts, err := FilterInstance(topo, options)
	if err != nil {
		return err
	}
	return runAction(ctx, "start", insts, options, ctl.StartServer)
}

// Stop stops the selected servers
func Stop(ctx context.Context, topo *cluster.Topology, ctl ServerController, options *Options) error {
	insts, err := FilterInstance(topo, options)
	if err != nil {
		return err
	}
	return runAction(ctx, "stop", insts, options, ctl.StopServer)
}

// Restart stops then starts the selected servers
func Restart(ctx context.Context, topo *cluster.Topology, ctl ServerController, options *Options) error {
	if err := Stop(ctx, topo, ctl, options); err != nil {
		return errors.Annotatef(err, "failed to stop")
	}
	if err := Start(ctx, topo, ctl, options); err != nil {
		return errors.Annotatef(err, "failed to start")
	}
	return nil
}

// runAction applies fn to every instance with bounded parallelism. Without Force the
// first failure cancels the servers not started yet, with Force every server is tried
// and the failures are returned together.
func runAction(ctx context.Context, action string, insts []*cluster.Instance, options *Options, fn func(context.Context, string) error) error {
	if len(insts) == 0 {
		return nil
	}
	force := options != nil && options.Force

	errg, nctx := errgroup.WithContext(ctx)
	errg.SetLimit(options.concurrency())

	var (
		mu     sync.Mutex
		failed []string
	)
	for _, ins := range insts {
		inst := ins
		errg.Go(func() error {
			if !force && nctx.Err() != nil {
				return nctx.Err()
			}
			logger.Info(actionPrevMsgs[action]+" server", zap.String("server", inst.Key().String()))
			if err := fn(nctx, inst.Name); err != nil {
				err = toFailedActionError(err, action, inst)
				if !force {
					return err
				}
				logger.Warn("server action failed, continuing", zap.String("action", action), zap.Error(err))
				mu.Lock()
				failed = append(failed, err.Error())
				mu.Unlock()
				return nil
			}
			logger.Info(actionPostMsgs[action]+" server success", zap.String("server", inst.Key().String()))
			return nil
		})
	}
	if err := errg.Wait(); err != nil {
		return err
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d servers failed to %s: %v", len(failed), len(insts), action, failed)
	}
	return nil
}

// toFailedActionError formats the errror msg for failed action
func toFailedActionError(err error, action string, inst *cluster.Instance) error {
	return errors.Annotatef(err,
		"failed to %s: %s, please check the server's log (%s) for more detail.",
		action, inst.Key(), inst.LogDir,
	)
}
