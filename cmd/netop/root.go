// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogama/netop"
	"github.com/gogama/netop/config"
	"github.com/gogama/netop/request"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by all commands.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "netop",
		Short: "Execute API requests through a netop Operator",
		Long: `netop encodes a request descriptor, sends it with retries on
429 and 503 responses, and prints the response body.

Configuration is read from the file named by --config, and any key can
be overridden with a NETOP_ environment variable (NETOP_BASE_URL,
NETOP_AUTH_TOKEN, NETOP_RETRY_MAX_COUNT, ...).`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every request event")
	root.AddCommand(newDoCmd(a), newSignUpCmd(a))
	return root
}

func (a *app) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) operator() (*netop.Operator, error) {
	op, err := a.cfg.Operator(a.logger)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		h := netop.LogHandler(a.logger)
		op.Handlers = &netop.HandlerGroup{}
		for _, evt := range netop.Events() {
			op.Handlers.PushBack(evt, h)
		}
	}
	return op, nil
}

// run executes d and writes the response body to the command's
// output. Upload progress goes to the command's error output when
// showProgress is set.
func (a *app) run(cmd *cobra.Command, d request.Descriptor, showProgress bool) error {
	a.cfg.Apply(&d)
	op, err := a.operator()
	if err != nil {
		return err
	}
	defer func() { _ = op.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	type result struct {
		body []byte
		err  error
	}
	ch := make(chan result, 1)
	c := netop.Call{
		Descriptor: d,
		OnComplete: func(_ uuid.UUID, body []byte, err error) {
			ch <- result{body, err}
		},
	}
	if showProgress {
		w := cmd.ErrOrStderr()
		c.OnProgress = func(_ uuid.UUID, sent, total int64) {
			_, _ = fmt.Fprintf(w, "uploaded %d/%d bytes\n", sent, total)
		}
	}
	op.Submit(c)

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		op.Cancel(d.ID)
		return errors.Wrap(context.Cause(ctx), "request interrupted")
	}
	if r.err != nil {
		return errors.Wrapf(r.err, "%s %s", d.Method, d.Path)
	}
	_, err = cmd.OutOrStdout().Write(r.body)
	return err
}
