/*
SPDX-FileCopyrightText: 2026 no8s contributors
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/no8s/no8s/internal/admission"
	"github.com/no8s/no8s/internal/config"
	"github.com/no8s/no8s/internal/eventbus"
	"github.com/no8s/no8s/internal/gateway"
	"github.com/no8s/no8s/internal/httpapi"
	"github.com/no8s/no8s/internal/scheduler"
	"github.com/no8s/no8s/internal/store"
	"github.com/no8s/no8s/pkg/action"
	"github.com/no8s/no8s/pkg/reconciler"
)

func main() {
	cmd := newControllerCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newControllerCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "no8s-controller",
		Short:        "Control plane for declaratively managed external resources",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cfg, newLogger(cfg.LogLevel))
		},
	}
}

// newLogger builds a logr.Logger where V(n) maps onto zap debug levels.
func newLogger(verbosity int) logr.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapLog, err := zapCfg.Build()
	if err != nil {
		panic(err)
	}
	return zapr.NewLogger(zapLog)
}

func run(cfg *config.Config, log logr.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer st.Close()

	bus := eventbus.New(cfg.EventQueueSize, log)
	defer bus.Close()

	actions := action.NewRegistry()
	registry := reconciler.NewRegistry(log)

	chain := admission.NewChain(st, nil, log)
	gw := gateway.New(st, registry, chain, bus, log)

	rctx := scheduler.NewReconcilerContext(st, actions, cfg.DriftInterval, ctx.Done(), log)
	sched := scheduler.New(st, registry, bus, rctx, scheduler.Config{
		Interval:      cfg.ReconcileInterval,
		MaxConcurrent: cfg.MaxConcurrentReconciles,
		DriftInterval: cfg.DriftInterval,
		BackoffBase:   cfg.BackoffBaseDelay,
		BackoffCap:    cfg.BackoffMaxDelay,
		ShutdownGrace: cfg.ShutdownGrace,
	}, log)

	server := httpapi.NewServer(gw, st, bus, httpapi.Options{
		CORSEnabled:        cfg.CORSEnabled,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, log)

	registry.StartAll(ctx, rctx)
	defer registry.StopAll(cfg.ShutdownGrace)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		return server.Serve(gctx, fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort))
	})

	log.Info("controller started", "addr", fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort))
	err = g.Wait()
	log.Info("controller stopped")
	return err
}
