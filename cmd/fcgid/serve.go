// Copyright 2015 Light Code Labs, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kylixfans/fcgid/fastcgi"
	fcgidlog "github.com/kylixfans/fcgid/internal/log"
	"github.com/kylixfans/fcgid/internal/metrics"
)

type serveFlags struct {
	port         int
	logLevel     string
	logFormat    string
	logFile      string
	readTimeout  time.Duration
	drainTimeout time.Duration
	metricsAddr  string
}

// newServeCmd builds the `serve` subcommand: binds the configured port and
// blocks until SIGINT/SIGTERM, analogous to `caddy run` rather than a
// detached `caddy start`.
func newServeCmd() *cobra.Command {
	fl := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind a port and serve FastCGI requests until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(fl)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&fl.port, "port", 9000, "TCP port to bind on 127.0.0.1")
	flags.StringVar(&fl.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&fl.logFormat, "log-format", "console", "log format: console, json")
	flags.StringVar(&fl.logFile, "log-file", "", "if set, additionally write rotated JSON logs to this path")
	flags.DurationVar(&fl.readTimeout, "read-timeout", fastcgi.DefaultReadTimeout, "per-record read timeout on accepted connections")
	flags.DurationVar(&fl.drainTimeout, "drain-timeout", 10*time.Second, "how long to wait for in-flight connections to finish on shutdown")
	flags.StringVar(&fl.metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics at this address (e.g. 127.0.0.1:9090)")

	return cmd
}

func runServe(fl *serveFlags) error {
	logger, err := fcgidlog.New(fcgidlog.Config{
		Level:  fl.logLevel,
		Format: fcgidlog.Format(fl.logFormat),
		File:   fl.logFile,
	})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	reg := prometheus.NewRegistry()
	sink := metrics.NewRegistry(reg)

	if fl.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: fl.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close() //nolint:errcheck
		logger.Info("metrics endpoint listening", zap.String("addr", fl.metricsAddr))
	}

	ln := fastcgi.NewListener(fastcgi.ListenerConfig{
		ReadTimeout: fl.readTimeout,
		Logger:      logger,
		Metrics:     sink,
	})

	onIncoming, onReceived := loggingHandler(logger)
	if err := ln.SetHandlers(onIncoming, onReceived); err != nil {
		return err
	}

	if err := ln.Start(fl.port); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	logger.Info("fcgid serving", zap.Int("port", fl.port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), fl.drainTimeout)
	defer cancel()
	if err := ln.Stop(ctx); err != nil {
		logger.Warn("shutdown did not complete cleanly", zap.Error(err))
		return err
	}
	return nil
}
