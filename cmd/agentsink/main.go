// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package main runs a stand-in Jaeger agent that decodes the emitBatch
// datagrams sent by the tracing transport and reports what it received.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jaegerlite/tracing/config"
)

const usage = `[OPTIONS]

agentsink listens for Jaeger agent emitBatch datagrams (Thrift compact
protocol over UDP), decodes them, and logs a summary of every batch. With
--otlp each batch is also written to stdout as OTLP JSON, one document per
line.

Prometheus metrics are served on --metrics-addr at /metrics.

--env-usage prints the environment variables understood by the tracing
configuration and exits.`

// envLogLevelKey is the environment variable holding the log level used
// when --log-level is not set.
const envLogLevelKey = "TRACING_LOG_LEVEL"

// Options are the command line arguments.
type Options struct {
	Listen      string `long:"listen" short:"l" description:"UDP address to receive batches on" default:"127.0.0.1:6831"`
	MetricsAddr string `long:"metrics-addr" description:"HTTP address serving /metrics, empty to disable" default:"127.0.0.1:9464"`
	OTLP        bool   `long:"otlp" description:"Write every batch to stdout as OTLP JSON"`
	LogLevel    string `long:"log-level" description:"Logging level (debug, info, warn, error)"`
	EnvUsage    bool   `long:"env-usage" description:"Print the tracing environment variables and exit"`
	Version     bool   `long:"version" short:"v" description:"Print the version and exit"`
}

func parseOptions(args []string) (*Options, error) {
	opts := new(Options)
	parser := flags.NewParser(opts, flags.Default)
	parser.Usage = usage
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func newLogger(lvlStr string) *slog.Logger {
	levelVar := new(slog.LevelVar) // Default value of info.
	opts := &slog.HandlerOptions{AddSource: true, Level: levelVar}
	h := slog.NewJSONHandler(os.Stderr, opts)
	logger := slog.New(h)

	if lvlStr == "" {
		lvlStr = os.Getenv(envLogLevelKey)
	}

	if lvlStr == "" {
		return logger
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(lvlStr)); err != nil {
		logger.Error("failed to parse log level", "error", err, "log-level", lvlStr)
	} else {
		levelVar.Set(level)
	}

	return logger
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	switch {
	case opts.Version:
		fmt.Println(newVersion())
		return
	case opts.EnvUsage:
		config.Usage(os.Stdout)
		return
	}

	logger := newLogger(opts.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("agent sink failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, opts *Options) error {
	addr, err := net.ResolveUDPAddr("udp", opts.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", opts.Listen, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	sink := NewSink(conn, logger, reg)
	if opts.OTLP {
		sink.out = os.Stdout
	}

	if opts.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	logger.Info(
		"agent sink listening",
		"addr", conn.LocalAddr().String(),
		"metrics", opts.MetricsAddr,
		"version", newVersion().String(),
	)
	err = sink.Run(ctx)
	logger.Info("shutting down")
	return err
}
