// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package main runs a small gin service traced to a Jaeger agent. It serves
// GET /orders/:id, recording a database query span, an optional redis
// lookup, and an optional call to an upstream inventory service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/config"
)

// Options are the command line arguments.
type Options struct {
	Addr        string `long:"addr" description:"HTTP address to serve on" default:"127.0.0.1:8080"`
	Config      string `long:"config" short:"c" description:"YAML tracing configuration; TRACING_* variables override it. Without a file only the environment is read"`
	WriteConfig string `long:"write-config" description:"Write the effective tracing configuration to this file and exit"`
	Upstream    string `long:"upstream" description:"Base URL of the inventory service called for every order"`
	Redis       string `long:"redis" description:"Address of a redis server caching orders"`
}

func main() {
	opts := new(Options)
	if _, err := flags.NewParser(opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadEnv()
	}
	return config.Load(path)
}

func run(ctx context.Context, opts *Options) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	if opts.WriteConfig != "" {
		f, err := os.Create(opts.WriteConfig)
		if err != nil {
			return err
		}
		defer f.Close()
		return config.Write(cfg, f)
	}

	tr, err := tracing.New(ctx, tracing.WithConfig(cfg), tracing.WithRegisterer(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	logger := tr.Logger()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tr.Shutdown(sctx); err != nil {
			logger.Error("failed to flush spans", "error", err)
		}
	}()

	var rdb *redis.Client
	if opts.Redis != "" {
		rdb = redis.NewClient(&redis.Options{Addr: opts.Redis})
		defer rdb.Close()
	}

	engine := newEngine(tr, &app{upstream: opts.Upstream, rdb: rdb})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: opts.Addr, Handler: engine, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("tracedemo listening", "addr", opts.Addr, "agent", cfg.AgentEndpoint(), "tracing", tr.Enabled())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
