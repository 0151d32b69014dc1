// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package redistrace records redis commands as spans on the request stack.
package redistrace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
)

// Span attribute keys.
const (
	KeySystem    = attribute.Key("db.system")
	KeyStatement = attribute.Key("db.statement")
	KeyNumCmd    = attribute.Key("db.redis.num_cmd")
	KeyPeer      = attribute.Key("net.peer.name")
)

// Hook is a redis.Hook starting a client span for every command, pipeline
// and dial made with a context carrying a [tracing.Stack]. Commands made
// without a stack are not traced.
//
// Each span is started on a fork of the request stack, so commands issued
// concurrently from one request are siblings.
//
// Command arguments are recorded only when the tracer is in debug mode;
// otherwise the statement is the command name.
type Hook struct {
	service string
	debug   bool
}

var _ redis.Hook = (*Hook)(nil)

// NewHook returns a Hook reporting spans under the minor service name
// service, "redis" if empty.
func NewHook(t *tracing.Tracer, service string) *Hook {
	if service == "" {
		service = "redis"
	}
	return &Hook{service: service, debug: t.Config().Debug}
}

// Instrument adds a Hook to rdb.
func Instrument(t *tracing.Tracer, rdb redis.UniversalClient, service string) {
	rdb.AddHook(NewHook(t, service))
}

func (h *Hook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		stack, ok := tracing.StackFromContextOK(ctx)
		if !ok {
			return next(ctx, network, addr)
		}
		fork := stack.Fork()
		span := h.start(ctx, fork, "redis.dial")
		span.SetAttributes(KeyPeer.String(addr))
		defer fork.EndCurrentSpan()
		ctx = tracing.ContextWithStack(ctx, fork)

		conn, err := next(ctx, network, addr)
		recordErr(span, err)
		return conn, err
	}
}

func (h *Hook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		stack, ok := tracing.StackFromContextOK(ctx)
		if !ok {
			return next(ctx, cmd)
		}
		fork := stack.Fork()
		span := h.start(ctx, fork, cmd.FullName())
		span.SetAttributes(KeyStatement.String(h.statement(cmd)))
		defer fork.EndCurrentSpan()
		ctx = tracing.ContextWithStack(ctx, fork)

		err := next(ctx, cmd)
		recordErr(span, err)
		return err
	}
}

func (h *Hook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		stack, ok := tracing.StackFromContextOK(ctx)
		if !ok {
			return next(ctx, cmds)
		}

		names := make([]string, 0, len(cmds))
		statements := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.FullName())
			statements = append(statements, h.statement(cmd))
		}
		fork := stack.Fork()
		span := h.start(ctx, fork, "pipeline "+strings.Join(names, " "))
		span.SetAttributes(
			KeyStatement.String(strings.Join(statements, "\n")),
			KeyNumCmd.Int(len(cmds)),
		)
		defer fork.EndCurrentSpan()
		ctx = tracing.ContextWithStack(ctx, fork)

		err := next(ctx, cmds)
		recordErr(span, err)
		return err
	}
}

func (h *Hook) start(ctx context.Context, stack *tracing.Stack, name string) *tracing.Span {
	span := stack.StartSpan(name, trace.SpanContextFromContext(ctx), trace.SpanKindClient)
	span.SetAttributes(
		KeySystem.String("redis"),
		tracing.ServiceMinorKey.String(h.service),
	)
	return span
}

func (h *Hook) statement(cmd redis.Cmder) string {
	if !h.debug {
		return cmd.FullName()
	}
	args := cmd.Args()
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}

// recordErr marks span as failed. A missing key is not a failure.
func recordErr(span *tracing.Span, err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
