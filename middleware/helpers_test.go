// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/config"
	"github.com/jaegerlite/tracing/export/jaeger"
)

// agent is a loopback socket receiving the tracer's emitBatch datagrams.
type agent struct {
	t    *testing.T
	conn *net.UDPConn
}

func (a *agent) receive() *jaeger.Batch {
	a.t.Helper()
	buf := make([]byte, jaeger.MaxUDPPacketSize)
	require.NoError(a.t, a.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := a.conn.ReadFromUDP(buf)
	require.NoError(a.t, err, "no datagram received")
	b, err := jaeger.DecodeEmitBatch(context.Background(), buf[:n])
	require.NoError(a.t, err)
	return b
}

func newAgent(t *testing.T) *agent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &agent{t: t, conn: conn}
}

func (a *agent) config() config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = a.conn.LocalAddr().(*net.UDPAddr).Port
	return cfg
}

func newTracer(t *testing.T, cfg config.Config) (*tracing.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tr, err := tracing.New(
		context.Background(),
		tracing.WithConfig(cfg),
		tracing.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		tracing.WithSpanExporter(exp),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func attr(s tracetest.SpanStub, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range s.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func spanNamed(t *testing.T, exp *tracetest.InMemoryExporter, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range exp.GetSpans() {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no span named %q", name)
	return tracetest.SpanStub{}
}
