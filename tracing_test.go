// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing/config"
	"github.com/jaegerlite/tracing/filter"
	"github.com/jaegerlite/tracing/propagation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns an enabled configuration sending to a loopback agent
// socket owned by the test.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = conn.LocalAddr().(*net.UDPAddr).Port
	return cfg
}

func newTestTracer(t *testing.T, cfg config.Config, opts ...Option) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	opts = append([]Option{
		WithConfig(cfg),
		WithLogger(discardLogger()),
		WithSpanExporter(exp),
	}, opts...)
	tr, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	return tr, exp
}

func TestNew(t *testing.T) {
	cfg := testConfig(t)
	cfg.ServiceName = "orders"
	tr, _ := newTestTracer(t, cfg)

	assert.True(t, tr.Enabled())
	assert.Equal(t, "orders", tr.ServiceName())
	assert.Equal(t, cfg, tr.Config())
	assert.NotNil(t, tr.Logger())
	assert.NotNil(t, tr.TracerProvider())
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"NoHost", func(c *config.Config) { c.Host = "" }},
		{"NoPort", func(c *config.Config) { c.Port = 0 }},
		{"SamplingRate", func(c *config.Config) {
			c.Sampling = config.Sampling{Type: config.SamplingProbabilistic, Rate: 3}
		}},
		{"SamplingType", func(c *config.Config) { c.Sampling.Type = "adaptive" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			_, err := New(context.Background(), WithConfig(cfg), WithLogger(discardLogger()))
			assert.Error(t, err)
		})
	}
}

func TestNewDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Enabled = false
	tr, exp := newTestTracer(t, cfg)

	assert.False(t, tr.Enabled())
	stack := tr.NewStack()
	span := stack.StartSpan("GET /orders", trace.SpanContext{}, trace.SpanKindServer)
	assert.False(t, span.IsRecording())
	assert.True(t, stack.HasCurrentSpan(), "disabled stacks still track spans")
	stack.Stop()

	assert.Empty(t, exp.GetSpans())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	orig := newLogger
	t.Cleanup(func() { newLogger = orig })
	var gotLevel slog.Leveler
	newLogger = func(level slog.Leveler) *slog.Logger {
		gotLevel = level
		return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	}

	cfg := testConfig(t)
	cfg.LogLevel = "debug"
	tr, err := New(context.Background(), WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	assert.Equal(t, slog.LevelDebug, gotLevel)
	assert.Contains(t, buf.String(), "tracer created")
}

func TestWithEnv(t *testing.T) {
	cfg := testConfig(t)
	cfg.ServiceName = "from-env"

	origLoad, origLookup := loadEnv, lookupEnv
	t.Cleanup(func() { loadEnv, lookupEnv = origLoad, origLookup })
	lookupEnv = func(string) (string, bool) { return "", false }

	loadEnv = func() (config.Config, error) { return cfg, nil }
	tr, err := New(context.Background(), WithEnv(), WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })
	assert.Equal(t, "from-env", tr.ServiceName())

	loadEnv = func() (config.Config, error) { return config.Config{}, errors.New("bad env") }
	_, err = New(context.Background(), WithEnv(), WithLogger(discardLogger()))
	assert.ErrorContains(t, err, "bad env")
}

func TestWithEnvExporter(t *testing.T) {
	cfg := testConfig(t)
	origLoad, origLookup := loadEnv, lookupEnv
	t.Cleanup(func() { loadEnv, lookupEnv = origLoad, origLookup })
	loadEnv = func() (config.Config, error) { return cfg, nil }
	lookupEnv = func(key string) (string, bool) {
		return "console", key == envTracesExportersKey
	}
	t.Setenv(envTracesExportersKey, "none")

	var c tracerConfig
	c, err := WithEnv().apply(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, c.exporters, 1)
	assert.Equal(t, cfg, c.cfg)
}

func TestWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr, _ := newTestTracer(t, testConfig(t), WithRegisterer(reg))

	stack := tr.NewStack()
	stack.StartSpan("op", trace.SpanContext{}, trace.SpanKindInternal)
	stack.Stop()

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "jaeger_transport_spans_appended_total")
}

func TestWithRegistererSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, _ := newTestTracer(t, testConfig(t), WithRegisterer(reg))
	second, err := New(
		context.Background(),
		WithConfig(testConfig(t)),
		WithLogger(discardLogger()),
		WithRegisterer(reg),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Shutdown(context.Background()) })

	for _, tr := range []*Tracer{first, second} {
		stack := tr.NewStack()
		stack.StartSpan("op", trace.SpanContext{}, trace.SpanKindInternal)
		stack.Stop()
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var appended float64
	for _, f := range families {
		if f.GetName() == "jaeger_transport_spans_appended_total" {
			require.Len(t, f.GetMetric(), 1)
			appended = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, appended)
}

func TestTracerInjectNilCarrier(t *testing.T) {
	tr, _ := newTestTracer(t, testConfig(t))
	stack := tr.NewStack()
	span := stack.StartSpan("GET /orders", trace.SpanContext{}, trace.SpanKindServer)
	defer stack.Stop()

	assert.NotPanics(t, func() { tr.Inject(span.SpanContext(), propagation.Carrier(nil)) })
	assert.NotPanics(t, func() { tr.Inject(span.SpanContext(), nil) })
}

func TestTracerPropagation(t *testing.T) {
	tr, _ := newTestTracer(t, testConfig(t))

	stack := tr.NewStack()
	span := stack.StartSpan("GET /orders", trace.SpanContext{}, trace.SpanKindServer)
	defer stack.Stop()

	carrier := propagation.Carrier{}
	tr.Inject(span.SpanContext(), carrier)
	require.Len(t, carrier["traceparent"], 1)

	got := tr.Extract(carrier)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), got.SpanID())
	assert.True(t, got.IsRemote())

	assert.False(t, tr.Extract(propagation.Carrier{"traceparent": {"garbage"}}).IsValid())
	assert.False(t, tr.Extract(nil).IsValid())
}

func TestTracerFilters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Middleware.AllowedHeaders = []string{"*"}
	cfg.Middleware.SensitiveHeaders = []string{"authorization"}
	cfg.Middleware.SensitiveInput = []string{"password"}
	tr, _ := newTestTracer(t, cfg)

	h := filter.Headers{
		"Authorization": {"Bearer xyz"},
		"Accept":        {"application/json"},
	}
	filtered := tr.FilterHeaders(h)
	assert.Equal(t, []string{config.DefaultRedaction}, filtered["Authorization"])
	assert.Equal(t, []string{"application/json"}, filtered["Accept"])

	assert.Equal(t,
		"Accept:        application/json\r\n"+
			"Authorization: "+config.DefaultRedaction+"\r\n",
		tr.TransformedHeaders(h),
	)
	assert.NotContains(t, tr.TransformedHeaders(h), "xyz")

	in := tr.FilterInput(map[string]any{"password": "hunter2", "email": "a@b.c"})
	assert.Equal(t, config.DefaultRedaction, in["password"])
	assert.Equal(t, "a@b.c", in["email"])
}

func TestTracerRedactionOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redaction = "[hidden]"
	tr, _ := newTestTracer(t, cfg)

	got := tr.FilterHeaders(filter.Headers{"authorization": {"secret"}})
	assert.Equal(t, []string{"[hidden]"}, got["authorization"])
}
