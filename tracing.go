// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracing records request spans and ships them to a Jaeger agent.
//
// A process builds one [Tracer] with [New]. Every request gets its own
// [Stack] of active spans; the span on top of the stack is the current
// span and the parent of the next one started.
package tracing

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jaegerlite/tracing/config"
	"github.com/jaegerlite/tracing/export/jaeger"
	"github.com/jaegerlite/tracing/filter"
	"github.com/jaegerlite/tracing/propagation"
)

const (
	// instrumentationName is the instrumentation scope of created spans.
	instrumentationName = "github.com/jaegerlite/tracing"

	// envTracesExportersKey is the key for the environment variable value
	// containing an additional OpenTelemetry trace exporter to use.
	envTracesExportersKey = "OTEL_TRACES_EXPORTER"
)

// Tracer creates span stacks and owns the export pipeline. It is safe for
// concurrent use.
type Tracer struct {
	cfg      config.Config
	logger   *slog.Logger
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error

	propagator propagation.TraceContext
	filter     *filter.Filter
}

// New returns a configured Tracer.
//
// If the configuration is disabled, the returned Tracer creates
// non-recording spans and sends nothing. An error is returned if the
// configuration is invalid or the agent endpoint cannot be parsed.
func New(ctx context.Context, options ...Option) (*Tracer, error) {
	c, err := newConfig(ctx, options)
	if err != nil {
		return nil, err
	}

	t := &Tracer{
		cfg:      c.cfg,
		logger:   c.Logger(),
		filter:   c.Filter(),
		shutdown: func(context.Context) error { return nil },
	}

	if !c.cfg.Enabled {
		t.provider = noop.NewTracerProvider()
	} else {
		tp, err := c.TracerProvider(t.logger)
		if err != nil {
			return nil, err
		}
		t.provider, t.shutdown = tp, tp.Shutdown
	}
	t.tracer = t.provider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion(Version()),
	)

	t.logger.Debug(
		"tracer created",
		"enabled", c.cfg.Enabled,
		"service", c.cfg.ServiceName,
		"agent", c.cfg.AgentEndpoint(),
	)
	return t, nil
}

// Enabled reports whether spans are recorded and exported.
func (t *Tracer) Enabled() bool { return t.cfg.Enabled }

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string { return t.cfg.ServiceName }

// Config returns the configuration t was built with.
func (t *Tracer) Config() config.Config { return t.cfg }

// Logger returns the logger used by t.
func (t *Tracer) Logger() *slog.Logger { return t.logger }

// TracerProvider returns the provider spans are created with.
func (t *Tracer) TracerProvider() trace.TracerProvider { return t.provider }

// NewStack returns an empty span stack for one request.
func (t *Tracer) NewStack() *Stack {
	return newStack(t.tracer, t.cfg.ServiceName)
}

// Inject writes sc to carrier as a traceparent header. Invalid span
// contexts are not written.
func (t *Tracer) Inject(sc trace.SpanContext, carrier propagation.Carrier) {
	t.propagator.InjectContext(sc, carrier)
}

// Extract returns the span context of the traceparent header in carrier.
// The empty span context is returned if the header is missing or invalid.
func (t *Tracer) Extract(carrier propagation.Carrier) trace.SpanContext {
	return t.propagator.ExtractContext(carrier)
}

// FilterHeaders applies the header allow-list and redaction to h.
func (t *Tracer) FilterHeaders(h filter.Headers) filter.Headers {
	return t.filter.Headers(h)
}

// FilterInput redacts sensitive fields of in.
func (t *Tracer) FilterInput(in map[string]any) map[string]any {
	return t.filter.Input(in)
}

// TransformedHeaders returns the filtered headers of h rendered as aligned
// "Name: value" lines.
func (t *Tracer) TransformedHeaders(h filter.Headers) string {
	return filter.Transform(t.FilterHeaders(h))
}

// Shutdown flushes buffered spans and closes the agent connection.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// Option configures a [Tracer] via [New].
type Option interface {
	apply(context.Context, tracerConfig) (tracerConfig, error)
}

type fnOpt func(context.Context, tracerConfig) (tracerConfig, error)

func (o fnOpt) apply(ctx context.Context, c tracerConfig) (tracerConfig, error) {
	return o(ctx, c)
}

// WithConfig returns an [Option] using cfg as the tracing configuration.
//
// This option conflicts with [WithEnv]. If both are used, the last one
// provided is used.
func WithConfig(cfg config.Config) Option {
	return fnOpt(func(_ context.Context, c tracerConfig) (tracerConfig, error) {
		c.cfg = cfg
		return c, nil
	})
}

// WithLogger returns an [Option] that configures the logger used.
//
// If this option is not used, an [slog.Logger] backed by an
// [slog.JSONHandler] writing to STDERR is used, with the minimum level
// taken from the configuration.
func WithLogger(l *slog.Logger) Option {
	return fnOpt(func(_ context.Context, c tracerConfig) (tracerConfig, error) {
		c.logger = l
		return c, nil
	})
}

// WithSpanExporter returns an [Option] adding exp to the Jaeger agent
// exporter. Spans are handed to exp synchronously when they end.
func WithSpanExporter(exp sdk.SpanExporter) Option {
	return fnOpt(func(_ context.Context, c tracerConfig) (tracerConfig, error) {
		c.exporters = append(c.exporters, exp)
		return c, nil
	})
}

// WithRegisterer returns an [Option] registering the agent transport
// metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return fnOpt(func(_ context.Context, c tracerConfig) (tracerConfig, error) {
		c.registerer = reg
		return c, nil
	})
}

// WithIDGenerator returns an [Option] using gen to create trace and span
// IDs.
func WithIDGenerator(gen sdk.IDGenerator) Option {
	return fnOpt(func(_ context.Context, c tracerConfig) (tracerConfig, error) {
		c.idGenerator = gen
		return c, nil
	})
}

var (
	lookupEnv = os.LookupEnv
	loadEnv   = config.LoadEnv
)

// WithEnv returns an [Option] loading the configuration from the TRACING_*
// environment variables over the defaults.
//
// If OTEL_TRACES_EXPORTER is defined, the exporter it names is added to the
// Jaeger agent exporter. The value is resolved using the [autoexport]
// package.
//
// This option conflicts with [WithConfig]. If both are used, the last one
// provided is used.
func WithEnv() Option {
	return fnOpt(func(ctx context.Context, c tracerConfig) (tracerConfig, error) {
		var err error
		if cfg, e := loadEnv(); e != nil {
			err = errors.Join(err, e)
		} else {
			c.cfg = cfg
		}

		if _, ok := lookupEnv(envTracesExportersKey); ok {
			exp, e := autoexport.NewSpanExporter(ctx)
			if e != nil {
				err = errors.Join(err, e)
			} else {
				c.exporters = append(c.exporters, exp)
			}
		}
		return c, err
	})
}

// newLogger is used for testing.
var newLogger = newLoggerFunc

func newLoggerFunc(level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	h := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(h)
}

type tracerConfig struct {
	cfg         config.Config
	logger      *slog.Logger
	exporters   []sdk.SpanExporter
	registerer  prometheus.Registerer
	idGenerator sdk.IDGenerator
	sampler     Sampler
}

func newConfig(ctx context.Context, options []Option) (tracerConfig, error) {
	c := tracerConfig{cfg: config.Default()}

	var err error
	for _, opt := range options {
		var e error
		c, e = opt.apply(ctx, c)
		err = errors.Join(err, e)
	}
	if err != nil {
		return c, err
	}

	if err := c.cfg.Validate(); err != nil {
		return c, err
	}
	c.sampler, err = newSamplerFromConfig(c.cfg.Sampling)
	return c, err
}

func (c tracerConfig) Logger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	level, err := ParseLogLevel(c.cfg.LogLevel)
	if err != nil {
		level = LogLevelInfo
	}
	return newLogger(level.Level())
}

func (c tracerConfig) Filter() *filter.Filter {
	mw := c.cfg.Middleware
	opts := []filter.Option{
		filter.WithAllowedHeaders(mw.AllowedHeaders...),
		filter.WithSensitiveHeaders(mw.SensitiveHeaders...),
		filter.WithSensitiveInput(mw.SensitiveInput...),
	}
	if c.cfg.Redaction != "" {
		opts = append(opts, filter.WithRedaction(c.cfg.Redaction))
	}
	return filter.New(opts...)
}

func (c tracerConfig) TracerProvider(logger *slog.Logger) (*sdk.TracerProvider, error) {
	transport, err := jaeger.NewTransport(
		c.cfg.ServiceName,
		c.cfg.AgentEndpoint(),
		jaeger.WithMaxBufferSize(c.cfg.BufferSize),
		jaeger.WithLogger(logger),
		jaeger.WithRegisterer(c.registerer),
	)
	if err != nil {
		return nil, err
	}

	sampler, err := convertSampler(c.sampler)
	if err != nil {
		return nil, err
	}

	opts := []sdk.TracerProviderOption{
		sdk.WithSampler(sampler),
		sdk.WithResource(c.resource()),
		// Spans are appended as they end; the transport does the batching.
		sdk.WithSyncer(jaeger.NewExporter(transport)),
	}
	for _, exp := range c.exporters {
		opts = append(opts, sdk.WithSyncer(exp))
	}
	if c.idGenerator != nil {
		opts = append(opts, sdk.WithIDGenerator(c.idGenerator))
	}
	return sdk.NewTracerProvider(opts...), nil
}

func (c tracerConfig) resource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(c.cfg.ServiceName),
		semconv.TelemetrySDKLanguageGo,
		semconv.TelemetryDistroNameKey.String("jaegerlite-tracing"),
		attribute.String(string(semconv.TelemetryDistroVersionKey), Version()),
	)
}
