// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Stack is the LIFO of active spans of one request. The span on top is the
// current span.
//
// A Stack belongs to a single request. Its methods are safe for concurrent
// use, but the current span is shared: [Stack.EndCurrentSpan] ends whatever
// span is on top. Work running concurrently within a request, such as
// overlapping outbound calls, starts its spans on its own [Stack.Fork].
type Stack struct {
	tracer      trace.Tracer
	serviceName string
	// base is the parent of root spans of a forked stack.
	base *Span

	mu    sync.Mutex
	top   *Span
	depth int
}

func newStack(tracer trace.Tracer, serviceName string) *Stack {
	return &Stack{tracer: tracer, serviceName: serviceName}
}

// Fork returns an empty Stack whose root spans are children of the current
// span of s, or follow the rules of [Stack.StartSpan] if s is empty. Spans
// started and ended on the fork do not change s.
func (s *Stack) Fork() *Stack {
	return &Stack{
		tracer:      s.tracer,
		serviceName: s.serviceName,
		base:        s.CurrentSpan(),
	}
}

// StartOption configures [Stack.StartSpan].
type StartOption func(*startConfig)

type startConfig struct {
	timestamp time.Time
}

// WithStartTime sets the start time of the span. The current time is used
// otherwise.
func WithStartTime(t time.Time) StartOption {
	return func(c *startConfig) { c.timestamp = t }
}

// EndOption configures [Stack.EndCurrentSpan].
type EndOption func(*endConfig)

type endConfig struct {
	timestamp time.Time
}

// WithEndTime sets the end time of the span. The current time is used
// otherwise.
func WithEndTime(t time.Time) EndOption {
	return func(c *endConfig) { c.timestamp = t }
}

// StartSpan starts a span and makes it the current span.
//
// If the stack is not empty, the current span is the parent and incoming is
// ignored. On an empty fork, the span the fork was taken from is the
// parent. Otherwise the span is a root span: a child of incoming when it is
// valid, or the first span of a new trace.
//
// Every span carries the service.major attribute set to the service name.
func (s *Stack) StartSpan(name string, incoming trace.SpanContext, kind trace.SpanKind, opts ...StartOption) *Span {
	var c startConfig
	for _, opt := range opts {
		opt(&c)
	}

	startOpts := []trace.SpanStartOption{
		trace.WithSpanKind(kind),
		trace.WithAttributes(ServiceMajorKey.String(s.serviceName)),
	}
	if !c.timestamp.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(c.timestamp))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	switch {
	case s.top != nil:
		ctx = trace.ContextWithSpan(ctx, s.top.span)
	case s.base != nil:
		ctx = trace.ContextWithSpan(ctx, s.base.span)
	case incoming.IsValid():
		ctx = trace.ContextWithRemoteSpanContext(ctx, incoming)
	default:
		startOpts = append(startOpts, trace.WithNewRoot())
	}

	_, otelSpan := s.tracer.Start(ctx, name, startOpts...)
	span := &Span{
		span:   otelSpan,
		kind:   kind,
		parent: s.top,
		name:   name,
	}
	s.top = span
	s.depth++
	return span
}

// HasCurrentSpan reports whether the stack is not empty.
func (s *Stack) HasCurrentSpan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top != nil
}

// CurrentSpan returns the span on top of the stack, or nil if the stack is
// empty.
func (s *Stack) CurrentSpan() *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top
}

// Depth returns the number of active spans.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}

// EndCurrentSpan ends the current span and makes its parent current. It is
// a no-op on an empty stack.
func (s *Stack) EndCurrentSpan(opts ...EndOption) {
	var c endConfig
	for _, opt := range opts {
		opt(&c)
	}

	s.mu.Lock()
	span := s.top
	if span == nil {
		s.mu.Unlock()
		return
	}
	s.top = span.parent
	s.depth--
	s.mu.Unlock()

	var endOpts []trace.SpanEndOption
	if !c.timestamp.IsZero() {
		endOpts = append(endOpts, trace.WithTimestamp(c.timestamp))
	}
	span.end(endOpts...)
}

// SetAttributes sets attributes on the current span, if any.
func (s *Stack) SetAttributes(kv ...attribute.KeyValue) {
	if span := s.CurrentSpan(); span != nil {
		span.SetAttributes(kv...)
	}
}

// Stop ends every span on the stack, innermost first.
func (s *Stack) Stop() {
	for s.HasCurrentSpan() {
		s.EndCurrentSpan()
	}
}

type stackKeyType struct{}

var stackKey stackKeyType

// ContextWithStack returns a derived copy of parent that carries s.
func ContextWithStack(parent context.Context, s *Stack) context.Context {
	return context.WithValue(parent, stackKey, s)
}

// StackFromContext returns the Stack carried by ctx. If ctx has none, a
// detached Stack of non-recording spans is returned.
func StackFromContext(ctx context.Context) *Stack {
	if s, ok := ctx.Value(stackKey).(*Stack); ok && s != nil {
		return s
	}
	return newStack(noop.NewTracerProvider().Tracer(""), "")
}

// StackFromContextOK returns the Stack carried by ctx and true, or nil and
// false.
func StackFromContextOK(ctx context.Context) (*Stack, bool) {
	s, ok := ctx.Value(stackKey).(*Stack)
	return s, ok && s != nil
}

// ContextWithCurrentSpan returns a derived copy of parent carrying the
// current span of s, for libraries that take their parent from a
// context.Context.
func ContextWithCurrentSpan(parent context.Context, s *Stack) context.Context {
	if span := s.CurrentSpan(); span != nil {
		return trace.ContextWithSpan(parent, span.span)
	}
	return parent
}
