// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

import (
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ServiceMajorKey and ServiceMinorKey are the attributes combined into the
// Jaeger service name of a span.
const (
	ServiceMajorKey = attribute.Key("service.major")
	ServiceMinorKey = attribute.Key("service.minor")
)

// Span is one unit of work on a [Stack].
//
// A Span keeps a pointer to the span that was current when it started. The
// pointer is used to restore the current span when the Span ends; it does
// not own the parent.
type Span struct {
	span   trace.Span
	kind   trace.SpanKind
	parent *Span

	mu    sync.Mutex
	name  string
	ended bool
}

// Name returns the span name.
func (s *Span) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetName renames the span.
func (s *Span) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	s.span.SetName(name)
}

// Kind returns the span kind.
func (s *Span) Kind() trace.SpanKind { return s.kind }

// Parent returns the span that was current when s started, or nil for a
// root span.
func (s *Span) Parent() *Span { return s.parent }

// SpanContext returns the identity of s.
func (s *Span) SpanContext() trace.SpanContext { return s.span.SpanContext() }

// IsRecording reports whether s records attributes and will be exported.
func (s *Span) IsRecording() bool { return s.span.IsRecording() }

// Ended reports whether s has ended.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// SetAttributes sets attributes on s. Setting an existing key replaces its
// value.
func (s *Span) SetAttributes(kv ...attribute.KeyValue) { s.span.SetAttributes(kv...) }

// SetStatus sets the status of s. The description is only kept for
// [codes.Error].
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// RecordError records err as an exception event.
func (s *Span) RecordError(err error, opts ...trace.EventOption) {
	s.span.RecordError(err, opts...)
}

// AddEvent adds a named event to s.
func (s *Span) AddEvent(name string, opts ...trace.EventOption) {
	s.span.AddEvent(name, opts...)
}

// end ends s once.
func (s *Span) end(opts ...trace.SpanEndOption) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	s.span.End(opts...)
}
