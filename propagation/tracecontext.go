// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package propagation encodes and decodes span contexts in the traceparent
// header understood by the Jaeger agent deployments this module reports to.
//
// The rendering differs from strict W3C Trace Context: identifiers are not
// zero-padded and the flags are rendered as a literal "0" followed by a
// single hex digit. Values produced here can always be parsed back by
// [TraceContext.ExtractContext].
package propagation

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Version is the only supported traceparent version.
	Version = "00"
	// TraceParentHeader is the header carrying the span context.
	TraceParentHeader = "traceparent"
)

// TraceContext propagates span contexts using the traceparent header.
type TraceContext struct{}

var _ propagation.TextMapPropagator = TraceContext{}

// Inject writes the span context held by ctx into carrier. Nothing is
// written if ctx holds no valid span context.
func (tc TraceContext) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	tc.InjectContext(trace.SpanContextFromContext(ctx), carrier)
}

// Extract returns a copy of ctx holding the remote span context read from
// carrier. ctx is returned unchanged if carrier holds no valid traceparent.
func (tc TraceContext) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	sc := tc.ExtractContext(carrier)
	if !sc.IsValid() {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// Fields returns the header names set by Inject.
func (TraceContext) Fields() []string {
	return []string{TraceParentHeader}
}

// InjectContext writes sc into carrier. Invalid span contexts are ignored.
func (TraceContext) InjectContext(sc trace.SpanContext, carrier propagation.TextMapCarrier) {
	if isNilCarrier(carrier) || !sc.IsValid() {
		return
	}
	carrier.Set(TraceParentHeader, Format(sc))
}

// isNilCarrier reports whether carrier is nil or a nil map that cannot be
// written to.
func isNilCarrier(carrier propagation.TextMapCarrier) bool {
	switch c := carrier.(type) {
	case nil:
		return true
	case Carrier:
		return c == nil
	case propagation.HeaderCarrier:
		return c == nil
	case propagation.MapCarrier:
		return c == nil
	}
	return false
}

// ExtractContext reads the traceparent header from carrier, matching the
// header name case-insensitively. The empty SpanContext is returned when
// the header is absent or malformed.
func (TraceContext) ExtractContext(carrier propagation.TextMapCarrier) trace.SpanContext {
	if carrier == nil {
		return trace.SpanContext{}
	}

	var raw string
	if v := carrier.Get(TraceParentHeader); v != "" {
		raw = v
	} else {
		for _, k := range carrier.Keys() {
			if strings.EqualFold(k, TraceParentHeader) {
				raw = carrier.Get(k)
				break
			}
		}
	}
	if raw == "" {
		return trace.SpanContext{}
	}

	sc, err := Parse(raw)
	if err != nil {
		return trace.SpanContext{}
	}
	return sc
}

// Format renders sc as a traceparent value.
func Format(sc trace.SpanContext) string {
	tid := sc.TraceID()
	high := binary.BigEndian.Uint64(tid[:8])
	low := binary.BigEndian.Uint64(tid[8:])
	sid := sc.SpanID()
	span := binary.BigEndian.Uint64(sid[:])

	if high != 0 {
		return fmt.Sprintf("%s-%x%016x-%x-0%x", Version, high, low, span, byte(sc.TraceFlags()))
	}
	return fmt.Sprintf("%s-%x-%x-0%x", Version, low, span, byte(sc.TraceFlags()))
}

// Parse decodes a (possibly URL-encoded) traceparent value. The returned
// SpanContext is marked as remote.
func Parse(value string) (trace.SpanContext, error) {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return trace.SpanContext{}, fmt.Errorf("traceparent: %w", err)
	}

	parts := strings.Split(strings.TrimSpace(decoded), "-")
	if len(parts) != 4 {
		return trace.SpanContext{}, fmt.Errorf("traceparent: expected 4 fields, got %d", len(parts))
	}

	tid, err := parseTraceID(parts[1])
	if err != nil {
		return trace.SpanContext{}, err
	}
	sid, err := parseSpanID(parts[2])
	if err != nil {
		return trace.SpanContext{}, err
	}
	flags, err := parseFlags(parts[3])
	if err != nil {
		return trace.SpanContext{}, err
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: flags,
		Remote:     true,
	})
	if !sc.IsValid() {
		return trace.SpanContext{}, fmt.Errorf("traceparent: invalid identity %q", decoded)
	}
	return sc, nil
}

func parseTraceID(s string) (trace.TraceID, error) {
	var tid trace.TraceID
	if s == "" || len(s) > 32 {
		return tid, fmt.Errorf("traceparent: invalid trace id %q", s)
	}

	hiStr, loStr := "", s
	if len(s) > 16 {
		hiStr, loStr = s[:len(s)-16], s[len(s)-16:]
	}

	var hi uint64
	if hiStr != "" {
		var err error
		if hi, err = strconv.ParseUint(hiStr, 16, 64); err != nil {
			return tid, fmt.Errorf("traceparent: invalid trace id %q: %w", s, err)
		}
	}
	lo, err := strconv.ParseUint(loStr, 16, 64)
	if err != nil {
		return tid, fmt.Errorf("traceparent: invalid trace id %q: %w", s, err)
	}

	binary.BigEndian.PutUint64(tid[:8], hi)
	binary.BigEndian.PutUint64(tid[8:], lo)
	return tid, nil
}

func parseSpanID(s string) (trace.SpanID, error) {
	var sid trace.SpanID
	if s == "" || len(s) > 16 {
		return sid, fmt.Errorf("traceparent: invalid span id %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return sid, fmt.Errorf("traceparent: invalid span id %q: %w", s, err)
	}
	binary.BigEndian.PutUint64(sid[:], v)
	return sid, nil
}

func parseFlags(s string) (trace.TraceFlags, error) {
	if s == "" || len(s) > 3 {
		return 0, fmt.Errorf("traceparent: invalid flags %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("traceparent: invalid flags %q: %w", s, err)
	}
	return trace.TraceFlags(v), nil
}
