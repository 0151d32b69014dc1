// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	keySpanKind          = "span.kind"
	keyStatusCode        = "otel.status_code"
	keyStatusDescription = "otel.status_description"
	keyError             = "error"
	keyEvent             = "event"
	keyScopeName         = "otel.scope.name"
	keyScopeVersion      = "otel.scope.version"
)

// Exporter is an [sdk.SpanExporter] appending finished spans to a
// [Transport].
type Exporter struct {
	transport *Transport

	stopped atomic.Bool
}

var _ sdk.SpanExporter = (*Exporter)(nil)

// NewExporter returns an Exporter sending spans with t.
func NewExporter(t *Transport) *Exporter {
	return &Exporter{transport: t}
}

// ExportSpans converts spans and appends them to the transport. Delivery
// failures are handled by the transport, the returned error is always nil.
func (e *Exporter) ExportSpans(_ context.Context, spans []sdk.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, s := range spans {
		e.transport.Append(ConvertSpan(s))
	}
	return nil
}

// ForceFlush sends buffered spans regardless of the buffer size.
func (e *Exporter) ForceFlush(context.Context) error {
	e.transport.ForceFlush()
	return nil
}

// Shutdown flushes and closes the transport. Spans exported afterwards are
// dropped.
func (e *Exporter) Shutdown(context.Context) error {
	if e.stopped.Swap(true) {
		return nil
	}
	return e.transport.Close()
}

// ConvertSpan returns the Jaeger representation of s.
func ConvertSpan(s sdk.ReadOnlySpan) *Span {
	sc := s.SpanContext()
	high, low := traceIDParts(sc.TraceID())

	out := &Span{
		TraceIDHigh:   high,
		TraceIDLow:    low,
		SpanID:        spanIDPart(sc.SpanID()),
		OperationName: s.Name(),
		StartTime:     s.StartTime().UnixMicro(),
		Duration:      s.EndTime().Sub(s.StartTime()).Microseconds(),
	}
	if sc.IsSampled() {
		out.Flags = 1
	}

	if parent := s.Parent(); parent.IsValid() {
		out.ParentSpanID = spanIDPart(parent.SpanID())
		out.References = append(out.References, spanRef(SpanRefTypeChildOf, parent))
	}
	for _, l := range s.Links() {
		out.References = append(out.References, spanRef(SpanRefTypeFollowsFrom, l.SpanContext))
	}

	attrs := s.Attributes()
	out.Tags = make([]*Tag, 0, len(attrs)+4)
	for _, kv := range attrs {
		out.Tags = append(out.Tags, attrTag(kv))
	}
	if scope := s.InstrumentationScope(); scope.Name != "" {
		out.Tags = append(out.Tags, StringTag(keyScopeName, scope.Name))
		if scope.Version != "" {
			out.Tags = append(out.Tags, StringTag(keyScopeVersion, scope.Version))
		}
	}
	if k := s.SpanKind(); k != trace.SpanKindInternal && k != trace.SpanKindUnspecified {
		out.Tags = append(out.Tags, StringTag(keySpanKind, k.String()))
	}
	switch st := s.Status(); st.Code {
	case codes.Ok:
		out.Tags = append(out.Tags, StringTag(keyStatusCode, "OK"))
	case codes.Error:
		out.Tags = append(out.Tags,
			StringTag(keyStatusCode, "ERROR"),
			BoolTag(keyError, true),
		)
		if st.Description != "" {
			out.Tags = append(out.Tags, StringTag(keyStatusDescription, st.Description))
		}
	}

	for _, ev := range s.Events() {
		fields := make([]*Tag, 0, len(ev.Attributes)+1)
		fields = append(fields, StringTag(keyEvent, ev.Name))
		for _, kv := range ev.Attributes {
			fields = append(fields, attrTag(kv))
		}
		out.Logs = append(out.Logs, &Log{Timestamp: ev.Time.UnixMicro(), Fields: fields})
	}

	return out
}

func spanRef(typ SpanRefType, sc trace.SpanContext) *SpanRef {
	high, low := traceIDParts(sc.TraceID())
	return &SpanRef{
		RefType:     typ,
		TraceIDHigh: high,
		TraceIDLow:  low,
		SpanID:      spanIDPart(sc.SpanID()),
	}
}

func traceIDParts(id trace.TraceID) (high, low int64) {
	return int64(binary.BigEndian.Uint64(id[:8])), int64(binary.BigEndian.Uint64(id[8:]))
}

func spanIDPart(id trace.SpanID) int64 {
	return int64(binary.BigEndian.Uint64(id[:]))
}

func attrTag(kv attribute.KeyValue) *Tag {
	k := string(kv.Key)
	switch kv.Value.Type() {
	case attribute.BOOL:
		return BoolTag(k, kv.Value.AsBool())
	case attribute.INT64:
		return LongTag(k, kv.Value.AsInt64())
	case attribute.FLOAT64:
		return DoubleTag(k, kv.Value.AsFloat64())
	case attribute.STRING:
		return StringTag(k, kv.Value.AsString())
	default:
		// Slices are rendered as JSON arrays.
		return StringTag(k, kv.Value.Emit())
	}
}
