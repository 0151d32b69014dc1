// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"encoding/binary"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Traces returns b in the OpenTelemetry collector data model. The process
// becomes the resource and every span is placed in a single scope.
func (b *Batch) Traces() ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	if b.Process != nil {
		res := rs.Resource().Attributes()
		res.PutStr(string(semconv.ServiceNameKey), b.Process.ServiceName)
		for _, t := range b.Process.Tags {
			putTag(res, t)
		}
	}

	spans := rs.ScopeSpans().AppendEmpty().Spans()
	spans.EnsureCapacity(len(b.Spans))
	for _, s := range b.Spans {
		copySpan(spans.AppendEmpty(), s)
	}
	return td
}

func copySpan(dest ptrace.Span, s *Span) {
	dest.SetTraceID(traceID(s.TraceIDHigh, s.TraceIDLow))
	dest.SetSpanID(spanID(s.SpanID))
	if s.ParentSpanID != 0 {
		dest.SetParentSpanID(spanID(s.ParentSpanID))
	}
	dest.SetName(s.OperationName)
	dest.SetFlags(uint32(s.Flags))

	start := time.UnixMicro(s.StartTime)
	dest.SetStartTimestamp(pcommon.NewTimestampFromTime(start))
	dest.SetEndTimestamp(pcommon.NewTimestampFromTime(start.Add(time.Duration(s.Duration) * time.Microsecond)))

	attrs := dest.Attributes()
	attrs.EnsureCapacity(len(s.Tags))
	for _, t := range s.Tags {
		switch t.Key {
		case keySpanKind:
			dest.SetKind(spanKind(t.VStr))
		case keyStatusCode:
			dest.Status().SetCode(statusCode(t.VStr))
		case keyStatusDescription:
			dest.Status().SetMessage(t.VStr)
		case keyError:
			// Carried by the status code.
		default:
			putTag(attrs, t)
		}
	}

	for _, l := range s.Logs {
		ev := dest.Events().AppendEmpty()
		ev.SetTimestamp(pcommon.NewTimestampFromTime(time.UnixMicro(l.Timestamp)))
		for _, f := range l.Fields {
			if f.Key == keyEvent && f.VType == TagTypeString {
				ev.SetName(f.VStr)
				continue
			}
			putTag(ev.Attributes(), f)
		}
	}

	for _, ref := range s.References {
		if ref.RefType != SpanRefTypeFollowsFrom {
			continue
		}
		link := dest.Links().AppendEmpty()
		link.SetTraceID(traceID(ref.TraceIDHigh, ref.TraceIDLow))
		link.SetSpanID(spanID(ref.SpanID))
	}
}

func putTag(m pcommon.Map, t *Tag) {
	switch t.VType {
	case TagTypeDouble:
		m.PutDouble(t.Key, t.VDouble)
	case TagTypeBool:
		m.PutBool(t.Key, t.VBool)
	case TagTypeLong:
		m.PutInt(t.Key, t.VLong)
	case TagTypeBinary:
		m.PutEmptyBytes(t.Key).FromRaw(t.VBinary)
	default:
		m.PutStr(t.Key, t.VStr)
	}
}

func traceID(high, low int64) pcommon.TraceID {
	var id pcommon.TraceID
	binary.BigEndian.PutUint64(id[:8], uint64(high))
	binary.BigEndian.PutUint64(id[8:], uint64(low))
	return id
}

func spanID(v int64) pcommon.SpanID {
	var id pcommon.SpanID
	binary.BigEndian.PutUint64(id[:], uint64(v))
	return id
}

func spanKind(kind string) ptrace.SpanKind {
	switch kind {
	case "internal":
		return ptrace.SpanKindInternal
	case "server":
		return ptrace.SpanKindServer
	case "client":
		return ptrace.SpanKindClient
	case "producer":
		return ptrace.SpanKindProducer
	case "consumer":
		return ptrace.SpanKindConsumer
	default:
		return ptrace.SpanKindUnspecified
	}
}

func statusCode(code string) ptrace.StatusCode {
	switch code {
	case "OK":
		return ptrace.StatusCodeOk
	case "ERROR":
		return ptrace.StatusCodeError
	default:
		return ptrace.StatusCodeUnset
	}
}
