// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
)

// bindingTimeLayout formats time bindings.
const bindingTimeLayout = "2006-01-02 15:04:05"

// Query span attribute keys.
const (
	KeyQueryConnection = attribute.Key("query.connection")
	KeyQueryQuery      = attribute.Key("query.query")
	KeyQueryBindings   = attribute.Key("query.bindings")
)

// QueryEvent describes an executed database query.
type QueryEvent struct {
	// Connection names the database connection.
	Connection string
	// SQL is the query text. It is also the span name.
	SQL string
	// Bindings are the query parameters.
	Bindings []any
	// Duration is how long the query took.
	Duration time.Duration
	// End is when the query finished. The zero value means now.
	End time.Time
}

// QueryObserver records executed queries as spans on the request stack.
type QueryObserver struct {
	debug bool
}

// NewQueryObserver returns a QueryObserver. Query bindings are recorded
// when t is configured with debug on.
func NewQueryObserver(t *tracing.Tracer) *QueryObserver {
	return &QueryObserver{debug: t.Config().Debug}
}

// ObserveQuery records ev as a span that starts Duration before End. The
// span is a child of the current span of the stack carried by ctx and is
// reported under the connection's minor service name. The stack itself is
// left unchanged, so ObserveQuery may be called concurrently.
func (o *QueryObserver) ObserveQuery(ctx context.Context, ev QueryEvent) {
	end := ev.End
	if end.IsZero() {
		end = time.Now()
	}

	stack := tracing.StackFromContext(ctx).Fork()
	span := stack.StartSpan(
		ev.SQL,
		trace.SpanContextFromContext(ctx),
		trace.SpanKindInternal,
		tracing.WithStartTime(end.Add(-ev.Duration)),
	)
	span.SetAttributes(
		KeyQueryConnection.String(ev.Connection),
		KeyQueryQuery.String(ev.SQL),
		tracing.ServiceMinorKey.String(ev.Connection),
	)
	if o.debug && len(ev.Bindings) > 0 {
		span.SetAttributes(KeyQueryBindings.String(FormatBindings(ev.Bindings)))
	}
	stack.EndCurrentSpan(tracing.WithEndTime(end))
}

// FormatBindings joins query bindings with commas. Times use the
// "2006-01-02 15:04:05" layout and booleans are written as 1 or 0.
func FormatBindings(bindings []any) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		switch v := b.(type) {
		case time.Time:
			parts[i] = v.Format(bindingTimeLayout)
		case *time.Time:
			if v != nil {
				parts[i] = v.Format(bindingTimeLayout)
			}
		case bool:
			if v {
				parts[i] = "1"
			} else {
				parts[i] = "0"
			}
		case []byte:
			parts[i] = string(v)
		case nil:
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, ",")
}
