// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
)

func TestObserveQuery(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
	}{
		{"Bindings", true},
		{"NoBindings", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newAgent(t).config()
			cfg.Debug = tt.debug
			tr, exp := newTracer(t, cfg)

			stack := tr.NewStack()
			root := stack.StartSpan("GET /orders", trace.SpanContext{}, trace.SpanKindServer)
			ctx := tracing.ContextWithStack(context.Background(), stack)

			end := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			NewQueryObserver(tr).ObserveQuery(ctx, QueryEvent{
				Connection: "pgsql",
				SQL:        "SELECT * FROM orders WHERE id = ?",
				Bindings:   []any{42},
				Duration:   25 * time.Millisecond,
				End:        end,
			})
			assert.Same(t, root, stack.CurrentSpan())
			assert.Equal(t, 1, stack.Depth())
			stack.Stop()

			s := spanNamed(t, exp, "SELECT * FROM orders WHERE id = ?")
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent.SpanID())
			assert.Equal(t, end, s.EndTime.UTC())
			assert.Equal(t, end.Add(-25*time.Millisecond), s.StartTime.UTC())

			v, _ := attr(s, KeyQueryConnection)
			assert.Equal(t, "pgsql", v.AsString())
			v, _ = attr(s, KeyQueryQuery)
			assert.Equal(t, "SELECT * FROM orders WHERE id = ?", v.AsString())
			v, _ = attr(s, tracing.ServiceMinorKey)
			assert.Equal(t, "pgsql", v.AsString())

			v, ok := attr(s, KeyQueryBindings)
			require.Equal(t, tt.debug, ok)
			if ok {
				assert.Equal(t, "42", v.AsString())
			}
		})
	}
}

func TestFormatBindings(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC)
	got := FormatBindings([]any{1, "a", true, false, ts, &ts, []byte("raw"), nil, 2.5})
	assert.Equal(t, "1,a,1,0,2024-05-01 08:30:15,2024-05-01 08:30:15,raw,,2.5", got)
	assert.Equal(t, "", FormatBindings(nil))
}
