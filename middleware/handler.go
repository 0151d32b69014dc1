// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package middleware traces HTTP servers, HTTP clients and database queries
// with a [tracing.Tracer].
package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/propagation"
)

// maxContentSize bounds the recorded response content.
const maxContentSize = 64 << 10

// Handler returns an http.Handler tracing every request served by next.
//
// A server span named "METHOD /path" is started for each request, as a
// child of an incoming traceparent header when present. The request
// context carries the request [tracing.Stack], so spans started by next
// become children of the server span. When next was routed by an
// [http.ServeMux] the span is renamed after the matched pattern.
//
// Requests whose path matches an excluded pattern are passed to next
// untraced.
func Handler(t *tracing.Tracer, next http.Handler) http.Handler {
	excluder, err := NewExcluder(t.Config().Middleware.ExcludedPaths)
	if err != nil {
		t.Logger().Error("tracing: ignoring excluded paths", "error", err)
		excluder = nil
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if excluder.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		stack := t.NewStack()
		defer stack.Stop()

		incoming := t.Extract(propagation.CarrierFromHeader(r.Header))
		span := stack.StartSpan(r.Method+" "+r.URL.Path, incoming, trace.SpanKindServer)
		span.SetAttributes(RequestAttributes(t, r, RequestInput(t, r))...)

		rec := newRecorder(t)
		ww := httpsnoop.Wrap(w, rec.hooks())

		defer func() {
			if p := recover(); p != nil {
				span.SetStatus(codes.Error, fmt.Sprint(p))
				span.RecordError(fmt.Errorf("panic: %v", p))
				panic(p)
			}
		}()

		req := r.WithContext(tracing.ContextWithStack(r.Context(), stack))
		next.ServeHTTP(ww, req)

		if route := patternPath(req.Pattern); route != "" {
			span.SetName(r.Method + " " + route)
		}
		rec.finish(span, w.Header())
	})
}

// patternPath returns the path of a ServeMux pattern such as
// "GET example.com/orders/{id}".
func patternPath(pattern string) string {
	if pattern == "" {
		return ""
	}
	if _, rest, ok := strings.Cut(pattern, " "); ok {
		pattern = strings.TrimSpace(rest)
	}
	if i := strings.Index(pattern, "/"); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

// recorder captures the status code and content written by a handler.
type recorder struct {
	tracer  *tracing.Tracer
	status  int
	content bytes.Buffer
	capture bool
}

func newRecorder(t *tracing.Tracer) *recorder {
	return &recorder{tracer: t, capture: t.Config().SendResponse}
}

func (rec *recorder) hooks() httpsnoop.Hooks {
	return httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				if rec.status == 0 {
					rec.status = code
				}
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				if rec.status == 0 {
					rec.status = http.StatusOK
				}
				n, err := next(b)
				rec.record(b[:n])
				return n, err
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				if rec.status == 0 {
					rec.status = http.StatusOK
				}
				if !rec.capture {
					return next(src)
				}
				return next(io.TeeReader(src, writerFunc(func(b []byte) (int, error) {
					rec.record(b)
					return len(b), nil
				})))
			}
		},
	}
}

func (rec *recorder) record(b []byte) {
	if !rec.capture {
		return
	}
	if room := maxContentSize - rec.content.Len(); room > 0 {
		rec.content.Write(b[:min(len(b), room)])
	}
}

// finish records the response on span.
func (rec *recorder) finish(span *tracing.Span, header http.Header) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}

	var content []byte
	cfg := rec.tracer.Config()
	if rec.capture && PayloadEligible(cfg.Middleware.Payload.ContentTypes, header.Get("Content-Type")) {
		content = rec.content.Bytes()
	}
	span.SetAttributes(ResponseAttributes(rec.tracer, status, header, content)...)
	span.SetStatus(SpanStatus(status))
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) { return f(b) }
