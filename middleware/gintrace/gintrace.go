// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package gintrace traces requests served by a gin engine.
package gintrace

import (
	"bytes"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/middleware"
	"github.com/jaegerlite/tracing/propagation"
)

// KeyHandler is the attribute holding the name of the gin handler.
const KeyHandler = attribute.Key("request.gin.handler")

const maxContentSize = 64 << 10

// Middleware returns a gin middleware tracing every request.
//
// It records the same server span as [middleware.Handler]. The span is
// renamed after the matched route, and errors attached to the gin context
// mark the span as failed.
func Middleware(t *tracing.Tracer) gin.HandlerFunc {
	excluder, err := middleware.NewExcluder(t.Config().Middleware.ExcludedPaths)
	if err != nil {
		t.Logger().Error("tracing: ignoring excluded paths", "error", err)
		excluder = nil
	}

	return func(c *gin.Context) {
		r := c.Request
		if excluder.Match(r.URL.Path) {
			c.Next()
			return
		}

		stack := t.NewStack()
		defer stack.Stop()

		incoming := t.Extract(propagation.CarrierFromHeader(r.Header))
		span := stack.StartSpan(r.Method+" "+r.URL.Path, incoming, trace.SpanKindServer)
		span.SetAttributes(middleware.RequestAttributes(t, r, middleware.RequestInput(t, r))...)

		w := &bodyWriter{ResponseWriter: c.Writer, capture: t.Config().SendResponse}
		c.Writer = w
		c.Request = r.WithContext(tracing.ContextWithStack(r.Context(), stack))

		c.Next()

		if route := c.FullPath(); route != "" {
			span.SetName(r.Method + " " + route)
		}
		span.SetAttributes(KeyHandler.String(c.HandlerName()))

		status := w.Status()
		var content []byte
		if w.capture && middleware.PayloadEligible(t.Config().Middleware.Payload.ContentTypes, w.Header().Get("Content-Type")) {
			content = w.content.Bytes()
		}
		span.SetAttributes(middleware.ResponseAttributes(t, status, w.Header(), content)...)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				span.RecordError(e.Err)
			}
			span.SetStatus(codes.Error, c.Errors.Last().Error())
			return
		}
		span.SetStatus(middleware.SpanStatus(status))
	}
}

// bodyWriter copies the response body for recording.
type bodyWriter struct {
	gin.ResponseWriter
	capture bool
	content bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.record(b[:n])
	return n, err
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.record([]byte(s[:n]))
	return n, err
}

func (w *bodyWriter) record(b []byte) {
	if !w.capture {
		return
	}
	if room := maxContentSize - w.content.Len(); room > 0 {
		w.content.Write(b[:min(len(b), room)])
	}
}
