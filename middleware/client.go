// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/filter"
	"github.com/jaegerlite/tracing/propagation"
)

// Client records outgoing calls as client spans on the request stack
// carried by a context.
//
// Every method is a no-op when the context carries no stack or the stack
// has no current span. StopSpan ends the current span of that stack, so
// calls that may overlap pass a context carrying their own
// [tracing.Stack.Fork].
type Client struct {
	tracer *tracing.Tracer
}

// NewClient returns a Client using t.
func NewClient(t *tracing.Tracer) *Client {
	return &Client{tracer: t}
}

// StartSpan starts a client span named name and makes it the current span.
func (c *Client) StartSpan(ctx context.Context, name string) *tracing.Span {
	stack := tracing.StackFromContext(ctx)
	return stack.StartSpan(name, trace.SpanContextFromContext(ctx), trace.SpanKindClient)
}

// StopSpan ends the current span.
func (c *Client) StopSpan(ctx context.Context) {
	tracing.StackFromContext(ctx).EndCurrentSpan()
}

// InjectSpanContextIntoHeaders writes the current span context to h as a
// traceparent header and returns h. A nil h is allocated.
func (c *Client) InjectSpanContextIntoHeaders(ctx context.Context, h http.Header) http.Header {
	if h == nil {
		h = make(http.Header)
	}
	if span := current(ctx); span != nil {
		c.tracer.Inject(span.SpanContext(), propagation.CarrierFromHeader(h))
	}
	return h
}

// AddMinorServiceName sets the service.minor attribute of the current
// span. The agent transport reports the span under "major-minor".
func (c *Client) AddMinorServiceName(ctx context.Context, name string) {
	setAttrs(ctx, tracing.ServiceMinorKey.String(name))
}

// AddRequestHeaders records the filtered request headers as JSON.
func (c *Client) AddRequestHeaders(ctx context.Context, h http.Header) {
	c.setJSON(ctx, KeyRequestHeaders, c.tracer.FilterHeaders(filter.Headers(h)))
}

// AddRequestQuery records the request query as JSON.
func (c *Client) AddRequestQuery(ctx context.Context, query url.Values) {
	c.setJSON(ctx, KeyRequestQuery, query)
}

// AddRequestInput records the redacted request input as JSON when input
// recording is enabled.
func (c *Client) AddRequestInput(ctx context.Context, input map[string]any) {
	if c.tracer.Config().SendInput {
		c.setJSON(ctx, KeyRequestInput, c.tracer.FilterInput(input))
	}
}

// AddResponseStatusCode records the response status code.
func (c *Client) AddResponseStatusCode(ctx context.Context, code int) {
	setAttrs(ctx, KeyResponseStatusCode.Int(code))
}

// AddResponseHeaders records the filtered response headers as JSON.
func (c *Client) AddResponseHeaders(ctx context.Context, h http.Header) {
	c.setJSON(ctx, KeyResponseHeaders, c.tracer.FilterHeaders(filter.Headers(h)))
}

// AddRawResponse records raw as the response body when response recording
// is enabled. raw is recorded as-is if it is valid JSON and as a JSON
// string otherwise.
func (c *Client) AddRawResponse(ctx context.Context, raw []byte) {
	if !c.tracer.Config().SendResponse {
		return
	}
	if json.Valid(raw) {
		setAttrs(ctx, KeyResponseRaw.String(string(raw)))
		return
	}
	c.setJSON(ctx, KeyResponseRaw, string(raw))
}

func (c *Client) setJSON(ctx context.Context, key attribute.Key, v any) {
	span := current(ctx)
	if span == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		c.tracer.Logger().Debug("tracing: unencodable attribute", "key", key, "error", err)
		return
	}
	span.SetAttributes(key.String(string(b)))
}

func current(ctx context.Context) *tracing.Span {
	stack, ok := tracing.StackFromContextOK(ctx)
	if !ok {
		return nil
	}
	return stack.CurrentSpan()
}

func setAttrs(ctx context.Context, kv ...attribute.KeyValue) {
	if span := current(ctx); span != nil {
		span.SetAttributes(kv...)
	}
}
