// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/jaegerlite/tracing"
)

// RoundTripper traces requests made with an http.Client. Requests whose
// context carries no [tracing.Stack] are sent untraced.
//
// Every request gets its own fork of the request stack, so concurrent
// calls made while serving one request are siblings. The client span ends
// when RoundTrip fails or, once a response is returned, when its body is
// read to the end or closed.
type RoundTripper struct {
	client  *Client
	next    http.RoundTripper
	service string
}

var _ http.RoundTripper = (*RoundTripper)(nil)

// NewRoundTripper returns a RoundTripper sending requests with next, or
// http.DefaultTransport if next is nil. A non-empty service is recorded as
// the minor service name of every span.
func NewRoundTripper(t *tracing.Tracer, next http.RoundTripper, service string) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{client: NewClient(t), next: next, service: service}
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	stack, ok := tracing.StackFromContextOK(req.Context())
	if !ok {
		return rt.next.RoundTrip(req)
	}
	fork := stack.Fork()
	ctx := tracing.ContextWithStack(req.Context(), fork)

	c := rt.client
	span := c.StartSpan(ctx, req.Method+" "+req.URL.Host+req.URL.Path)

	req = req.Clone(ctx)
	req.Header = c.InjectSpanContextIntoHeaders(ctx, req.Header)
	if rt.service != "" {
		c.AddMinorServiceName(ctx, rt.service)
	}
	c.AddRequestHeaders(ctx, req.Header)
	if len(req.URL.RawQuery) > 0 {
		c.AddRequestQuery(ctx, req.URL.Query())
	}
	if input := rt.input(req); input != nil {
		c.AddRequestInput(ctx, input)
	}

	resp, err := rt.next.RoundTrip(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fork.Stop()
		return resp, err
	}

	c.AddResponseStatusCode(ctx, resp.StatusCode)
	c.AddResponseHeaders(ctx, resp.Header)
	span.SetStatus(SpanStatus(resp.StatusCode))

	if !c.tracer.Config().SendResponse || resp.Body == nil || resp.Body == http.NoBody {
		fork.Stop()
		return resp, nil
	}
	resp.Body = &capturedBody{
		ReadCloser: resp.Body,
		finish: func(content []byte) {
			c.AddRawResponse(ctx, content)
			fork.Stop()
		},
	}
	return resp, nil
}

// input returns the JSON object body of req without consuming it.
func (rt *RoundTripper) input(req *http.Request) map[string]any {
	if !rt.client.tracer.Config().SendInput || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil
	}
	defer body.Close()

	var input map[string]any
	if err := json.NewDecoder(body).Decode(&input); err != nil {
		return nil
	}
	return input
}

// capturedBody copies up to maxContentSize bytes of a response body as it
// is read and calls finish once, at EOF or Close.
type capturedBody struct {
	io.ReadCloser
	finish func([]byte)

	mu      sync.Mutex
	content bytes.Buffer
	once    sync.Once
}

func (b *capturedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.mu.Lock()
	if room := maxContentSize - b.content.Len(); room > 0 {
		b.content.Write(p[:min(n, room)])
	}
	b.mu.Unlock()
	if err == io.EOF {
		b.done()
	}
	return n, err
}

func (b *capturedBody) Close() error {
	err := b.ReadCloser.Close()
	b.done()
	return err
}

func (b *capturedBody) done() {
	b.once.Do(func() {
		b.mu.Lock()
		content := bytes.Clone(b.content.Bytes())
		b.mu.Unlock()
		b.finish(content)
	})
}
