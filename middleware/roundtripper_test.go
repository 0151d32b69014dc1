// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaegerlite/tracing"
	"github.com/jaegerlite/tracing/propagation"
)

func TestRoundTripper(t *testing.T) {
	cfg := newAgent(t).config()
	cfg.SendInput = true
	cfg.SendResponse = true
	tr, exp := newTracer(t, cfg)

	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"missing"}`)
	}))
	t.Cleanup(srv.Close)

	stack := tr.NewStack()
	root := stack.StartSpan("GET /orders", trace.SpanContext{}, trace.SpanKindServer)
	ctx := tracing.ContextWithStack(context.Background(), stack)

	client := &http.Client{Transport: NewRoundTripper(tr, nil, "inventory")}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/items?sku=7", strings.NewReader(`{"qty":3}`))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, `{"error":"missing"}`, string(body), "body not restored")

	assert.Same(t, root, stack.CurrentSpan(), "client span left on the stack")
	assert.Empty(t, req.Header, "caller request mutated")
	stack.Stop()

	host := strings.TrimPrefix(srv.URL, "http://")
	s := spanNamed(t, exp, "POST "+host+"/items")
	assert.Equal(t, trace.SpanKindClient, s.SpanKind)
	assert.Equal(t, root.SpanContext().SpanID(), s.Parent.SpanID())
	assert.Equal(t, propagation.Format(s.SpanContext), traceparent)
	assert.Equal(t, codes.Error, s.Status.Code)

	v, _ := attr(s, tracing.ServiceMinorKey)
	assert.Equal(t, "inventory", v.AsString())
	v, _ = attr(s, KeyRequestQuery)
	assert.JSONEq(t, `{"sku":["7"]}`, v.AsString())
	v, _ = attr(s, KeyRequestInput)
	assert.JSONEq(t, `{"qty":3}`, v.AsString())
	v, _ = attr(s, KeyResponseStatusCode)
	assert.Equal(t, int64(http.StatusNotFound), v.AsInt64())
	v, _ = attr(s, KeyResponseRaw)
	assert.Equal(t, `{"error":"missing"}`, v.AsString())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRoundTripperError(t *testing.T) {
	tr, exp := newTracer(t, newAgent(t).config())
	errDial := errors.New("connection refused")
	rt := NewRoundTripper(tr, roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errDial
	}), "")

	stack := tr.NewStack()
	ctx := tracing.ContextWithStack(context.Background(), stack)
	req := httptest.NewRequest(http.MethodGet, "http://payments.local/charge", nil).WithContext(ctx)
	_, err := rt.RoundTrip(req)
	assert.ErrorIs(t, err, errDial)

	s := spanNamed(t, exp, "GET payments.local/charge")
	assert.Equal(t, codes.Error, s.Status.Code)
	assert.Equal(t, "connection refused", s.Status.Description)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "exception", s.Events[0].Name)
	_, ok := attr(s, tracing.ServiceMinorKey)
	assert.False(t, ok)
}

func TestRoundTripperUntraced(t *testing.T) {
	tr, exp := newTracer(t, newAgent(t).config())
	var got *http.Request
	rt := NewRoundTripper(tr, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}), "")

	req := httptest.NewRequest(http.MethodGet, "http://payments.local/", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Same(t, req, got)
	assert.Empty(t, got.Header)
	assert.Empty(t, exp.GetSpans())
}

func TestRoundTripperOverlappingCalls(t *testing.T) {
	tr, exp := newTracer(t, newAgent(t).config())

	var arrived sync.WaitGroup
	arrived.Add(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived.Done()
		arrived.Wait()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	stack := tr.NewStack()
	root := stack.StartSpan("GET /checkout", trace.SpanContext{}, trace.SpanKindServer)
	ctx := tracing.ContextWithStack(context.Background(), stack)
	client := &http.Client{Transport: NewRoundTripper(tr, nil, "")}

	var wg sync.WaitGroup
	for _, path := range []string{"/stock", "/price"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
			if !assert.NoError(t, err) {
				arrived.Done()
				return
			}
			resp, err := client.Do(req)
			if assert.NoError(t, err) {
				_ = resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Same(t, root, stack.CurrentSpan())
	assert.Equal(t, 1, stack.Depth())
	stack.Stop()

	host := strings.TrimPrefix(srv.URL, "http://")
	for _, name := range []string{"GET " + host + "/stock", "GET " + host + "/price"} {
		s := spanNamed(t, exp, name)
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent.SpanID(), name)
		assert.False(t, s.EndTime.IsZero(), name)
	}
}

func TestRoundTripperResponseCapture(t *testing.T) {
	cfg := newAgent(t).config()
	cfg.SendResponse = true
	tr, exp := newTracer(t, cfg)

	large := strings.Repeat("a", maxContentSize+4096)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, large[:1024])
		w.(http.Flusher).Flush()
		<-release
		_, _ = io.WriteString(w, large[1024:])
	}))
	t.Cleanup(srv.Close)

	stack := tr.NewStack()
	stack.StartSpan("GET /export", trace.SpanContext{}, trace.SpanKindServer)
	ctx := tracing.ContextWithStack(context.Background(), stack)
	client := &http.Client{Transport: NewRoundTripper(tr, nil, "")}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/dump", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	close(release)
	require.NoError(t, err, "response returned before the body was complete")

	host := strings.TrimPrefix(srv.URL, "http://")
	for _, s := range exp.GetSpans() {
		assert.NotEqual(t, "GET "+host+"/dump", s.Name, "client span ended before the body was read")
	}

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, large, string(body))
	stack.Stop()

	s := spanNamed(t, exp, "GET "+host+"/dump")
	v, ok := attr(s, KeyResponseRaw)
	require.True(t, ok)
	assert.Contains(t, v.AsString(), large[:maxContentSize])
	assert.NotContains(t, v.AsString(), large[:maxContentSize+1])
}

func TestRoundTripperResponseClosedUnread(t *testing.T) {
	cfg := newAgent(t).config()
	cfg.SendResponse = true
	tr, exp := newTracer(t, cfg)

	rt := NewRoundTripper(tr, roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("ignored")),
		}, nil
	}), "")

	stack := tr.NewStack()
	ctx := tracing.ContextWithStack(context.Background(), stack)
	req := httptest.NewRequest(http.MethodGet, "http://reports.local/daily", nil).WithContext(ctx)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, resp.Body.Close())

	s := spanNamed(t, exp, "GET reports.local/daily")
	v, ok := attr(s, KeyResponseRaw)
	require.True(t, ok)
	assert.Equal(t, `""`, v.AsString())
	assert.Len(t, exp.GetSpans(), 1)
}
