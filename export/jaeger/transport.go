// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultBufferSize is the number of spans buffered before a flush.
	DefaultBufferSize = 1

	// ServiceMajorKey and ServiceMinorKey name the span tags combined into
	// a "major-minor" service name.
	ServiceMajorKey = "service.major"
	ServiceMinorKey = "service.minor"

	processTagPrefix = "process."
)

// Transport buffers spans and sends them to a Jaeger agent as
// Agent.emitBatch datagrams.
//
// Delivery is best-effort. A batch that cannot be encoded or sent is logged
// and discarded, it is never retried. Transport is safe for concurrent use.
type Transport struct {
	logger        *slog.Logger
	serviceName   string
	maxBufferSize int
	metrics       *transportMetrics

	mu      sync.Mutex
	udp     *UDPTransport
	client  *agentClient
	buffer  []*Span
	process *Process
	closed  bool
}

// TransportOption configures a [Transport].
type TransportOption func(*transportConfig)

type transportConfig struct {
	logger        *slog.Logger
	maxBufferSize int
	registerer    prometheus.Registerer
}

// WithMaxBufferSize sets the number of spans buffered before they are sent.
// Non-positive values use [DefaultBufferSize].
func WithMaxBufferSize(n int) TransportOption {
	return func(c *transportConfig) { c.maxBufferSize = n }
}

// WithLogger sets the logger transport failures are reported to.
func WithLogger(l *slog.Logger) TransportOption {
	return func(c *transportConfig) { c.logger = l }
}

// WithRegisterer registers the transport metrics with reg.
func WithRegisterer(reg prometheus.Registerer) TransportOption {
	return func(c *transportConfig) { c.registerer = reg }
}

// NewTransport returns a Transport reporting spans for serviceName to the
// agent at hostPort. An error is returned if hostPort lacks a host or port.
func NewTransport(serviceName, hostPort string, opts ...TransportOption) (*Transport, error) {
	endpoint, err := ParseEndpoint(hostPort)
	if err != nil {
		return nil, err
	}

	c := transportConfig{maxBufferSize: DefaultBufferSize}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxBufferSize <= 0 {
		c.maxBufferSize = DefaultBufferSize
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	udp := NewUDPTransport(endpoint)
	return &Transport{
		logger:        c.logger,
		serviceName:   serviceName,
		maxBufferSize: c.maxBufferSize,
		metrics:       newTransportMetrics(c.registerer),
		udp:           udp,
		client:        newAgentClient(udp),
	}, nil
}

// Append adds span to the outbound buffer and flushes the buffer if it is
// full.
//
// Tags prefixed with "process." are moved to the batch process descriptor.
// If span has both a service.major and service.minor tag, they are removed
// and combined into the process service name. Otherwise the transport
// service name is used.
//
// The process descriptor of the whole batch is the one derived from the
// last appended span.
func (t *Transport) Append(span *Span) {
	if span == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.metrics.dropped.Inc()
		t.logger.Debug("jaeger: dropping span appended after close", "operation", span.OperationName)
		return
	}

	var processTags []*Tag
	spanTags := span.Tags[:0]
	for _, tag := range span.Tags {
		if hasPrefixFold(tag.Key, processTagPrefix) {
			processTags = append(processTags, tag)
			continue
		}
		spanTags = append(spanTags, tag)
	}
	span.Tags = spanTags

	serviceName := t.serviceName
	major, okMajor := span.Tag(ServiceMajorKey)
	minor, okMinor := span.Tag(ServiceMinorKey)
	if okMajor && okMinor {
		serviceName = fmt.Sprintf("%v-%v", major.Value(), minor.Value())
		span.Tags = removeTags(span.Tags, ServiceMajorKey, ServiceMinorKey)
	}

	t.process = &Process{ServiceName: serviceName, Tags: processTags}
	t.buffer = append(t.buffer, span)
	t.metrics.appended.Inc()

	t.flush(false)
}

// Flush sends the buffered spans if the buffer is full.
func (t *Transport) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flush(false)
}

// ForceFlush sends the buffered spans regardless of the buffer size.
func (t *Transport) ForceFlush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flush(true)
}

// Buffered returns the number of spans waiting to be sent.
func (t *Transport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Close sends any buffered spans and closes the socket. Spans appended
// after Close are dropped.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.flush(true)
	t.closed = true
	return t.udp.Close()
}

// flush sends the buffer as one batch. The caller must hold t.mu.
func (t *Transport) flush(force bool) {
	n := len(t.buffer)
	if n == 0 || (!force && n < t.maxBufferSize) {
		return
	}

	// Buffered spans are discarded whether or not the send succeeds.
	batch := &Batch{Process: t.process, Spans: t.buffer}
	t.buffer = nil
	t.process = nil

	if err := t.send(batch); err != nil {
		t.udp.Reset()
		t.metrics.failures.Inc()
		t.metrics.dropped.Add(float64(n))
		t.logger.Error("jaeger: transport failure", "error", err, "spans", n)
	}
}

func (t *Transport) send(batch *Batch) error {
	ctx := context.Background()
	if !t.udp.IsOpen() {
		if err := t.udp.Open(); err != nil {
			return err
		}
	}

	if err := t.client.EmitBatch(ctx, batch); err != nil {
		return fmt.Errorf("emit batch: %w", err)
	}

	size := t.udp.Len()
	if err := t.udp.Flush(ctx); err != nil {
		return err
	}

	t.metrics.batches.Inc()
	t.metrics.bytes.Add(float64(size))
	t.logger.Debug("jaeger: batch sent", "service", batch.Process.ServiceName, "spans", len(batch.Spans), "bytes", size)
	return nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func removeTags(tags []*Tag, keys ...string) []*Tag {
	out := tags[:0]
	for _, tag := range tags {
		drop := false
		for _, k := range keys {
			if tag.Key == k {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, tag)
		}
	}
	return out
}
