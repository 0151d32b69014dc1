// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/collector/pdata/ptrace"

	"github.com/jaegerlite/tracing/export/jaeger"
)

// Sink receives and decodes emitBatch datagrams.
type Sink struct {
	conn   net.PacketConn
	logger *slog.Logger
	out    io.Writer

	batches      prometheus.Counter
	spans        *prometheus.CounterVec
	decodeErrors prometheus.Counter

	mu sync.Mutex
}

// NewSink returns a Sink reading from conn. Metrics are registered with
// reg.
func NewSink(conn net.PacketConn, logger *slog.Logger, reg prometheus.Registerer) *Sink {
	f := promauto.With(reg)
	return &Sink{
		conn:   conn,
		logger: logger,
		batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: "agentsink",
			Name:      "batches_received_total",
			Help:      "Number of emitBatch datagrams decoded.",
		}),
		spans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsink",
			Name:      "spans_received_total",
			Help:      "Number of spans received per service.",
		}, []string{"service"}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "agentsink",
			Name:      "decode_errors_total",
			Help:      "Number of datagrams that could not be decoded.",
		}),
	}
}

// Run receives datagrams until ctx is done. The connection is closed when
// Run returns.
func (s *Sink) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, jaeger.MaxUDPPacketSize)
	for {
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.handle(ctx, from, buf[:n])
	}
}

func (s *Sink) handle(ctx context.Context, from net.Addr, data []byte) {
	b, err := jaeger.DecodeEmitBatch(ctx, data)
	if err != nil {
		s.decodeErrors.Inc()
		s.logger.Warn("undecodable datagram", "from", from.String(), "bytes", len(data), "error", err)
		return
	}

	service := ""
	if b.Process != nil {
		service = b.Process.ServiceName
	}
	s.batches.Inc()
	s.spans.WithLabelValues(service).Add(float64(len(b.Spans)))

	names := make([]string, len(b.Spans))
	for i, span := range b.Spans {
		names[i] = span.OperationName
	}
	s.logger.Info(
		"batch received",
		"from", from.String(),
		"bytes", len(data),
		"service", service,
		"spans", len(b.Spans),
		"operations", names,
	)

	if s.out != nil {
		s.writeOTLP(b)
	}
}

func (s *Sink) writeOTLP(b *jaeger.Batch) {
	var m ptrace.JSONMarshaler
	data, err := m.MarshalTraces(b.Traces())
	if err != nil {
		s.logger.Error("failed to marshal batch", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.logger.Error("failed to write batch", "error", err)
	}
}
