// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "jaeger"
	metricsSubsystem = "transport"
)

type transportMetrics struct {
	appended prometheus.Counter
	batches  prometheus.Counter
	bytes    prometheus.Counter
	dropped  prometheus.Counter
	failures prometheus.Counter
}

// newTransportMetrics registers the transport counters with reg. A nil reg
// leaves the counters unregistered. Counters already registered with reg,
// by an earlier transport, are shared.
func newTransportMetrics(reg prometheus.Registerer) *transportMetrics {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
		return register(reg, c)
	}
	return &transportMetrics{
		appended: counter("spans_appended_total", "Spans appended to the outbound buffer."),
		batches:  counter("batches_sent_total", "Batches sent to the agent."),
		bytes:    counter("bytes_sent_total", "Datagram bytes sent to the agent."),
		dropped:  counter("spans_dropped_total", "Spans discarded because a flush failed or the transport was closed."),
		failures: counter("send_failures_total", "Flushes that failed to encode or send a batch."),
	}
}

// register registers c with reg and returns the collector to use: c, or
// the counter already registered under the same name. If registration
// fails otherwise, c is used unregistered.
func register(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
			return existing
		}
	}
	return c
}
