// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/apache/thrift/lib/go/thrift"
)

// MaxUDPPacketSize is the largest datagram sent to the agent.
const MaxUDPPacketSize = 65000

var (
	// ErrPacketTooLarge is returned when a write would grow the pending
	// datagram beyond MaxUDPPacketSize.
	ErrPacketTooLarge = errors.New("jaeger: data does not fit within one UDP packet")

	errWriteOnly = errors.New("jaeger: UDP transport is write-only")
	errClosed    = errors.New("jaeger: UDP transport is closed")
)

// UDPTransport is a write-only [thrift.TTransport] buffering exactly one
// datagram. Flush sends the buffered bytes to the agent.
//
// A UDPTransport is not safe for concurrent use.
type UDPTransport struct {
	endpoint Endpoint
	maxSize  int

	conn   net.Conn
	buf    bytes.Buffer
	closed bool
}

var _ thrift.TTransport = (*UDPTransport)(nil)

// NewUDPTransport returns a transport that sends to e. The socket is opened
// lazily.
func NewUDPTransport(e Endpoint) *UDPTransport {
	return &UDPTransport{endpoint: e, maxSize: MaxUDPPacketSize}
}

// Open opens the UDP socket. Opening an open transport is a no-op.
func (t *UDPTransport) Open() error {
	if t.conn != nil {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", t.endpoint.String())
	if err != nil {
		return fmt.Errorf("jaeger: resolve agent %s: %w", t.endpoint, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("jaeger: dial agent %s: %w", t.endpoint, err)
	}
	t.conn = conn
	t.closed = false
	return nil
}

// IsOpen reports whether the socket is open.
func (t *UDPTransport) IsOpen() bool { return t.conn != nil }

// Read is not supported.
func (t *UDPTransport) Read([]byte) (int, error) { return 0, errWriteOnly }

// RemainingBytes reports an unknown amount of readable data.
func (t *UDPTransport) RemainingBytes() uint64 { return ^uint64(0) }

// Write buffers p. ErrPacketTooLarge is returned, and nothing is buffered,
// if p does not fit in the pending datagram.
func (t *UDPTransport) Write(p []byte) (int, error) {
	if t.buf.Len()+len(p) > t.maxSize {
		return 0, ErrPacketTooLarge
	}
	return t.buf.Write(p)
}

// Len returns the number of pending bytes.
func (t *UDPTransport) Len() int { return t.buf.Len() }

// Reset discards the pending bytes.
func (t *UDPTransport) Reset() { t.buf.Reset() }

// Flush sends the pending bytes as one datagram. The pending bytes are
// discarded whether or not the send succeeds.
func (t *UDPTransport) Flush(context.Context) error {
	if t.buf.Len() == 0 {
		return nil
	}
	defer t.buf.Reset()

	if t.closed {
		return errClosed
	}
	if err := t.Open(); err != nil {
		return err
	}
	if _, err := t.conn.Write(t.buf.Bytes()); err != nil {
		return fmt.Errorf("jaeger: could not flush data: %w", err)
	}
	return nil
}

// Close closes the socket. Pending bytes are discarded.
func (t *UDPTransport) Close() error {
	t.buf.Reset()
	t.closed = true
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
