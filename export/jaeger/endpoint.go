// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/goware/urlx"
)

// DefaultEndpoint is the agent address used when none is configured.
const DefaultEndpoint = "localhost:6831"

// ErrInvalidEndpoint is returned when an agent endpoint lacks a host or a
// port.
var ErrInvalidEndpoint = errors.New("jaeger: invalid agent endpoint")

// Endpoint is a validated agent address.
type Endpoint struct {
	Host string
	Port int
}

// ParseEndpoint parses a "host:port" agent address. A scheme such as
// "udp://" is accepted and ignored.
func ParseEndpoint(hostPort string) (Endpoint, error) {
	if hostPort == "" {
		return Endpoint{}, fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}
	u, err := urlx.ParseWithDefaultScheme(hostPort, "udp")
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, hostPort, err)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: %s is missing the host", ErrInvalidEndpoint, hostPort)
	}
	portStr := u.Port()
	if portStr == "" {
		return Endpoint{}, fmt.Errorf("%w: %s is missing the port", ErrInvalidEndpoint, hostPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: %s has an invalid port", ErrInvalidEndpoint, hostPort)
	}

	return Endpoint{Host: host, Port: port}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
