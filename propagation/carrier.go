// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package propagation

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/propagation"
)

// Carrier is a header-shaped map of names to one or many values used to
// transport a span context across a network call.
//
// Lookups through Get are case-insensitive on the header name. Set replaces
// any existing entry whose name matches case-insensitively.
type Carrier map[string][]string

var _ propagation.TextMapCarrier = Carrier(nil)

// CarrierFromHeader returns a Carrier sharing storage with h.
func CarrierFromHeader(h http.Header) Carrier { return Carrier(h) }

// Get returns the first value associated with key. An empty string is
// returned if no such value exists.
func (c Carrier) Get(key string) string {
	v := c.Values(key)
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Values returns all values associated with key.
func (c Carrier) Values(key string) []string {
	if v, ok := c[key]; ok {
		return v
	}
	for k, v := range c {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// Set stores value as the only value for key. It is a no-op on a nil
// Carrier.
func (c Carrier) Set(key, value string) {
	if c == nil {
		return
	}
	for k := range c {
		if k != key && strings.EqualFold(k, key) {
			delete(c, k)
		}
	}
	c[key] = []string{value}
}

// Keys returns the header names stored in the carrier.
func (c Carrier) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}
