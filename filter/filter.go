// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package filter decides which request data is safe to attach to a span and
// renders header maps into a stable textual form.
package filter

import "strings"

// Wildcard is the allow-list entry that allows every header.
const Wildcard = "*"

// DefaultRedaction replaces the value of sensitive headers and input fields.
const DefaultRedaction = "This value is hidden because it contains sensitive info"

// Headers maps a header name to one or many values.
type Headers map[string][]string

// Filter restricts and redacts headers and input fields. The zero value
// drops every header and redacts nothing.
type Filter struct {
	allowAll  bool
	allowed   map[string]struct{}
	sensitive map[string]struct{}
	input     map[string]struct{}
	marker    string
}

// Option configures a [Filter].
type Option func(*Filter)

// WithAllowedHeaders sets the header names that may be attached to a span.
// A [Wildcard] entry allows every header.
func WithAllowedHeaders(names ...string) Option {
	return func(f *Filter) {
		for _, n := range names {
			if n == Wildcard {
				f.allowAll = true
				continue
			}
			f.allowed[strings.ToLower(n)] = struct{}{}
		}
	}
}

// WithSensitiveHeaders sets the header names whose values are redacted.
func WithSensitiveHeaders(names ...string) Option {
	return func(f *Filter) { addFolded(f.sensitive, names) }
}

// WithSensitiveInput sets the input field names whose values are redacted.
func WithSensitiveInput(names ...string) Option {
	return func(f *Filter) { addFolded(f.input, names) }
}

// WithRedaction overrides [DefaultRedaction].
func WithRedaction(marker string) Option {
	return func(f *Filter) { f.marker = marker }
}

func addFolded(dst map[string]struct{}, names []string) {
	for _, n := range names {
		dst[strings.ToLower(n)] = struct{}{}
	}
}

// New returns a configured Filter.
func New(opts ...Option) *Filter {
	f := &Filter{
		allowed:   make(map[string]struct{}),
		sensitive: make(map[string]struct{}),
		input:     make(map[string]struct{}),
		marker:    DefaultRedaction,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Headers returns the headers of h that pass the allow-list, with the
// values of sensitive headers replaced by the redaction marker. h is not
// modified.
func (f *Filter) Headers(h Headers) Headers {
	out := make(Headers, len(h))
	if f == nil {
		return out
	}
	for name, values := range h {
		lower := strings.ToLower(name)
		if !f.allowAll {
			if _, ok := f.allowed[lower]; !ok {
				continue
			}
		}
		if _, ok := f.sensitive[lower]; ok {
			out[name] = []string{f.marker}
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// Input returns a copy of in with the values of sensitive fields replaced
// by the redaction marker.
func (f *Filter) Input(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for name, v := range in {
		if f != nil {
			if _, ok := f.input[strings.ToLower(name)]; ok {
				out[name] = f.marker
				continue
			}
		}
		out[name] = v
	}
	return out
}

// Redaction returns the marker used for redacted values.
func (f *Filter) Redaction() string {
	if f == nil {
		return DefaultRedaction
	}
	return f.marker
}
