// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadersRedactsWithWildcard(t *testing.T) {
	f := New(
		WithAllowedHeaders(Wildcard),
		WithSensitiveHeaders("authorization"),
	)

	got := f.Headers(Headers{
		"Authorization": {"Bearer xyz"},
		"X-Trace":       {"1"},
	})

	assert.Equal(t, Headers{
		"Authorization": {DefaultRedaction},
		"X-Trace":       {"1"},
	}, got)
}

func TestHeadersAllowList(t *testing.T) {
	f := New(
		WithAllowedHeaders("Content-Type", "authorization"),
		WithSensitiveHeaders("AUTHORIZATION", "cookie"),
	)

	in := Headers{
		"content-type":  {"application/json"},
		"Authorization": {"Bearer xyz", "Basic abc"},
		"Cookie":        {"session=1"},
		"User-Agent":    {"curl"},
	}
	got := f.Headers(in)

	assert.Equal(t, Headers{
		"content-type":  {"application/json"},
		"Authorization": {DefaultRedaction},
	}, got)

	// The input is left untouched.
	assert.Equal(t, []string{"Bearer xyz", "Basic abc"}, in["Authorization"])
}

func TestHeadersNeverLeaks(t *testing.T) {
	const secret = "s3cr3t"
	f := New(
		WithAllowedHeaders("x-a", "x-b", "x-token"),
		WithSensitiveHeaders("X-Token"),
	)

	in := Headers{
		"X-A":     {"a"},
		"x-b":     {"b"},
		"X-C":     {secret},
		"x-TOKEN": {secret},
	}
	for name, values := range f.Headers(in) {
		switch name {
		case "X-A", "x-b", "x-TOKEN":
		default:
			t.Errorf("header %q is not allowed", name)
		}
		for _, v := range values {
			assert.NotEqual(t, secret, v, name)
		}
	}
}

func TestHeadersZeroFilter(t *testing.T) {
	var f *Filter
	assert.Empty(t, f.Headers(Headers{"A": {"1"}}))
	assert.Empty(t, New().Headers(Headers{"A": {"1"}}))
}

func TestInput(t *testing.T) {
	f := New(
		WithSensitiveInput("Password"),
		WithRedaction("<redacted>"),
	)

	got := f.Input(map[string]any{
		"email":    "a@example.com",
		"password": "hunter2",
		"age":      42,
	})

	assert.Equal(t, map[string]any{
		"email":    "a@example.com",
		"password": "<redacted>",
		"age":      42,
	}, got)
	assert.Equal(t, "<redacted>", f.Redaction())
}
