// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Excluder matches request paths against glob patterns. Patterns use the
// doublestar syntax ("/assets/**", "/health", "api/*/status"); a leading
// slash is optional.
type Excluder struct {
	patterns []string
}

// NewExcluder returns an Excluder for patterns. An error is returned for an
// invalid pattern.
func NewExcluder(patterns []string) (*Excluder, error) {
	e := &Excluder{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = normalizePath(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid excluded path pattern %q", p)
		}
		e.patterns = append(e.patterns, p)
	}
	return e, nil
}

// Match reports whether path matches any pattern.
func (e *Excluder) Match(path string) bool {
	if e == nil {
		return false
	}
	path = normalizePath(path)
	for _, p := range e.patterns {
		if doublestar.MatchUnvalidated(p, path) {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "/")
}
