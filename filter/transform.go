// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package filter

import (
	"fmt"
	"sort"
	"strings"
)

// Transform renders h as a header block. Names are sorted (ignoring case), re-cased to
// Train-Case and aligned to the longest name. Every value is written on
// its own CRLF terminated line. An empty map renders as "".
func Transform(h Headers) string {
	if len(h) == 0 {
		return ""
	}

	names := make([]string, 0, len(h))
	width := 0
	for name := range h {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	width++ // Room for the colon.

	var b strings.Builder
	for _, name := range names {
		label := TrainCase(name) + ":"
		for _, v := range h[name] {
			fmt.Fprintf(&b, "%-*s %s\r\n", width, label, v)
		}
	}
	return b.String()
}

// TrainCase upper cases the first letter of every hyphen delimited segment
// of name and keeps the rest ("x-request-ID" becomes "X-Request-ID").
func TrainCase(name string) string {
	segments := strings.Split(name, "-")
	for i, s := range segments {
		if s == "" {
			continue
		}
		segments[i] = strings.ToUpper(s[:1]) + s[1:]
	}
	return strings.Join(segments, "-")
}

// ParseTransformed parses a header block produced by [Transform]. Lines
// without a colon are ignored.
func ParseTransformed(text string) Headers {
	out := make(Headers)
	for _, line := range strings.Split(text, "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" {
			continue
		}
		out[name] = append(out[name], strings.TrimLeft(value, " "))
	}
	return out
}
