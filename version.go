// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

// Version is the current release version of the tracing module in use.
func Version() string {
	return "v0.3.0"
}
