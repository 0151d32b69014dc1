// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{in: "jaeger.local:6831", want: Endpoint{Host: "jaeger.local", Port: 6831}},
		{in: "udp://127.0.0.1:6832", want: Endpoint{Host: "127.0.0.1", Port: 6832}},
		{in: DefaultEndpoint, want: Endpoint{Host: "localhost", Port: 6831}},
		{in: "", wantErr: true},
		{in: "jaeger.local", wantErr: true},
		{in: ":6831", wantErr: true},
		{in: "jaeger.local:0", wantErr: true},
		{in: "jaeger.local:70000", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEndpoint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "jaeger.local:6831", Endpoint{Host: "jaeger.local", Port: 6831}.String())
	assert.Equal(t, "[::1]:6831", Endpoint{Host: "::1", Port: 6831}.String())
}
