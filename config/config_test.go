// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.True(t, c.Enabled)
	assert.Equal(t, "jaeger", c.ServiceName)
	assert.Equal(t, "jaeger.local:6831", c.AgentEndpoint())
	assert.Equal(t, SamplingConst, c.Sampling.Type)
	assert.Equal(t, 0.5, c.Sampling.Rate)
	assert.Equal(t, 1, c.BufferSize)
	assert.False(t, c.SendInput)
	assert.False(t, c.SendResponse)
	assert.Equal(t, []string{"*"}, c.Middleware.AllowedHeaders)
	assert.Equal(t, []string{"authorization"}, c.Middleware.SensitiveHeaders)
	assert.Equal(t, []string{"application/json"}, c.Middleware.Payload.ContentTypes)
	assert.Equal(t, DefaultRedaction, c.Redaction)
	assert.NoError(t, c.Validate())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("TRACING_HOST", "127.0.0.1")
	t.Setenv("TRACING_PORT", "6832")
	t.Setenv("TRACING_SERVICE_NAME", "orders")
	t.Setenv("TRACING_SAMPLING", "Probabilistic")
	t.Setenv("TRACING_SAMPLING_RATE", "0.25")
	t.Setenv("TRACING_SEND_INPUT", "true")
	t.Setenv("TRACING_SENSITIVE_HEADERS", "authorization,cookie")

	c, err := LoadEnv()
	require.NoError(t, err)
	assert.False(t, c.Enabled)
	assert.Equal(t, "127.0.0.1:6832", c.AgentEndpoint())
	assert.Equal(t, "orders", c.ServiceName)
	assert.Equal(t, SamplingProbabilistic, c.Sampling.Type)
	assert.Equal(t, 0.25, c.Sampling.Rate)
	assert.True(t, c.SendInput)
	assert.Equal(t, []string{"authorization", "cookie"}, c.Middleware.SensitiveHeaders)
	assert.Equal(t, []string{"*"}, c.Middleware.AllowedHeaders, "untouched default")
}

func TestLoadEnvInvalid(t *testing.T) {
	t.Setenv("TRACING_SAMPLING", "sometimes")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
enabled: false
service_name: orders
host: agent
port: 5775
sampling:
  type: probabilistic
  rate: 0
middleware:
  excluded_paths: ["/health", "/assets/**"]
  sensitive_input: [password]
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.False(t, c.Enabled, "file value replaced by default")
	assert.Equal(t, "orders", c.ServiceName)
	assert.Equal(t, "agent:5775", c.AgentEndpoint())
	assert.Equal(t, SamplingProbabilistic, c.Sampling.Type)
	assert.Zero(t, c.Sampling.Rate, "file value replaced by default")
	assert.Equal(t, []string{"/health", "/assets/**"}, c.Middleware.ExcludedPaths)
	assert.Equal(t, []string{"password"}, c.Middleware.SensitiveInput)
	assert.Equal(t, []string{"authorization"}, c.Middleware.SensitiveHeaders)
}

func TestLoadFileEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("host: agent\n"), 0o600))
	t.Setenv("TRACING_HOST", "override")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override", c.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"ServiceName", func(c *Config) { c.ServiceName = "" }, errServiceName},
		{"Host", func(c *Config) { c.Host = "" }, errHost},
		{"PortZero", func(c *Config) { c.Port = 0 }, errPort},
		{"PortHigh", func(c *Config) { c.Port = 70000 }, errPort},
		{"SamplingType", func(c *Config) { c.Sampling.Type = "ratio" }, errSamplingType},
		{"SamplingRate", func(c *Config) {
			c.Sampling.Type = SamplingProbabilistic
			c.Sampling.Rate = 1.5
		}, errSamplingRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), tt.wantErr)
		})
	}

	c := Default()
	c.Sampling.Rate = 7
	assert.NoError(t, c.Validate(), "rate ignored by const sampler")
}

func TestWriteLoadRoundTrip(t *testing.T) {
	want := Default()
	want.ServiceName = "orders"
	want.Sampling = Sampling{Type: SamplingProbabilistic, Rate: 0.1}
	want.Middleware.ExcludedPaths = []string{"/health"}

	var buf bytes.Buffer
	require.NoError(t, Write(want, &buf))
	assert.Contains(t, buf.String(), "service_name: orders")

	path := filepath.Join(t.TempDir(), "tracing.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUsage(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)
	assert.Contains(t, buf.String(), "TRACING_HOST")
	assert.Contains(t, buf.String(), "TRACING_SAMPLING_RATE")
}
