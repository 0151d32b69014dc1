// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides the tracing configuration and its loaders.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/jaegerlite/tracing/filter"
)

// DefaultRedaction replaces the value of a sensitive header or input field.
const DefaultRedaction = filter.DefaultRedaction

// Config is the tracing configuration. It is loaded once at startup and is
// read-only afterwards.
type Config struct {
	// Enabled turns span recording and export on.
	Enabled bool `yaml:"enabled" env:"TRACING_ENABLED" env-description:"Record and export spans"`
	// ServiceName is the Jaeger service name reported for spans.
	ServiceName string `yaml:"service_name" env:"TRACING_SERVICE_NAME" env-description:"Service name reported to Jaeger"`
	// Host of the Jaeger agent.
	Host string `yaml:"host" env:"TRACING_HOST" env-description:"Jaeger agent host"`
	// Port of the Jaeger agent compact Thrift endpoint.
	Port int `yaml:"port" env:"TRACING_PORT" env-description:"Jaeger agent UDP port"`
	// Sampling configures which traces are recorded.
	Sampling Sampling `yaml:"sampling"`
	// BufferSize is the number of spans sent in one batch.
	BufferSize int `yaml:"buffer_size" env:"TRACING_BUFFER_SIZE" env-description:"Spans buffered before a batch is sent"`
	// Debug adds query bindings to database spans.
	Debug bool `yaml:"debug" env:"TRACING_DEBUG" env-description:"Record query bindings"`
	// LogLevel is the minimum level of the default logger.
	LogLevel string `yaml:"log_level" env:"TRACING_LOG_LEVEL" env-description:"Log level: debug, info, warn or error"`
	// SendInput records request bodies.
	SendInput bool `yaml:"send_input" env:"TRACING_SEND_INPUT" env-description:"Record request input"`
	// SendResponse records response bodies.
	SendResponse bool `yaml:"send_response" env:"TRACING_SEND_RESPONSE" env-description:"Record response content"`
	// Redaction replaces sensitive values.
	Redaction string `yaml:"redaction" env:"TRACING_REDACTION" env-description:"Replacement for sensitive values"`
	// Middleware configures the HTTP middleware.
	Middleware Middleware `yaml:"middleware"`
}

// Sampling configures the sampler.
type Sampling struct {
	Type SamplingType `yaml:"type" env:"TRACING_SAMPLING" env-description:"Sampler: const or probabilistic"`
	// Rate is the sampled fraction of traces for the probabilistic sampler.
	Rate float64 `yaml:"rate" env:"TRACING_SAMPLING_RATE" env-description:"Probabilistic sampling rate in [0, 1]"`
}

// Middleware configures which parts of a request are recorded.
type Middleware struct {
	// ExcludedPaths are glob patterns of request paths that are not traced.
	ExcludedPaths []string `yaml:"excluded_paths" env:"TRACING_EXCLUDED_PATHS" env-description:"Untraced path patterns"`
	// AllowedHeaders lists the recorded headers. "*" allows all.
	AllowedHeaders []string `yaml:"allowed_headers" env:"TRACING_ALLOWED_HEADERS" env-description:"Recorded headers, * for all"`
	// SensitiveHeaders lists headers whose values are redacted.
	SensitiveHeaders []string `yaml:"sensitive_headers" env:"TRACING_SENSITIVE_HEADERS" env-description:"Redacted headers"`
	// SensitiveInput lists input fields whose values are redacted.
	SensitiveInput []string `yaml:"sensitive_input" env:"TRACING_SENSITIVE_INPUT" env-description:"Redacted input fields"`
	// Payload selects the bodies that are recorded.
	Payload Payload `yaml:"payload"`
}

// Payload selects recorded request and response bodies.
type Payload struct {
	ContentTypes []string `yaml:"content_types" env:"TRACING_PAYLOAD_CONTENT_TYPES" env-description:"Recorded body content types"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Enabled:     true,
		ServiceName: "jaeger",
		Host:        "jaeger.local",
		Port:        6831,
		Sampling: Sampling{
			Type: SamplingConst,
			Rate: 0.5,
		},
		BufferSize: 1,
		LogLevel:   "info",
		Redaction:  DefaultRedaction,
		Middleware: Middleware{
			ExcludedPaths:    []string{},
			AllowedHeaders:   []string{"*"},
			SensitiveHeaders: []string{"authorization"},
			SensitiveInput:   []string{},
			Payload: Payload{
				ContentTypes: []string{"application/json"},
			},
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies the
// environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// LoadEnv applies the environment over the defaults.
func LoadEnv() (Config, error) {
	cfg := Default()
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config from environment: %w", err)
	}
	return cfg, cfg.Validate()
}

// Usage writes the supported environment variables to w.
func Usage(w io.Writer) {
	cfg := Default()
	header := "Environment variables:"
	cleanenv.FUsage(w, &cfg, &header)()
}

// Write writes cfg to w as YAML.
func Write(cfg Config, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

var (
	errServiceName = errors.New("service name is empty")
	errHost        = errors.New("agent host is empty")
	errPort        = errors.New("agent port must be in [1, 65535]")
)

// Validate reports every invalid field of c.
func (c Config) Validate() error {
	var err error
	if c.ServiceName == "" {
		err = errors.Join(err, errServiceName)
	}
	if c.Host == "" {
		err = errors.Join(err, errHost)
	}
	if c.Port <= 0 || c.Port > 65535 {
		err = errors.Join(err, fmt.Errorf("%w: %d", errPort, c.Port))
	}
	return errors.Join(err, c.Sampling.validate())
}

// AgentEndpoint returns the "host:port" address of the agent.
func (c Config) AgentEndpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
