// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package tracing

import (
	"errors"
	"fmt"

	sdk "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jaegerlite/tracing/config"
)

// Sampler decides whether a trace is recorded and sent to the agent.
//
// The decision is taken for every root span, whether or not an incoming
// trace context was sampled by the caller.
type Sampler interface {
	validate() error
	convert() sdk.Sampler
}

// ConstSampler makes the same decision for every trace.
type ConstSampler struct {
	// Decision is true to sample every trace and false to sample none.
	Decision bool
}

var _ Sampler = ConstSampler{}

func (ConstSampler) validate() error { return nil }

func (s ConstSampler) convert() sdk.Sampler {
	if s.Decision {
		return sdk.AlwaysSample()
	}
	return sdk.NeverSample()
}

// ProbabilisticSampler samples a fraction of traces chosen by trace ID.
type ProbabilisticSampler struct {
	// Rate is the sampled fraction. It must be in the interval [0, 1].
	Rate float64
}

var _ Sampler = ProbabilisticSampler{}

var errSamplingRate = errors.New("probabilistic sampling rate must be in the range [0, 1]")

func (s ProbabilisticSampler) validate() error {
	if !(s.Rate >= 0 && s.Rate <= 1) {
		return fmt.Errorf("%w: %g", errSamplingRate, s.Rate)
	}
	return nil
}

func (s ProbabilisticSampler) convert() sdk.Sampler {
	return sdk.TraceIDRatioBased(s.Rate)
}

// DefaultSampler returns a sampler recording every trace.
func DefaultSampler() Sampler {
	return ConstSampler{Decision: true}
}

// newSamplerFromConfig returns the sampler named by c.
func newSamplerFromConfig(c config.Sampling) (Sampler, error) {
	switch c.Type {
	case config.SamplingConst, "":
		return DefaultSampler(), nil
	case config.SamplingProbabilistic:
		s := ProbabilisticSampler{Rate: c.Rate}
		return s, s.validate()
	default:
		return nil, fmt.Errorf("unknown sampler %q", string(c.Type))
	}
}

// convertSampler validates s and returns the SDK sampler it describes.
func convertSampler(s Sampler) (sdk.Sampler, error) {
	if s == nil {
		s = DefaultSampler()
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s.convert(), nil
}
