// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
)

// SamplingType names a sampler.
type SamplingType string

const (
	// SamplingConst samples every trace.
	SamplingConst SamplingType = "const"
	// SamplingProbabilistic samples a fraction of traces given by the rate.
	SamplingProbabilistic SamplingType = "probabilistic"
)

var (
	errSamplingType = errors.New("invalid sampling type")
	errSamplingRate = errors.New("sampling rate must be in the range [0, 1]")
)

// UnmarshalText applies the SamplingType when text names a known sampler.
func (s *SamplingType) UnmarshalText(text []byte) error {
	*s = SamplingType(bytes.ToLower(bytes.TrimSpace(text)))
	return s.validate()
}

// SetValue implements the cleanenv setter used for environment values.
func (s *SamplingType) SetValue(v string) error {
	return s.UnmarshalText([]byte(v))
}

func (s SamplingType) validate() error {
	switch s {
	case SamplingConst, SamplingProbabilistic:
		return nil
	default:
		return fmt.Errorf("%w: %q", errSamplingType, string(s))
	}
}

func (s Sampling) validate() error {
	err := s.Type.validate()
	if s.Type == SamplingProbabilistic && !(s.Rate >= 0 && s.Rate <= 1) {
		err = errors.Join(err, fmt.Errorf("%w: %g", errSamplingRate, s.Rate))
	}
	return err
}
