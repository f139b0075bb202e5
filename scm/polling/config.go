/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package polling

import (
	"errors"
	"time"
)

// Config configures how failed remote comparisons are retried.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (default: 3).
	// 0 means do not retry at all.
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`

	// BaseBackoff is the initial backoff duration (default: 500ms)
	BaseBackoff time.Duration `json:"baseBackoff" yaml:"baseBackoff"`

	// MaxBackoff is the maximum backoff duration (default: 10s)
	MaxBackoff time.Duration `json:"maxBackoff" yaml:"maxBackoff"`

	// MaxJitter is the maximum random jitter added to backoff (default: 250ms)
	MaxJitter time.Duration `json:"maxJitter" yaml:"maxJitter"`
}

// Validate checks that the configuration has valid values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.MaxBackoff < c.BaseBackoff {
		return errors.New("max backoff cannot be less than base backoff")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig returns the configuration used by pollers that are not
// given one.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}
