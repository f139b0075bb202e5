/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checkout

import "chainguard.dev/scmcheckout/scm"

const defaultMeterName = "chainguard.dev/scmcheckout"

// Option customizes an Orchestrator.
type Option func(*config)

type config struct {
	listeners []scm.Listener
	meterName string
}

func defaultConfig() *config {
	return &config{meterName: defaultMeterName}
}

// WithListeners appends listeners notified after each successful checkout,
// in the order given.
func WithListeners(ls ...scm.Listener) Option {
	return func(c *config) { c.listeners = append(c.listeners, ls...) }
}

// WithMeterName overrides the OpenTelemetry meter the orchestrator records
// its counters with.
func WithMeterName(name string) Option {
	return func(c *config) { c.meterName = name }
}
