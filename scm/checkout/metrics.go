/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checkout

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type metrics struct {
	runs      metric.Int64Counter
	discarded metric.Int64Counter
}

// newMetrics falls back to no-op counters when an instrument cannot be
// created; checkouts never fail because of metrics.
func newMetrics(meterName string) *metrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	runs, err := meter.Int64Counter("scm.checkout.runs",
		metric.WithDescription("The number of checkouts performed"),
		metric.WithUnit("{checkouts}"))
	if err != nil {
		slog.Warn("Failed to create checkout counter, metrics will be disabled", "error", err, "meter", meterName)
		runs = noop.Int64Counter{}
	}

	discarded, err := meter.Int64Counter("scm.checkout.changelog.discarded",
		metric.WithDescription("The number of changelog files discarded because the backend never wrote them"),
		metric.WithUnit("{files}"))
	if err != nil {
		slog.Warn("Failed to create discarded changelog counter, metrics will be disabled", "error", err, "meter", meterName)
		discarded = noop.Int64Counter{}
	}

	return &metrics{runs: runs, discarded: discarded}
}

func (m *metrics) recordRun(ctx context.Context, outcome string) {
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) recordDiscarded(ctx context.Context) {
	m.discarded.Add(ctx, 1)
}
