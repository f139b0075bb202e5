/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package listeners

import (
	"context"
	"io"
	"strconv"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkoutCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scm_checkouts_total",
		Help: "Total number of completed checkouts",
	},
	[]string{"backend", "changelog", "polling_baseline"},
)

// Metrics counts checkouts by source and by whether they produced a
// changelog and a polling baseline.
type Metrics struct{}

var _ scm.Listener = Metrics{}

// OnCheckout implements scm.Listener.
func (Metrics) OnCheckout(_ context.Context, _ scm.Build, backend scm.Backend, _ string, _ io.Writer, changelogPath string, pollingBaseline revisionstate.Snapshot) error {
	checkoutCounter.With(prometheus.Labels{
		"backend":          string(backend.SourceID()),
		"changelog":        strconv.FormatBool(changelogPath != ""),
		"polling_baseline": strconv.FormatBool(pollingBaseline != nil),
	}).Inc()
	return nil
}
