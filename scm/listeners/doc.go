/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package listeners provides scm.Listener implementations that observe
// completed checkouts: a logger, Prometheus counters, and a recorder that
// attaches checkout records and parsed change sets to the build.
//
//	orch := checkout.New(checkout.WithListeners(
//		listeners.Logging{},
//		listeners.Metrics{},
//		listeners.Recorder{},
//	))
package listeners
