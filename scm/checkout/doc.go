/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package checkout runs a single version-control checkout as one step of a
// pipeline build.
//
// The Orchestrator owns the lifecycle around the backend call:
//   - Allocate a changelog file in the build's storage area when requested.
//   - Look up the baseline snapshot recorded by the previous build.
//   - Invoke the backend, then discard a changelog the backend never touched.
//   - Compute the new snapshot and record it on the current build.
//   - Notify listeners and finally call the backend's PostCheckout.
//
// Any failure removes the changelog file and is returned to the caller
// unchanged. The Orchestrator never retries.
//
// Step wraps the Orchestrator with the step-level surface: the poll,
// changelog and label configuration, attaching the label to the invoking
// graph node, and returning the backend's environment variables.
package checkout
