/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package polling decides whether a source moved since the last build.
//
// A Poller reads the snapshot a build recorded for a backend's source and
// asks the backend, through scm.RemoteComparer, whether the remote is still
// at that snapshot. Failed comparisons are retried with exponential backoff and
// jitter before the poll gives up.
package polling
