/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package buildrecord keeps a job's builds on the local filesystem.
//
// Each build owns a numbered directory under <job>/builds holding its
// changelog files and a build.json record. The record carries the build's
// revision store, the checkouts performed on it and the change sets parsed
// from their changelogs, so the next build (possibly in another process) can
// resolve its baselines from it.
package buildrecord
