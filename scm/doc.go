/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package scm defines the collaborators a checkout step works with: the
// build record it runs in, the version-control backend that performs the
// checkout, the execution environment handle, and the listeners notified
// after a successful checkout.
//
// Backends implement Backend and may additionally implement the optional
// capabilities ChangelogFormat, ChangelogParser and RemoteComparer. The
// checkout orchestrator lives in scm/checkout and the per-build revision
// snapshots in scm/revisionstate.
package scm
