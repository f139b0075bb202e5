/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitscm is a git backend for checkout steps, built on go-git.
//
// A Backend is bound to one remote URL and branch. Checkout clones the
// remote into the workspace on first use and afterwards fetches, resets and
// cleans the existing clone before checking out the branch head. Snapshots
// are commit hashes.
//
// When the orchestrator provides a changelog path and the previous build
// recorded a snapshot, the commits between that snapshot and the new head
// are written to the changelog as YAML:
//
//	commits:
//	  - revision: 4b825dc642cb6eb9a060e54bf8d69288fbee4904
//	    author: Jane Doe
//	    email: jane@example.com
//	    when: 2026-01-02T03:04:05Z
//	    message: fix the build
//
// On a job's first build there is nothing to compare against and the
// changelog is left untouched.
package gitscm
