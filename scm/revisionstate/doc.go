/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package revisionstate records, per build, the revision snapshot each
// version-control source was checked out at.
//
// A Store is attached to a build record the first time a checkout on that
// build produces a snapshot. The next build of the same job reads it back to
// obtain the baseline handed to the backend, and pollers read it to decide
// whether a source has moved since.
//
// A Store performs no locking of its own. Every access, including the
// lookup-or-create that attaches a new Store to a build, must happen while
// holding the owning build record's lock:
//
//	build.Lock()
//	st := build.RevisionState()
//	if st == nil {
//		st = revisionstate.New()
//		build.SetRevisionState(st)
//	}
//	st.Put(backend.SourceID(), snapshot)
//	build.Unlock()
package revisionstate
