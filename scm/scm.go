/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package scm

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"chainguard.dev/scmcheckout/scm/revisionstate"
)

// Build is the record of one run of a pipeline job, as seen by a checkout.
//
// The embedded Locker is scoped to this record. It guards the attached
// revision store: RevisionState and SetRevisionState, and every Get or Put on
// the returned store, must only be called while holding it.
type Build interface {
	sync.Locker

	// Number is the build's sequence number within its job.
	Number() int

	// RootDir is the build's private storage area. Changelog files are
	// created here.
	RootDir() string

	// Previous returns the prior build of the same job, or nil for the first
	// build.
	Previous() Build

	// RevisionState returns the attached store, or nil if none was attached.
	RevisionState() *revisionstate.Store

	// SetRevisionState attaches st to the record. It is persisted with it.
	SetRevisionState(st *revisionstate.Store)
}

// Launcher is the execution-environment handle a step runs with. The
// orchestrator passes it to the backend untouched.
type Launcher interface {
	// Node names the executor hosting the workspace.
	Node() string
}

// LocalLauncher runs everything in the current process on this host.
type LocalLauncher struct{}

// Node implements Launcher.
func (LocalLauncher) Node() string { return "local" }

// Backend is a version-control integration bound to a single source. A step
// creates one per execution and does not cache it.
type Backend interface {
	// SourceID identifies the source this backend checks out. It keys the
	// revision store.
	SourceID() revisionstate.SourceID

	// Checkout brings workspace to the source's current state. When
	// changelogPath is non-empty the backend may write a changelog there;
	// baseline is the previous build's snapshot, or nil.
	Checkout(ctx context.Context, build Build, launcher Launcher, workspace string, out io.Writer, changelogPath string, baseline revisionstate.Snapshot) error

	// CalcRevisionsFromBuild computes the snapshot of what is checked out in
	// workspace. A nil snapshot with a nil error means the backend has none.
	CalcRevisionsFromBuild(ctx context.Context, build Build, workspace string, launcher Launcher, out io.Writer) (revisionstate.Snapshot, error)

	// PostCheckout runs after listeners were notified of a successful checkout.
	PostCheckout(ctx context.Context, build Build, launcher Launcher, workspace string, out io.Writer) error

	// BuildEnvironment adds the backend's environment variables to env.
	BuildEnvironment(build Build, env map[string]string)
}

// Listener is notified after each successful checkout, before the backend's
// PostCheckout. Listeners run in registration order; an error from one stops
// the remaining listeners and fails the checkout.
type Listener interface {
	OnCheckout(ctx context.Context, build Build, backend Backend, workspace string, out io.Writer, changelogPath string, pollingBaseline revisionstate.Snapshot) error
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(ctx context.Context, build Build, backend Backend, workspace string, out io.Writer, changelogPath string, pollingBaseline revisionstate.Snapshot) error

// OnCheckout implements Listener.
func (f ListenerFunc) OnCheckout(ctx context.Context, build Build, backend Backend, workspace string, out io.Writer, changelogPath string, pollingBaseline revisionstate.Snapshot) error {
	return f(ctx, build, backend, workspace, out, changelogPath, pollingBaseline)
}

// ChangelogFormat is implemented by backends that write changelogs in a
// format with a conventional file extension, such as ".yaml".
type ChangelogFormat interface {
	ChangelogExtension() string
}

// ChangelogParser is implemented by backends that can read back the
// changelogs they write.
type ChangelogParser interface {
	ParseChangelog(ctx context.Context, build Build, path string) ([]ChangeEntry, error)
}

// ErrSourceNotFound is wrapped by backends when the remote, or the branch or
// revision they track on it, does not exist. Retrying does not help.
var ErrSourceNotFound = errors.New("source not found")

// RemoteComparer is implemented by backends that can tell whether the remote
// source moved past a snapshot without checking it out.
type RemoteComparer interface {
	// CompareRemoteRevision returns whether the remote differs from baseline
	// and the snapshot the remote is currently at.
	CompareRemoteRevision(ctx context.Context, launcher Launcher, baseline revisionstate.Snapshot) (bool, revisionstate.Snapshot, error)
}

// ChangeEntry is a single change parsed from a changelog.
type ChangeEntry struct {
	Revision string    `json:"revision" yaml:"revision"`
	Author   string    `json:"author" yaml:"author"`
	Email    string    `json:"email,omitempty" yaml:"email,omitempty"`
	When     time.Time `json:"when" yaml:"when"`
	Message  string    `json:"message" yaml:"message"`
}

// ChangeSet groups the changes one checkout brought into a build.
type ChangeSet struct {
	Source  revisionstate.SourceID `json:"source"`
	Entries []ChangeEntry          `json:"entries"`
}

// CheckoutRecord describes a completed checkout on a build.
type CheckoutRecord struct {
	Source          revisionstate.SourceID `json:"source"`
	Workspace       string                 `json:"workspace"`
	ChangelogPath   string                 `json:"changelogPath,omitempty"`
	PollingBaseline revisionstate.Snapshot `json:"pollingBaseline,omitempty"`
}

// CheckoutRecorder is implemented by builds that keep a list of the
// checkouts performed on them.
type CheckoutRecorder interface {
	RecordCheckout(rec CheckoutRecord)
}

// ChangeSetRecorder is implemented by builds that keep the change sets
// parsed from their changelogs.
type ChangeSetRecorder interface {
	AddChangeSet(cs ChangeSet)
}
