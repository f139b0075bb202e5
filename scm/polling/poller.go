/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package polling

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/chainguard-dev/clog"
)

// ErrPollingUnsupported is returned when a backend cannot compare against its remote.
var ErrPollingUnsupported = errors.New("backend does not support polling")

// Poll reasons.
const (
	ReasonNoPreviousBuild = "no previous build"
	ReasonNoBaseline      = "no baseline"
	ReasonChanged         = "revision changed"
	ReasonUnchanged       = "up to date"
)

// Result is the outcome of a single poll.
type Result struct {
	Changed bool
	Reason  string

	// Baseline is the snapshot recorded by the build that was polled against.
	Baseline revisionstate.Snapshot

	// Current is the snapshot the remote is at. It is nil when the remote was
	// not contacted.
	Current revisionstate.Snapshot
}

// Poller compares recorded snapshots against remotes.
type Poller struct {
	cfg Config
}

// New constructs a Poller.
func New(cfg Config) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid polling config: %w", err)
	}
	return &Poller{cfg: cfg}, nil
}

// Poll reports whether backend's source moved past the snapshot build
// recorded for it. A nil build, or one without a snapshot for the source,
// always counts as changed.
func (p *Poller) Poll(ctx context.Context, build scm.Build, backend scm.Backend, launcher scm.Launcher) (Result, error) {
	source := backend.SourceID()
	log := clog.FromContext(ctx).With("source", source)

	if build == nil {
		return Result{Changed: true, Reason: ReasonNoPreviousBuild}, nil
	}

	build.Lock()
	baseline, ok := build.RevisionState().Get(source)
	build.Unlock()
	if !ok {
		log.Debugf("Build %d recorded no snapshot", build.Number())
		return Result{Changed: true, Reason: ReasonNoBaseline}, nil
	}

	comparer, ok := backend.(scm.RemoteComparer)
	if !ok {
		return Result{}, fmt.Errorf("%s: %w", source, ErrPollingUnsupported)
	}

	changed, current, err := p.compareRemote(ctx, source, comparer, launcher, baseline)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Changed:  changed,
		Reason:   ReasonUnchanged,
		Baseline: baseline,
		Current:  current,
	}
	if changed {
		res.Reason = ReasonChanged
	}
	log.Debugf("Polled against build %d: %s", build.Number(), res.Reason)
	return res, nil
}

// compareRemote asks the remote about baseline, repeating transient failures up to
// MaxRetries times.
func (p *Poller) compareRemote(ctx context.Context, source revisionstate.SourceID, comparer scm.RemoteComparer, launcher scm.Launcher, baseline revisionstate.Snapshot) (bool, revisionstate.Snapshot, error) {
	log := clog.FromContext(ctx).With("source", source)
	for attempt := 0; ; attempt++ {
		changed, current, err := comparer.CompareRemoteRevision(ctx, launcher, baseline)
		switch {
		case err == nil:
			return changed, current, nil
		case !transient(ctx, err):
			return false, nil, err
		case attempt == p.cfg.MaxRetries:
			return false, nil, fmt.Errorf("polling %s: giving up after %d attempts: %w", source, attempt+1, err)
		}

		wait := p.cfg.delay(attempt)
		log.With("attempt", attempt+1).With("wait", wait).Warnf("Remote comparison failed: %v", err)
		if err := sleep(ctx, wait); err != nil {
			return false, nil, err
		}
	}
}
