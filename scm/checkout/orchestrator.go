/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checkout

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"runtime"
	"slices"
	"time"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "chainguard.dev/scmcheckout/checkout"

	changelogPrefix           = "changelog"
	defaultChangelogExtension = ".xml"

	// Owner read/write, group read.
	changelogMode fs.FileMode = 0o640
)

// Orchestrator drives checkouts. It is safe for concurrent use; checkouts
// against the same build serialize only on that build's lock.
type Orchestrator struct {
	listeners []scm.Listener
	metrics   *metrics
}

// New constructs an Orchestrator.
func New(opts ...Option) *Orchestrator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Orchestrator{
		listeners: slices.Clone(cfg.listeners),
		metrics:   newMetrics(cfg.meterName),
	}
}

// Checkout checks out backend's source into workspace for build.
//
// When cfg.Changelog is set a changelog file is allocated in the build's root
// directory and handed to the backend; a file the backend never wrote to is
// deleted before listeners see it. When cfg.Poll or cfg.Changelog is set the
// resulting snapshot is recorded in build's revision store.
//
// Errors from the backend and from listeners are returned as is, after the
// changelog file, if any, is removed.
func (o *Orchestrator) Checkout(ctx context.Context, build scm.Build, workspace string, out io.Writer, launcher scm.Launcher, cfg Config, backend scm.Backend) (err error) {
	source := backend.SourceID()

	ctx, span := otel.Tracer(tracerName, oteltrace.WithInstrumentationVersion("1.0.0")).Start(ctx, "scm.checkout",
		oteltrace.WithAttributes(
			attribute.String("scm.source", string(source)),
			attribute.Int("scm.build", build.Number()),
			attribute.Bool("scm.poll", cfg.Poll),
			attribute.Bool("scm.changelog", cfg.Changelog),
		))
	defer span.End()

	log := clog.FromContext(ctx).With("source", source).With("build", build.Number())

	var changelog *changelogFile
	defer func() {
		if err == nil {
			o.metrics.recordRun(ctx, outcomeSuccess)
			return
		}
		if changelog != nil {
			changelog.remove()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.recordRun(ctx, outcomeFailure)
		log.Warnf("Checkout failed: %v", err)
	}()

	if cfg.Changelog {
		ext := defaultChangelogExtension
		if f, ok := backend.(scm.ChangelogFormat); ok {
			ext = f.ChangelogExtension()
		}
		changelog, err = createChangelog(build.RootDir(), ext)
		if err != nil {
			return err
		}
		log.Debugf("Allocated changelog %s", changelog.path)
	}

	baseline := baselineFor(build.Previous(), source)
	if baseline != nil {
		log.Debugf("Using baseline %s from previous build", baseline)
	}

	if err := backend.Checkout(ctx, build, launcher, workspace, out, changelog.pathOrEmpty(), baseline); err != nil {
		return err
	}

	if changelog != nil {
		untouched, err := changelog.untouched()
		if err != nil {
			return err
		}
		if untouched {
			// An empty changelog would fail to parse downstream.
			log.Debugf("Discarding changelog %s left untouched by the backend", changelog.path)
			changelog.remove()
			changelog = nil
			o.metrics.recordDiscarded(ctx)
		}
	}

	var pollingBaseline revisionstate.Snapshot
	if cfg.Poll || cfg.Changelog {
		// Some backends only complete their changelog when revisions are
		// calculated in the same sequence, so this runs for either flag.
		pollingBaseline, err = backend.CalcRevisionsFromBuild(ctx, build, workspace, launcher, out)
		if err != nil {
			return err
		}
		if pollingBaseline != nil {
			recordSnapshot(build, source, pollingBaseline)
			log.Debugf("Recorded snapshot %s", pollingBaseline)
		}
	}

	changelogPath := changelog.pathOrEmpty()
	for _, l := range o.listeners {
		if err := l.OnCheckout(ctx, build, backend, workspace, out, changelogPath, pollingBaseline); err != nil {
			return err
		}
	}

	if err := backend.PostCheckout(ctx, build, launcher, workspace, out); err != nil {
		return err
	}

	log.Infof("Checked out %s", source)
	return nil
}

// baselineFor returns the snapshot prev recorded for source. prev may still
// be written to by another checkout, so it is read under its lock.
func baselineFor(prev scm.Build, source revisionstate.SourceID) revisionstate.Snapshot {
	if prev == nil {
		return nil
	}
	prev.Lock()
	defer prev.Unlock()

	snap, _ := prev.RevisionState().Get(source)
	return snap
}

// recordSnapshot attaches a store to build on first use and records snap.
// The lock covers both the attach and the write.
func recordSnapshot(build scm.Build, source revisionstate.SourceID, snap revisionstate.Snapshot) {
	build.Lock()
	defer build.Unlock()

	st := build.RevisionState()
	if st == nil {
		st = revisionstate.New()
		build.SetRevisionState(st)
	}
	st.Put(source, snap)
}

type changelogFile struct {
	path    string
	created time.Time
}

func createChangelog(dir, ext string) (*changelogFile, error) {
	f, err := os.CreateTemp(dir, changelogPrefix+"*"+ext)
	if err != nil {
		return nil, err
	}
	cl := &changelogFile{path: f.Name()}

	if supportsPOSIXPermissions() {
		if err := f.Chmod(changelogMode); err != nil {
			f.Close()
			cl.remove()
			return nil, err
		}
	}
	if err := f.Close(); err != nil {
		cl.remove()
		return nil, err
	}

	fi, err := os.Stat(cl.path)
	if err != nil {
		cl.remove()
		return nil, err
	}
	cl.created = fi.ModTime()
	return cl, nil
}

// untouched reports whether the file is still empty and still carries the
// modification time it was created with. A file the backend deleted counts
// as untouched.
func (c *changelogFile) untouched() (bool, error) {
	fi, err := os.Stat(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	case err != nil:
		return false, err
	}
	return fi.Size() == 0 && fi.ModTime().Equal(c.created), nil
}

// remove deletes the file, ignoring errors.
func (c *changelogFile) remove() {
	_ = os.Remove(c.path)
}

func (c *changelogFile) pathOrEmpty() string {
	if c == nil {
		return ""
	}
	return c.path
}

func supportsPOSIXPermissions() bool {
	return runtime.GOOS != "windows" && runtime.GOOS != "plan9"
}
