/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrecord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/chainguard-dev/clog"
)

const recordFile = "build.json"

// Result is the outcome of a completed build.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailure Result = "FAILURE"
)

// Build is one run of a Job. It implements scm.Build, scm.CheckoutRecorder
// and scm.ChangeSetRecorder.
type Build struct {
	number int
	dir    string
	prev   *Build

	// mu is the record lock exposed through Lock and Unlock. It guards state.
	mu    sync.Mutex
	state *revisionstate.Store

	recMu       sync.Mutex
	checkouts   []scm.CheckoutRecord
	changeSets  []scm.ChangeSet
	result      Result
	startedAt   time.Time
	completedAt time.Time

	completed atomic.Bool
}

var (
	_ scm.Build             = (*Build)(nil)
	_ scm.CheckoutRecorder  = (*Build)(nil)
	_ scm.ChangeSetRecorder = (*Build)(nil)
)

type record struct {
	Number        int                  `json:"number"`
	Result        Result               `json:"result,omitempty"`
	StartedAt     time.Time            `json:"startedAt"`
	CompletedAt   time.Time            `json:"completedAt,omitzero"`
	RevisionState *revisionstate.Store `json:"revisionState,omitempty"`
	Checkouts     []scm.CheckoutRecord `json:"checkouts,omitempty"`
	ChangeSets    []scm.ChangeSet      `json:"changeSets,omitempty"`
}

// Lock acquires the record lock.
func (b *Build) Lock() { b.mu.Lock() }

// Unlock releases the record lock.
func (b *Build) Unlock() { b.mu.Unlock() }

// Number implements scm.Build.
func (b *Build) Number() int { return b.number }

// RootDir implements scm.Build.
func (b *Build) RootDir() string { return b.dir }

// Previous implements scm.Build.
func (b *Build) Previous() scm.Build {
	if b.prev == nil {
		return nil
	}
	return b.prev
}

// RevisionState implements scm.Build. Callers must hold the record lock.
// Once the build is completed the returned store is a copy, so writes to it
// never reach the persisted record.
func (b *Build) RevisionState() *revisionstate.Store {
	if b.completed.Load() {
		return b.state.Clone()
	}
	return b.state
}

// SetRevisionState implements scm.Build. Callers must hold the record lock.
// Completed builds are read-only and ignore the call.
func (b *Build) SetRevisionState(st *revisionstate.Store) {
	if b.completed.Load() {
		return
	}
	b.state = st
}

// RecordCheckout implements scm.CheckoutRecorder.
func (b *Build) RecordCheckout(rec scm.CheckoutRecord) {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	// Checked under recMu; persistLocked copies the slices under it.
	if b.completed.Load() {
		return
	}
	b.checkouts = append(b.checkouts, rec)
}

// AddChangeSet implements scm.ChangeSetRecorder.
func (b *Build) AddChangeSet(cs scm.ChangeSet) {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	// Checked under recMu; persistLocked copies the slices under it.
	if b.completed.Load() {
		return
	}
	b.changeSets = append(b.changeSets, cs)
}

// Checkouts returns the checkouts recorded so far.
func (b *Build) Checkouts() []scm.CheckoutRecord {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	return slices.Clone(b.checkouts)
}

// ChangeSets returns the change sets recorded so far.
func (b *Build) ChangeSets() []scm.ChangeSet {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	return slices.Clone(b.changeSets)
}

// Result returns the build's result, or "" while it is running.
func (b *Build) Result() Result {
	b.recMu.Lock()
	defer b.recMu.Unlock()
	return b.result
}

// Completed reports whether Complete was called.
func (b *Build) Completed() bool { return b.completed.Load() }

// Complete records the build's result, persists the record and makes the
// build read-only.
func (b *Build) Complete(ctx context.Context, result Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.completed.CompareAndSwap(false, true) {
		return fmt.Errorf("build %d already completed", b.number)
	}

	b.recMu.Lock()
	b.result = result
	b.completedAt = time.Now().UTC()
	b.recMu.Unlock()

	if err := b.persistLocked(); err != nil {
		return fmt.Errorf("persisting build %d: %w", b.number, err)
	}
	clog.FromContext(ctx).Infof("Build %d completed: %s", b.number, result)
	return nil
}

// persistLocked writes build.json. Callers hold mu.
func (b *Build) persistLocked() error {
	b.recMu.Lock()
	rec := record{
		Number:        b.number,
		Result:        b.result,
		StartedAt:     b.startedAt,
		CompletedAt:   b.completedAt,
		RevisionState: b.state,
		Checkouts:     slices.Clone(b.checkouts),
		ChangeSets:    slices.Clone(b.changeSets),
	}
	b.recMu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, recordFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing record: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.dir, recordFile)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming record: %w", err)
	}
	return nil
}

// loadBuild reads the record in dir. A directory without a record belongs
// to a build that never got as far as persisting; it loads as running.
func loadBuild(dir string, number int) (*Build, error) {
	b := &Build{number: number, dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", recordFile, err)
	}
	if rec.Number != number {
		return nil, fmt.Errorf("record number %d does not match directory %d", rec.Number, number)
	}

	b.state = rec.RevisionState
	b.checkouts = rec.Checkouts
	b.changeSets = rec.ChangeSets
	b.result = rec.Result
	b.startedAt = rec.StartedAt
	b.completedAt = rec.CompletedAt
	if rec.Result != "" {
		b.completed.Store(true)
	}
	return b, nil
}
