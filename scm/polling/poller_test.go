/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package polling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/google/go-cmp/cmp"
)

func testConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

type stubBuild struct {
	sync.Mutex
	state *revisionstate.Store
}

func (b *stubBuild) Number() int         { return 3 }
func (b *stubBuild) RootDir() string     { return "" }
func (b *stubBuild) Previous() scm.Build { return nil }

func (b *stubBuild) RevisionState() *revisionstate.Store { return b.state }

func (b *stubBuild) SetRevisionState(st *revisionstate.Store) { b.state = st }

type stubBackend struct {
	id revisionstate.SourceID
}

func (b *stubBackend) SourceID() revisionstate.SourceID { return b.id }

func (b *stubBackend) Checkout(context.Context, scm.Build, scm.Launcher, string, io.Writer, string, revisionstate.Snapshot) error {
	return nil
}

func (b *stubBackend) CalcRevisionsFromBuild(context.Context, scm.Build, string, scm.Launcher, io.Writer) (revisionstate.Snapshot, error) {
	return nil, nil
}

func (b *stubBackend) PostCheckout(context.Context, scm.Build, scm.Launcher, string, io.Writer) error {
	return nil
}

func (b *stubBackend) BuildEnvironment(scm.Build, map[string]string) {}

// remoteBackend reports the remote at current, failing the first failures
// comparisons.
type remoteBackend struct {
	stubBackend
	current  revisionstate.Snapshot
	failures int32
	err      error

	calls    atomic.Int32
	baseline revisionstate.Snapshot
}

func (b *remoteBackend) CompareRemoteRevision(_ context.Context, _ scm.Launcher, baseline revisionstate.Snapshot) (bool, revisionstate.Snapshot, error) {
	if n := b.calls.Add(1); n <= b.failures {
		return false, nil, b.err
	}
	b.baseline = baseline
	return !b.current.Equal(baseline), b.current, nil
}

func buildWith(id revisionstate.SourceID, snap string) *stubBuild {
	st := revisionstate.New()
	st.Put(id, revisionstate.Snapshot(snap))
	return &stubBuild{state: st}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no retries", mutate: func(c *Config) { c.MaxRetries = 0 }},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, wantErr: true},
		{name: "negative base", mutate: func(c *Config) { c.BaseBackoff = -1 }, wantErr: true},
		{name: "negative max", mutate: func(c *Config) { c.MaxBackoff = -1 }, wantErr: true},
		{name: "max below base", mutate: func(c *Config) { c.MaxBackoff = c.BaseBackoff / 2 }, wantErr: true},
		{name: "negative jitter", mutate: func(c *Config) { c.MaxJitter = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate: got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{MaxRetries: -1}); err == nil {
		t.Fatal("New: expected error")
	}
}

func TestPoll(t *testing.T) {
	const id = revisionstate.SourceID("git a#main")

	tests := []struct {
		name    string
		build   scm.Build
		current string
		want    Result
	}{{
		name: "no previous build",
		want: Result{Changed: true, Reason: ReasonNoPreviousBuild},
	}, {
		name:  "no store",
		build: &stubBuild{},
		want:  Result{Changed: true, Reason: ReasonNoBaseline},
	}, {
		name:  "other source only",
		build: buildWith("git b#main", "abc"),
		want:  Result{Changed: true, Reason: ReasonNoBaseline},
	}, {
		name:    "unchanged",
		build:   buildWith(id, "abc"),
		current: "abc",
		want: Result{
			Reason:   ReasonUnchanged,
			Baseline: revisionstate.Snapshot("abc"),
			Current:  revisionstate.Snapshot("abc"),
		},
	}, {
		name:    "changed",
		build:   buildWith(id, "abc"),
		current: "def",
		want: Result{
			Changed:  true,
			Reason:   ReasonChanged,
			Baseline: revisionstate.Snapshot("abc"),
			Current:  revisionstate.Snapshot("def"),
		},
	}}

	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &remoteBackend{stubBackend: stubBackend{id: id}, current: revisionstate.Snapshot(tt.current)}
			got, err := p.Poll(context.Background(), tt.build, backend, scm.LocalLauncher{})
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Poll (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPollUnsupported(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Poll(context.Background(), buildWith("svn x", "1"), &stubBackend{id: "svn x"}, nil)
	if !errors.Is(err, ErrPollingUnsupported) {
		t.Fatalf("Poll: got %v, want %v", err, ErrPollingUnsupported)
	}
}

func TestPollRetriesTransientErrors(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	backend := &remoteBackend{
		stubBackend: stubBackend{id: "git a#main"},
		current:     revisionstate.Snapshot("def"),
		failures:    2,
		err:         errors.New("connection reset"),
	}

	got, err := p.Poll(context.Background(), buildWith("git a#main", "abc"), backend, nil)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !got.Changed {
		t.Error("expected a change")
	}
	if n := backend.calls.Load(); n != 3 {
		t.Errorf("calls: got %d, want 3", n)
	}
	if string(backend.baseline) != "abc" {
		t.Errorf("baseline: got %q, want abc", backend.baseline)
	}
}

func TestPollExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	remoteErr := errors.New("connection reset")
	backend := &remoteBackend{
		stubBackend: stubBackend{id: "git a#main"},
		failures:    100,
		err:         remoteErr,
	}

	_, err = p.Poll(context.Background(), buildWith("git a#main", "abc"), backend, nil)
	if !errors.Is(err, remoteErr) {
		t.Fatalf("Poll: got %v, want %v", err, remoteErr)
	}
	if !strings.Contains(err.Error(), "giving up after 4 attempts") {
		t.Errorf("error: got %q", err)
	}
	if n := backend.calls.Load(); n != int32(cfg.MaxRetries+1) {
		t.Errorf("calls: got %d, want %d", n, cfg.MaxRetries+1)
	}
}

func TestPollHonorsCancellation(t *testing.T) {
	cfg := testConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	backend := &remoteBackend{
		stubBackend: stubBackend{id: "git a#main"},
		failures:    100,
		err:         errors.New("connection reset"),
	}
	go func() {
		for backend.calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, err = p.Poll(ctx, buildWith("git a#main", "abc"), backend, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Poll: got %v, want %v", err, context.Canceled)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("calls: got %d, want 1", n)
	}
}

func TestPollDoesNotRetryCancelledComparison(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	backend := &remoteBackend{
		stubBackend: stubBackend{id: "git a#main"},
		failures:    100,
		err:         context.DeadlineExceeded,
	}
	if _, err := p.Poll(context.Background(), buildWith("git a#main", "abc"), backend, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Poll: got %v, want %v", err, context.DeadlineExceeded)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("calls: got %d, want 1", n)
	}
}

func TestPollDoesNotRetryMissingSource(t *testing.T) {
	p, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	backend := &remoteBackend{
		stubBackend: stubBackend{id: "git a#gone"},
		failures:    100,
		err:         fmt.Errorf("branch gone on a: %w", scm.ErrSourceNotFound),
	}
	if _, err := p.Poll(context.Background(), buildWith("git a#gone", "abc"), backend, nil); !errors.Is(err, scm.ErrSourceNotFound) {
		t.Fatalf("Poll: got %v, want %v", err, scm.ErrSourceNotFound)
	}
	if n := backend.calls.Load(); n != 1 {
		t.Errorf("calls: got %d, want 1", n)
	}
}

func TestConfigDelay(t *testing.T) {
	cfg := Config{
		MaxRetries:  10,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Second,
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for n, w := range want {
		if got := cfg.delay(n); got != w {
			t.Errorf("delay(%d): got %s, want %s", n, got, w)
		}
	}
	if got := cfg.delay(1000); got != time.Second {
		t.Errorf("delay(1000): got %s, want %s", got, time.Second)
	}

	cfg.MaxJitter = 50 * time.Millisecond
	for range 20 {
		if got := cfg.delay(0); got < 100*time.Millisecond || got >= 150*time.Millisecond {
			t.Fatalf("delay(0) with jitter: got %s, want [100ms, 150ms)", got)
		}
	}
}
