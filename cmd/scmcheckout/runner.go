/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/buildrecord"
	"chainguard.dev/scmcheckout/scm/checkout"
	"chainguard.dev/scmcheckout/scm/polling"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// namedStep pairs a configured step with the name of its workspace.
type namedStep struct {
	name string
	step *checkout.Step
}

// runner executes the job's checkout steps.
type runner struct {
	job           *buildrecord.Job
	steps         []namedStep
	workspaceRoot string
	out           io.Writer
	poller        *polling.Poller
	launcher      scm.Launcher
}

// labelNode collects the labels steps attach to the node running them.
type labelNode struct {
	mu     sync.Mutex
	labels []string
}

func (n *labelNode) AddLabel(label string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.labels = append(n.labels, label)
}

func (n *labelNode) Labels() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.labels)
}

// lockedWriter serializes writes from concurrent steps.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// runBuild starts a new build, runs every step concurrently into its own
// workspace, and completes the build. It returns the build and each step's
// environment keyed by step name.
func (r *runner) runBuild(ctx context.Context) (*buildrecord.Build, map[string]map[string]string, error) {
	build, err := r.job.NewBuild(ctx)
	if err != nil {
		return nil, nil, err
	}
	log := clog.FromContext(ctx).With("build", build.Number())
	ctx = clog.WithLogger(ctx, log)

	out := &lockedWriter{w: r.out}
	node := &labelNode{}

	var mu sync.Mutex
	envs := make(map[string]map[string]string, len(r.steps))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, s := range r.steps {
		exec := s.step.Start(node)
		workspace := filepath.Join(r.workspaceRoot, s.name)
		eg.Go(func() error {
			env, err := exec.Run(egCtx, build, workspace, out, r.launcher)
			if err != nil {
				return fmt.Errorf("step %s: %w", s.name, err)
			}
			mu.Lock()
			defer mu.Unlock()
			envs[s.name] = env
			return nil
		})
	}
	runErr := eg.Wait()

	if labels := node.Labels(); len(labels) > 0 {
		log.Infof("Node labels: %v", labels)
	}

	result := buildrecord.ResultSuccess
	if runErr != nil {
		result = buildrecord.ResultFailure
	}
	if err := build.Complete(ctx, result); err != nil {
		return build, envs, fmt.Errorf("completing build %d: %w", build.Number(), err)
	}
	if runErr != nil {
		return build, envs, runErr
	}
	return build, envs, nil
}

// needsBuild polls every polling-enabled step against the last completed
// build. Any changed source, or no completed build at all, triggers a build.
func (r *runner) needsBuild(ctx context.Context) (bool, error) {
	var prev scm.Build
	if b := r.job.LastCompleted(); b != nil {
		prev = b
	}

	for _, s := range r.steps {
		if !s.step.Poll {
			continue
		}
		backend, err := s.step.NewBackend()
		if err != nil {
			return false, fmt.Errorf("step %s: creating backend: %w", s.name, err)
		}
		res, err := r.poller.Poll(ctx, prev, backend, r.launcher)
		if err != nil {
			return false, fmt.Errorf("step %s: %w", s.name, err)
		}
		if res.Changed {
			clog.FromContext(ctx).With("step", s.name).Infof("Build needed: %s", res.Reason)
			return true, nil
		}
	}
	return prev == nil, nil
}

// watch polls at interval until ctx is done, running a build whenever a
// source changed. Poll and build failures are logged and do not stop the
// loop.
func (r *runner) watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *runner) tick(ctx context.Context) {
	log := clog.FromContext(ctx)

	needed, err := r.needsBuild(ctx)
	if err != nil {
		log.Warnf("Polling failed: %v", err)
		return
	}
	if !needed {
		log.Debugf("No changes")
		return
	}

	build, envs, err := r.runBuild(ctx)
	if err != nil {
		log.Warnf("Build failed: %v", err)
		return
	}
	log.Infof("Build %d completed", build.Number())
	printEnv(r.out, envs)
}

// printEnv writes each step's environment, steps and keys in sorted order.
func printEnv(w io.Writer, envs map[string]map[string]string) {
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, kv := range checkout.SortedEnv(envs[name]) {
			fmt.Fprintf(w, "%s: %s\n", name, kv)
		}
	}
}
