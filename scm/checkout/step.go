/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"chainguard.dev/scmcheckout/scm"
)

// Node is the pipeline graph node that invoked a step.
type Node interface {
	// AddLabel attaches a human-readable label to the node.
	AddLabel(label string)
}

// BackendFactory creates the backend for one step execution.
type BackendFactory func() (scm.Backend, error)

// Step is a configured checkout step.
type Step struct {
	Config

	// NewBackend is called once per execution. Backends are not reused
	// across executions.
	NewBackend BackendFactory

	// Orchestrator runs the checkout. A nil Orchestrator means New().
	Orchestrator *Orchestrator
}

// Execution is a started step.
type Execution struct {
	step *Step
}

// Start labels node with the step's label, truncated to MaxLabelLength, and
// returns the execution. Labels are not validated here.
func (s *Step) Start(node Node) *Execution {
	if s.Label != "" && node != nil {
		node.AddLabel(TruncateLabel(s.Label))
	}
	return &Execution{step: s}
}

// Run performs the checkout and returns the environment variables the
// backend contributes to the build.
func (e *Execution) Run(ctx context.Context, build scm.Build, workspace string, out io.Writer, launcher scm.Launcher) (map[string]string, error) {
	if e.step.NewBackend == nil {
		return nil, errors.New("step has no backend factory")
	}
	backend, err := e.step.NewBackend()
	if err != nil {
		return nil, fmt.Errorf("creating backend: %w", err)
	}

	o := e.step.Orchestrator
	if o == nil {
		o = New()
	}
	if err := o.Checkout(ctx, build, workspace, out, launcher, e.step.Config, backend); err != nil {
		return nil, err
	}

	env := make(map[string]string)
	backend.BuildEnvironment(build, env)
	return env, nil
}

// SortedEnv renders env as KEY=VALUE entries sorted by key.
func SortedEnv(env map[string]string) []string {
	keys := slices.Sorted(maps.Keys(env))
	entries := make([]string, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k+"="+env[k])
	}
	return entries
}
