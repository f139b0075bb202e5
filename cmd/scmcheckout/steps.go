/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/checkout"
	"chainguard.dev/scmcheckout/scm/gitscm"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

const defaultBranch = "main"

// stepDef is one entry of the steps file. Poll and Changelog default to true
// when omitted.
type stepDef struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Branch    string `yaml:"branch,omitempty"`
	Poll      *bool  `yaml:"poll,omitempty"`
	Changelog *bool  `yaml:"changelog,omitempty"`
	Label     string `yaml:"label,omitempty"`
}

type stepsFile struct {
	Steps []stepDef `yaml:"steps"`
}

func (s stepDef) config() checkout.Config {
	cfg := checkout.DefaultConfig()
	if s.Poll != nil {
		cfg.Poll = *s.Poll
	}
	if s.Changelog != nil {
		cfg.Changelog = *s.Changelog
	}
	cfg.Label = s.Label
	return cfg
}

func (s stepDef) branch() string {
	if s.Branch == "" {
		return defaultBranch
	}
	return s.Branch
}

func (s stepDef) validate() error {
	switch {
	case s.Name == "":
		return errors.New("name cannot be empty")
	case s.Name != filepath.Base(s.Name) || s.Name == "." || s.Name == ".." || strings.ContainsAny(s.Name, `/\`):
		return fmt.Errorf("name %q must be a single path element", s.Name)
	case s.URL == "":
		return errors.New("url cannot be empty")
	}
	return s.config().Validate()
}

// loadSteps reads and validates the steps file at path.
func loadSteps(path string) ([]stepDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading steps file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f stepsFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parsing steps file %s: %w", path, err)
	}
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("steps file %s defines no steps", path)
	}

	seen := make(map[string]struct{}, len(f.Steps))
	for i, s := range f.Steps {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if _, ok := seen[s.Name]; ok {
			return nil, fmt.Errorf("step %d: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return f.Steps, nil
}

// newStep binds a validated stepDef to a git backend factory.
func newStep(s stepDef, orch *checkout.Orchestrator, ts oauth2.TokenSource) *checkout.Step {
	var opts []gitscm.Option
	if ts != nil {
		opts = append(opts, gitscm.WithTokenSource(ts))
	}
	return &checkout.Step{
		Config: s.config(),
		NewBackend: func() (scm.Backend, error) {
			return gitscm.New(s.URL, s.branch(), opts...)
		},
		Orchestrator: orch,
	}
}
