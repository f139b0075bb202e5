/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the checkout steps of a job. In build mode it runs one
// build and prints each step's environment. In watch mode it polls the
// steps' sources and runs a build whenever one of them changed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/buildrecord"
	"chainguard.dev/scmcheckout/scm/checkout"
	"chainguard.dev/scmcheckout/scm/listeners"
	"chainguard.dev/scmcheckout/scm/polling"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	modeBuild = "build"
	modeWatch = "watch"
)

type config struct {
	JobDir        string `env:"JOB_DIR,required"`
	StepsFile     string `env:"STEPS_FILE,required"`
	WorkspaceRoot string `env:"WORKSPACE_ROOT"`

	// GitToken authenticates HTTPS remotes when set.
	GitToken string `env:"GIT_TOKEN"`

	Mode         string        `env:"MODE,default=build"`
	PollInterval time.Duration `env:"POLL_INTERVAL,default=1m"`
	MetricsPort  int           `env:"METRICS_PORT,default=2112"`
}

func (c config) validate() error {
	switch c.Mode {
	case modeBuild, modeWatch:
	default:
		return fmt.Errorf("unknown mode %q, want %q or %q", c.Mode, modeBuild, modeWatch)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}
	if err := cfg.validate(); err != nil {
		clog.FatalContextf(ctx, "invalid config: %v", err)
	}

	r, err := newRunner(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "setting up: %v", err)
	}

	switch cfg.Mode {
	case modeBuild:
		build, envs, err := r.runBuild(ctx)
		if err != nil {
			clog.FatalContextf(ctx, "build failed: %v", err)
		}
		printEnv(os.Stdout, envs)
		clog.InfoContextf(ctx, "Build %d completed", build.Number())

	case modeWatch:
		srv := &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(cfg.MetricsPort)),
			Handler:           newRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			clog.InfoContextf(egCtx, "Serving metrics on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(egCtx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		eg.Go(func() error {
			clog.InfoContextf(egCtx, "Watching %d steps every %s", len(r.steps), cfg.PollInterval)
			return r.watch(egCtx, cfg.PollInterval)
		})
		if err := eg.Wait(); err != nil {
			clog.FatalContextf(ctx, "watch failed: %v", err)
		}
	}
}

// newRunner opens the job and wires the configured steps to a shared
// orchestrator.
func newRunner(ctx context.Context, cfg config) (*runner, error) {
	defs, err := loadSteps(cfg.StepsFile)
	if err != nil {
		return nil, err
	}

	job, err := buildrecord.Open(ctx, cfg.JobDir)
	if err != nil {
		return nil, fmt.Errorf("opening job: %w", err)
	}

	root := cfg.WorkspaceRoot
	if root == "" {
		root = filepath.Join(cfg.JobDir, "workspace")
	}

	var ts oauth2.TokenSource
	if cfg.GitToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitToken})
	}

	poller, err := polling.New(polling.DefaultConfig())
	if err != nil {
		return nil, err
	}

	orch := checkout.New(checkout.WithListeners(
		listeners.Logging{},
		listeners.Metrics{},
		listeners.Recorder{},
	))

	steps := make([]namedStep, 0, len(defs))
	for _, s := range defs {
		steps = append(steps, namedStep{name: s.Name, step: newStep(s, orch, ts)})
	}

	return &runner{
		job:           job,
		steps:         steps,
		workspaceRoot: root,
		out:           os.Stdout,
		poller:        poller,
		launcher:      scm.LocalLauncher{},
	}, nil
}
