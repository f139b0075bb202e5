/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrecord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
)

const buildsDir = "builds"

// Job is a pipeline whose builds are stored under a single directory.
type Job struct {
	dir string

	mu     sync.Mutex
	builds []*Build
}

// Open loads the job stored in dir, creating the directory if needed.
func Open(ctx context.Context, dir string) (*Job, error) {
	root := filepath.Join(dir, buildsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating builds dir: %w", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading builds dir: %w", err)
	}

	j := &Job{dir: dir}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil || n <= 0 {
			clog.FromContext(ctx).Debugf("Skipping non-build directory %s", e.Name())
			continue
		}
		b, err := loadBuild(filepath.Join(root, e.Name()), n)
		if err != nil {
			return nil, fmt.Errorf("loading build %d: %w", n, err)
		}
		j.builds = append(j.builds, b)
	}

	slices.SortFunc(j.builds, func(a, b *Build) int { return a.number - b.number })
	for i := 1; i < len(j.builds); i++ {
		j.builds[i].prev = j.builds[i-1]
	}

	clog.FromContext(ctx).Infof("Loaded job %s with %d builds", dir, len(j.builds))
	return j, nil
}

// Dir returns the job's directory.
func (j *Job) Dir() string { return j.dir }

// NewBuild allocates the next build of the job.
func (j *Job) NewBuild(ctx context.Context) (*Build, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var prev *Build
	number := 1
	if n := len(j.builds); n > 0 {
		prev = j.builds[n-1]
		number = prev.number + 1
	}

	dir := filepath.Join(j.dir, buildsDir, strconv.Itoa(number))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating build dir: %w", err)
	}

	b := &Build{
		number:    number,
		dir:       dir,
		prev:      prev,
		startedAt: time.Now().UTC(),
	}
	if err := b.persistLocked(); err != nil {
		return nil, fmt.Errorf("persisting build %d: %w", number, err)
	}

	j.builds = append(j.builds, b)
	clog.FromContext(ctx).Infof("Started build %d", number)
	return b, nil
}

// Build returns the build with the given number.
func (j *Job) Build(number int) (*Build, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, b := range j.builds {
		if b.number == number {
			return b, true
		}
	}
	return nil, false
}

// LastBuild returns the most recent build, or nil if there is none.
func (j *Job) LastBuild() *Build {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.builds) == 0 {
		return nil
	}
	return j.builds[len(j.builds)-1]
}

// LastCompleted returns the most recent completed build, or nil.
func (j *Job) LastCompleted() *Build {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.builds) - 1; i >= 0; i-- {
		if j.builds[i].Completed() {
			return j.builds[i]
		}
	}
	return nil
}
