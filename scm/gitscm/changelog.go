/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitscm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"chainguard.dev/scmcheckout/scm"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"gopkg.in/yaml.v3"
)

type changelog struct {
	Commits []scm.ChangeEntry `yaml:"commits"`
}

// ChangelogExtension implements scm.ChangelogFormat.
func (b *Backend) ChangelogExtension() string {
	return ".yaml"
}

// writeChangelog records the commits reachable from head, newest first,
// stopping at baseline or after maxChangelogEntries commits.
func (b *Backend) writeChangelog(ctx context.Context, repo *git.Repository, head, baseline plumbing.Hash, path string) error {
	entries := []scm.ChangeEntry{}
	if head != baseline {
		iter, err := repo.Log(&git.LogOptions{From: head})
		if err != nil {
			return fmt.Errorf("walking history: %w", err)
		}
		defer iter.Close()

		err = iter.ForEach(func(c *object.Commit) error {
			if c.Hash == baseline || len(entries) >= b.maxChangelogEntries {
				return storer.ErrStop
			}
			entries = append(entries, scm.ChangeEntry{
				Revision: c.Hash.String(),
				Author:   c.Author.Name,
				Email:    c.Author.Email,
				When:     c.Author.When.UTC(),
				Message:  strings.TrimSpace(c.Message),
			})
			return nil
		})
		if err != nil && !errors.Is(err, storer.ErrStop) {
			return fmt.Errorf("walking history: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("opening changelog: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(changelog{Commits: entries}); err != nil {
		f.Close()
		return fmt.Errorf("writing changelog: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("writing changelog: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing changelog: %w", err)
	}

	clog.FromContext(ctx).Debugf("Wrote %d changelog entries to %s", len(entries), path)
	return nil
}

// ParseChangelog implements scm.ChangelogParser.
func (b *Backend) ParseChangelog(_ context.Context, _ scm.Build, path string) ([]scm.ChangeEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading changelog: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var cl changelog
	if err := yaml.Unmarshal(data, &cl); err != nil {
		return nil, fmt.Errorf("parsing changelog %s: %w", path, err)
	}
	return cl.Commits, nil
}
