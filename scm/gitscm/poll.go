/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitscm

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// CompareRemoteRevision implements scm.RemoteComparer by listing the remote's
// references without touching any workspace.
func (b *Backend) CompareRemoteRevision(ctx context.Context, _ scm.Launcher, baseline revisionstate.Snapshot) (bool, revisionstate.Snapshot, error) {
	auth, err := b.auth()
	if err != nil {
		return false, nil, fmt.Errorf("getting token: %w", err)
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{b.url},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return false, nil, fmt.Errorf("listing %s: %w: %w", b.url, scm.ErrSourceNotFound, err)
	case err != nil:
		return false, nil, fmt.Errorf("listing %s: %w", b.url, err)
	}

	want := plumbing.NewBranchReferenceName(b.branch)
	for _, ref := range refs {
		if ref.Name() != want {
			continue
		}
		current := revisionstate.Snapshot(ref.Hash().String())
		return !current.Equal(baseline), current, nil
	}
	return false, nil, fmt.Errorf("branch %s on %s: %w", b.branch, b.url, scm.ErrSourceNotFound)
}
