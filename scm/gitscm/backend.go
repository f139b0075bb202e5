/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitscm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const (
	remoteName = "origin"

	defaultMaxChangelogEntries = 1000
)

// Backend checks out a single branch of a git remote.
type Backend struct {
	url    string
	branch string

	tokenSource         oauth2.TokenSource
	maxChangelogEntries int

	mu       sync.Mutex
	commit   string
	previous string
}

var (
	_ scm.Backend         = (*Backend)(nil)
	_ scm.ChangelogFormat = (*Backend)(nil)
	_ scm.ChangelogParser = (*Backend)(nil)
	_ scm.RemoteComparer  = (*Backend)(nil)
)

// Option customizes a Backend.
type Option func(*Backend)

// WithTokenSource authenticates against the remote with the source's access
// token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(b *Backend) { b.tokenSource = ts }
}

// WithMaxChangelogEntries caps the number of commits written to a changelog.
func WithMaxChangelogEntries(n int) Option {
	return func(b *Backend) { b.maxChangelogEntries = n }
}

// New constructs a Backend for branch of the remote at url.
func New(url, branch string, opts ...Option) (*Backend, error) {
	url = strings.TrimSpace(url)
	branch = strings.TrimSpace(branch)
	switch {
	case url == "":
		return nil, errors.New("url cannot be empty")
	case branch == "":
		return nil, errors.New("branch cannot be empty")
	}

	b := &Backend{
		url:                 url,
		branch:              branch,
		maxChangelogEntries: defaultMaxChangelogEntries,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxChangelogEntries <= 0 {
		return nil, errors.New("max changelog entries must be positive")
	}
	return b, nil
}

// SourceID implements scm.Backend.
func (b *Backend) SourceID() revisionstate.SourceID {
	return revisionstate.SourceID("git " + b.url + "#" + b.branch)
}

// Checkout implements scm.Backend.
func (b *Backend) Checkout(ctx context.Context, _ scm.Build, launcher scm.Launcher, workspace string, out io.Writer, changelogPath string, baseline revisionstate.Snapshot) error {
	log := clog.FromContext(ctx).With("url", b.url).With("branch", b.branch)
	if launcher != nil {
		log = log.With("node", launcher.Node())
	}

	repo, err := b.openOrClone(ctx, workspace, out)
	if err != nil {
		return err
	}

	head, err := b.update(ctx, repo, out)
	if err != nil {
		return err
	}
	log.Infof("Checked out %s", head)

	b.mu.Lock()
	b.commit = head.String()
	b.previous = string(baseline)
	b.mu.Unlock()

	if changelogPath == "" {
		return nil
	}
	if baseline == nil {
		log.Debugf("No baseline, skipping changelog")
		return nil
	}
	return b.writeChangelog(ctx, repo, head, plumbing.NewHash(string(baseline)), changelogPath)
}

func (b *Backend) openOrClone(ctx context.Context, workspace string, out io.Writer) (*git.Repository, error) {
	repo, err := git.PlainOpen(workspace)
	switch {
	case err == nil:
		if err := b.checkOrigin(repo, workspace); err != nil {
			return nil, err
		}
		return repo, nil
	case !errors.Is(err, git.ErrRepositoryNotExists):
		return nil, fmt.Errorf("opening repo: %w", err)
	}

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	auth, err := b.auth()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}

	clog.FromContext(ctx).Infof("Cloning repository %s into %s", b.url, workspace)
	repo, err = git.PlainCloneContext(ctx, workspace, false, &git.CloneOptions{
		URL:           b.url,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(b.branch),
		SingleBranch:  true,
		Auth:          auth,
		Progress:      out,
	})
	if err != nil {
		return nil, fmt.Errorf("cloning repository: %w", err)
	}
	return repo, nil
}

func (b *Backend) checkOrigin(repo *git.Repository, workspace string) error {
	remote, err := repo.Remote(remoteName)
	if err != nil {
		return fmt.Errorf("getting remote %s: %w", remoteName, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != b.url {
		return fmt.Errorf("workspace %s is a clone of %v, not %s", workspace, urls, b.url)
	}
	return nil
}

// update fetches the branch and force checks out its head on a clean
// working tree.
func (b *Backend) update(ctx context.Context, repo *git.Repository, out io.Writer) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resetting worktree: %w", err)
	}
	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("cleaning worktree: %w", err)
	}

	auth, err := b.auth()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting token: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", b.branch, remoteName, b.branch))
	clog.FromContext(ctx).Debugf("Fetching %s", refSpec)
	if err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth,
		Progress:   out,
	}); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return plumbing.ZeroHash, fmt.Errorf("fetching branch %s: %w", b.branch, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName(remoteName, b.branch), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting remote ref %s: %w", b.branch, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: remoteRef.Hash(), Force: true}); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("checking out %s: %w", remoteRef.Hash(), err)
	}
	return remoteRef.Hash(), nil
}

// CalcRevisionsFromBuild implements scm.Backend. The snapshot is the hash of
// the commit checked out in workspace.
func (b *Backend) CalcRevisionsFromBuild(_ context.Context, _ scm.Build, workspace string, _ scm.Launcher, _ io.Writer) (revisionstate.Snapshot, error) {
	repo, err := git.PlainOpen(workspace)
	if err != nil {
		return nil, fmt.Errorf("opening repo: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	return revisionstate.Snapshot(head.Hash().String()), nil
}

// PostCheckout implements scm.Backend.
func (b *Backend) PostCheckout(_ context.Context, _ scm.Build, _ scm.Launcher, _ string, out io.Writer) error {
	b.mu.Lock()
	commit, previous := b.commit, b.previous
	b.mu.Unlock()

	if previous != "" && previous != commit {
		_, err := fmt.Fprintf(out, "%s: %s -> %s\n", b.branch, shortHash(previous), shortHash(commit))
		return err
	}
	_, err := fmt.Fprintf(out, "%s: %s\n", b.branch, shortHash(commit))
	return err
}

// BuildEnvironment implements scm.Backend. When this Backend did not perform
// the checkout itself, the commit is read from the build's revision store.
func (b *Backend) BuildEnvironment(build scm.Build, env map[string]string) {
	env["GIT_URL"] = b.url
	env["GIT_BRANCH"] = b.branch

	b.mu.Lock()
	commit, previous := b.commit, b.previous
	b.mu.Unlock()

	if commit == "" && build != nil {
		build.Lock()
		if snap, ok := build.RevisionState().Get(b.SourceID()); ok {
			commit = string(snap)
		}
		build.Unlock()
	}
	if commit != "" {
		env["GIT_COMMIT"] = commit
	}
	if previous != "" {
		env["GIT_PREVIOUS_COMMIT"] = previous
	}
}

func (b *Backend) auth() (transport.AuthMethod, error) {
	if b.tokenSource == nil {
		return nil, nil
	}
	token, err := b.tokenSource.Token()
	if err != nil {
		return nil, err
	}
	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
