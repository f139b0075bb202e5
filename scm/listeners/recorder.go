/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package listeners

import (
	"context"
	"fmt"
	"io"

	"chainguard.dev/scmcheckout/scm"
	"chainguard.dev/scmcheckout/scm/revisionstate"
	"github.com/chainguard-dev/clog"
)

// Recorder attaches the checkout, and the change set parsed from its
// changelog, to builds that keep them. Builds implementing neither
// scm.CheckoutRecorder nor scm.ChangeSetRecorder are left alone.
type Recorder struct{}

var _ scm.Listener = Recorder{}

// OnCheckout implements scm.Listener. A changelog the backend cannot parse
// fails the checkout.
func (Recorder) OnCheckout(ctx context.Context, build scm.Build, backend scm.Backend, workspace string, _ io.Writer, changelogPath string, pollingBaseline revisionstate.Snapshot) error {
	source := backend.SourceID()
	if r, ok := build.(scm.CheckoutRecorder); ok {
		r.RecordCheckout(scm.CheckoutRecord{
			Source:          source,
			Workspace:       workspace,
			ChangelogPath:   changelogPath,
			PollingBaseline: pollingBaseline,
		})
	}

	if changelogPath == "" {
		return nil
	}
	csr, ok := build.(scm.ChangeSetRecorder)
	if !ok {
		return nil
	}
	parser, ok := backend.(scm.ChangelogParser)
	if !ok {
		clog.FromContext(ctx).Debugf("Backend for %s cannot parse changelogs, skipping %s", source, changelogPath)
		return nil
	}

	entries, err := parser.ParseChangelog(ctx, build, changelogPath)
	if err != nil {
		return fmt.Errorf("parsing changelog for %s: %w", source, err)
	}
	csr.AddChangeSet(scm.ChangeSet{Source: source, Entries: entries})
	return nil
}
