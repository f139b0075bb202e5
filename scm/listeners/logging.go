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

// Logging reports each checkout to the build output and the context logger.
type Logging struct{}

var _ scm.Listener = Logging{}

// OnCheckout implements scm.Listener.
func (Logging) OnCheckout(ctx context.Context, build scm.Build, backend scm.Backend, workspace string, out io.Writer, changelogPath string, pollingBaseline revisionstate.Snapshot) error {
	source := backend.SourceID()
	clog.FromContext(ctx).With("source", source).
		With("build", build.Number()).
		With("changelog", changelogPath).
		Infof("Checked out into %s", workspace)

	msg := fmt.Sprintf("Checked out %s into %s", source, workspace)
	if pollingBaseline != nil {
		msg += fmt.Sprintf(" (polling baseline %s)", pollingBaseline)
	}
	_, err := fmt.Fprintln(out, msg)
	return err
}
