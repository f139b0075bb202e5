/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package polling

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"chainguard.dev/scmcheckout/scm"
)

// delay is the wait before retrying after the n-th failed remote comparison (0-based).
func (c Config) delay(n int) time.Duration {
	d := c.BaseBackoff
	for range n {
		if d > c.MaxBackoff/2 {
			d = c.MaxBackoff
			break
		}
		d *= 2
	}
	return min(d, c.MaxBackoff) + c.jitter()
}

func (c Config) jitter() time.Duration {
	if c.MaxJitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(c.MaxJitter)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// transient reports whether a failed remote comparison is worth repeating.
func transient(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, scm.ErrSourceNotFound), errors.Is(err, ErrPollingUnsupported):
		return false
	}
	return true
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
