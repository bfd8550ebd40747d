// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthware/hearth/lib/clock"
)

// RunRetry executes work until it succeeds or ctx is done, with
// exponential backoff between attempts (1 second doubling up to
// maxBackoff; 30 seconds when maxBackoff is zero). Returns nil on
// success, or ctx.Err() when cancelled first.
//
// The transcript archiver uses this so a transient storage failure
// never drops a conversation record.
func RunRetry(ctx context.Context, clk clock.Clock, logger *slog.Logger, label string, maxBackoff time.Duration, work func(ctx context.Context) error) error {
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := work(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Error("retryable work failed",
			"label", label,
			"error", err,
			"backoff", backoff,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
