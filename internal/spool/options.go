// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package spool

import (
	"context"
	"log/slog"
	"time"
)

type Option func(*Queue)

// WithConsumerID sets the identity embedded in claimed filenames.
func WithConsumerID(id string) Option {
	return func(q *Queue) {
		q.consumer = id
	}
}

func WithLogger(ll *slog.Logger) Option {
	return func(q *Queue) {
		if ll != nil {
			q.ll = ll
		}
	}
}

// WithClaimBackoff bounds how long Claim keeps trying when every candidate is
// contested. The delay before attempt n+1 is n*base.
func WithClaimBackoff(attempts int, base time.Duration) Option {
	return func(q *Queue) {
		if attempts < 1 {
			attempts = 1
		}
		q.claimAttempts = attempts
		q.claimBackoff = base
	}
}

// WithRenameRetryDelay sets the pause before retrying a transient claim failure.
func WithRenameRetryDelay(d time.Duration) Option {
	return func(q *Queue) {
		q.renameRetryDelay = d
	}
}

func withClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.names.now = now
	}
}

func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(q *Queue) {
		q.sleep = fn
	}
}
