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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Reaper returns claims to the queue once their claimed-at time is older
// than the TTL, recovering items held by consumers that crashed.
type Reaper struct {
	store ClaimStore
	ttl   time.Duration
	ll    *slog.Logger
	now   func() time.Time
}

func NewReaper(store ClaimStore, ttl time.Duration, ll *slog.Logger) *Reaper {
	if ll == nil {
		ll = slog.Default()
	}
	return &Reaper{
		store: store,
		ttl:   ttl,
		ll:    ll.With(slog.String("component", "reaper")),
		now:   time.Now,
	}
}

// ReapOnce requeues every stale claim and returns how many were requeued.
func (r *Reaper) ReapOnce(ctx context.Context) (int, error) {
	claims, err := r.store.Claims(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := r.now().Add(-r.ttl)
	var errs *multierror.Error
	reaped := 0
	for _, c := range claims {
		if !c.ClaimedAt.Before(cutoff) {
			continue
		}
		if err := r.store.Requeue(ctx, c); err != nil {
			if errors.Is(err, ErrClaimLost) {
				// Released or reaped by someone else in the meantime.
				continue
			}
			errs = multierror.Append(errs, fmt.Errorf("requeue %s: %w", c.ClaimedName(), err))
			continue
		}
		reaped++
		r.ll.Warn("Requeued stale claim",
			slog.String("item", c.Name),
			slog.String("consumer", c.Consumer),
			slog.Time("claimedAt", c.ClaimedAt))
	}
	if reaped > 0 {
		reapedCounter.Add(ctx, int64(reaped))
	}
	return reaped, errs.ErrorOrNil()
}

// Run reaps every interval until ctx is done. Reap errors are logged, not returned.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.ll.Error("Failed to reap stale claims (continuing)", slog.Any("error", err))
			}
		}
	}
}
