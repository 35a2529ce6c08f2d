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
	"io/fs"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Queue is the producer and consumer view of a ClaimStore. Items are claimed
// oldest first among those currently visible, which is approximately FIFO
// across producers.
type Queue struct {
	store    ClaimStore
	consumer string
	names    *namer
	ll       *slog.Logger

	claimAttempts    int
	claimBackoff     time.Duration
	renameRetryDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

const enqueueAttempts = 3

// New builds a Queue over store. A consumer identity is only required for
// claiming; producers may omit WithConsumerID.
func New(store ClaimStore, opts ...Option) (*Queue, error) {
	q := &Queue{
		store:            store,
		names:            &namer{now: time.Now},
		ll:               slog.Default(),
		claimAttempts:    3,
		claimBackoff:     200 * time.Millisecond,
		renameRetryDelay: 50 * time.Millisecond,
		sleep:            sleepContext,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.consumer != "" {
		if err := ValidateConsumerID(q.consumer); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Queue) ConsumerID() string {
	return q.consumer
}

// Enqueue durably appends payload and returns the new item's name.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	var lastErr error
	for range enqueueAttempts {
		name := q.names.next()
		err := q.store.Append(ctx, name, payload)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		// Another producer wrote the same microsecond.
		lastErr = err
	}
	return "", fmt.Errorf("failed to enqueue after %d attempts: %w", enqueueAttempts, lastErr)
}

// Claim takes exclusive ownership of the oldest claimable item. It returns
// nil with no error when the queue is empty or every candidate was taken by a
// competitor across all backoff attempts.
func (q *Queue) Claim(ctx context.Context) (*Claim, error) {
	if q.consumer == "" {
		return nil, errors.New("queue has no consumer id; cannot claim")
	}

	for attempt := 1; attempt <= q.claimAttempts; attempt++ {
		names, err := q.store.Pending(ctx)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			claimCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "empty")))
			return nil, nil
		}

		for _, name := range names {
			c, err := q.acquire(ctx, name)
			if err == nil {
				claimCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "claimed")))
				return c, nil
			}
			if errors.Is(err, ErrContested) || errors.Is(err, ErrTransient) {
				continue
			}
			return nil, err
		}

		q.ll.Debug("All queue candidates contested, backing off",
			slog.Int("attempt", attempt),
			slog.Int("candidates", len(names)))
		if attempt < q.claimAttempts {
			if err := q.sleep(ctx, q.claimBackoff*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	claimCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "contested")))
	return nil, nil
}

// acquire tries one candidate, retrying a transient failure exactly once.
func (q *Queue) acquire(ctx context.Context, name string) (*Claim, error) {
	c, err := q.store.Acquire(ctx, name, q.consumer)
	if err == nil || !errors.Is(err, ErrTransient) {
		return c, err
	}
	q.ll.Warn("Transient claim failure, retrying once",
		slog.String("item", name),
		slog.Any("error", err))
	if err := q.sleep(ctx, q.renameRetryDelay); err != nil {
		return nil, err
	}
	return q.store.Acquire(ctx, name, q.consumer)
}

func (q *Queue) Read(ctx context.Context, c *Claim) ([]byte, error) {
	return q.store.Read(ctx, c)
}

// Release deletes a claimed item. Call it only once the item's effects are durable.
func (q *Queue) Release(ctx context.Context, c *Claim) error {
	return q.store.Release(ctx, c)
}

// Unclaim gives the item back to the queue so any consumer may retry it.
func (q *Queue) Unclaim(ctx context.Context, c *Claim) error {
	return q.store.Requeue(ctx, c)
}

func (q *Queue) DeadLetter(ctx context.Context, c *Claim, reason string) error {
	return q.store.DeadLetter(ctx, c, reason)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
