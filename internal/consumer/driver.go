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

package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/killrunner/internal/esi"
	"github.com/cardinalhq/killrunner/internal/ingest"
	"github.com/cardinalhq/killrunner/internal/logctx"
	"github.com/cardinalhq/killrunner/internal/normalize"
	"github.com/cardinalhq/killrunner/internal/redisq"
	"github.com/cardinalhq/killrunner/internal/spool"
)

type Queue interface {
	Claim(ctx context.Context) (*spool.Claim, error)
	Read(ctx context.Context, c *spool.Claim) ([]byte, error)
	Release(ctx context.Context, c *spool.Claim) error
	Unclaim(ctx context.Context, c *spool.Claim) error
	DeadLetter(ctx context.Context, c *spool.Claim, reason string) error
	KeepAlive(ctx context.Context, c *spool.Claim, interval time.Duration) context.CancelFunc
}

type Fetcher interface {
	Fetch(ctx context.Context, killID int64, hash string) (*esi.Killmail, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, km *esi.Killmail) (*normalize.Event, normalize.Reason)
}

type Ingester interface {
	Ingest(ctx context.Context, ev *normalize.Event) (ingest.Result, error)
}

var (
	_ Queue      = (*spool.Queue)(nil)
	_ Fetcher    = (*esi.Client)(nil)
	_ Normalizer = (*normalize.Normalizer)(nil)
	_ Ingester   = (*ingest.Engine)(nil)
)

type Config struct {
	IdleSleep         time.Duration
	RetrySleep        time.Duration
	KeepAliveInterval time.Duration
	// RecentTTL is how long recorded killmail IDs are remembered so feed
	// repeats skip the detail fetch. Zero disables the cache.
	RecentTTL time.Duration
}

// Driver runs claim, fetch, normalize, ingest and release in a loop. It
// keeps no state across steps that matters for correctness; the recent
// cache only saves work.
type Driver struct {
	queue      Queue
	fetcher    Fetcher
	normalizer Normalizer
	ingester   Ingester

	idleSleep  time.Duration
	retrySleep time.Duration
	keepAlive  time.Duration
	recent     *ttlcache.Cache[int64, struct{}]

	sleep  func(ctx context.Context, d time.Duration) error
	onStep func(Outcome)
}

func NewDriver(q Queue, f Fetcher, n Normalizer, i Ingester, cfg Config) *Driver {
	d := &Driver{
		queue:      q,
		fetcher:    f,
		normalizer: n,
		ingester:   i,
		idleSleep:  cfg.IdleSleep,
		retrySleep: cfg.RetrySleep,
		keepAlive:  cfg.KeepAliveInterval,
		sleep:      sleepContext,
		onStep:     func(Outcome) {},
	}
	if cfg.RecentTTL > 0 {
		d.recent = ttlcache.New(
			ttlcache.WithTTL[int64, struct{}](cfg.RecentTTL),
			ttlcache.WithDisableTouchOnHit[int64, struct{}](),
			ttlcache.WithCapacity[int64, struct{}](100_000),
		)
	}
	return d
}

// OnStep registers fn to run after every completed step.
func (d *Driver) OnStep(fn func(Outcome)) {
	d.onStep = fn
}

// Run steps until ctx is cancelled or a step fails with an error that
// retrying will not fix.
func (d *Driver) Run(ctx context.Context) error {
	ll := logctx.FromContext(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		outcome, err := d.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.onStep(outcome)

		if pause := d.pause(outcome); pause > 0 {
			if outcome == Idle {
				ll.Debug("Queue is empty, sleeping", slog.Duration("sleep", pause))
			}
			if err := d.sleep(ctx, pause); err != nil {
				return nil
			}
		}
	}
}

// Step handles at most one queue item.
func (d *Driver) Step(ctx context.Context) (Outcome, error) {
	c, err := d.queue.Claim(ctx)
	if err != nil {
		return "", fmt.Errorf("claim: %w", err)
	}
	if c == nil {
		return Idle, nil
	}

	start := time.Now()
	ctx, ll := logctx.With(ctx, slog.String("item", c.Name))
	stop := d.queue.KeepAlive(ctx, c, d.keepAlive)
	defer stop()

	outcome, err := d.process(ctx, c)
	if err != nil {
		// Hand the item back so a restarted consumer can retry it.
		if uerr := d.queue.Unclaim(context.WithoutCancel(ctx), c); uerr != nil && !errors.Is(uerr, spool.ErrClaimLost) {
			ll.Error("Failed to return item to queue", slog.Any("error", uerr))
		}
		return "", err
	}

	itemCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
	durationHistogram.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("outcome", string(outcome))))
	return outcome, nil
}

func (d *Driver) process(ctx context.Context, c *spool.Claim) (Outcome, error) {
	ll := logctx.FromContext(ctx)
	// Queue bookkeeping must finish even while shutting down.
	qctx := context.WithoutCancel(ctx)

	data, err := d.queue.Read(ctx, c)
	if err != nil {
		if errors.Is(err, spool.ErrClaimLost) {
			ll.Warn("Claim lost before processing")
			return ClaimLost, nil
		}
		return "", err
	}

	n, err := redisq.ParseNotification(data)
	if err != nil {
		ll.Warn("Malformed queue item, discarding", slog.Any("error", err))
		return d.release(qctx, c, Malformed)
	}
	ctx, ll = logctx.With(ctx, slog.Int64("killmailID", n.KillID))

	if d.seenRecently(n.KillID) {
		ll.Info("Killmail recorded recently, discarding repeat")
		return d.release(qctx, c, Recent)
	}

	km, err := d.fetcher.Fetch(ctx, n.KillID, n.Hash)
	switch {
	case err == nil:
	case errors.Is(err, esi.ErrPermanent):
		ll.Warn("Killmail can never be fetched, discarding", slog.Any("error", err))
		return d.release(qctx, c, Malformed)
	case esi.IsRejected(err):
		return d.deadLetter(qctx, c, fmt.Sprintf("killmail %d rejected by endpoint: %v", n.KillID, err))
	case esi.IsRetryable(err):
		ll.Warn("Killmail fetch failed, returning item to queue", slog.Any("error", err))
		return d.unclaim(qctx, c)
	default:
		return "", err
	}

	ev, reason := d.normalizer.Normalize(ctx, km)
	if ev == nil {
		ll.Debug("Killmail filtered", slog.String("reason", string(reason)))
		return d.release(qctx, c, Filtered)
	}

	res, err := d.ingester.Ingest(ctx, ev)
	if err != nil {
		var te *ingest.TransientError
		if errors.As(err, &te) || ctx.Err() != nil {
			ll.Warn("Store write failed, returning item to queue", slog.Any("error", err))
			return d.unclaim(qctx, c)
		}
		return "", err
	}

	switch res.Outcome {
	case ingest.Recorded:
		d.remember(n.KillID)
		return d.release(qctx, c, Recorded)
	case ingest.Duplicate:
		d.remember(n.KillID)
		return d.release(qctx, c, Duplicate)
	case ingest.Rejected:
		return d.deadLetter(qctx, c, fmt.Sprintf("killmail %d rejected by store: %v", n.KillID, res.Cause))
	default:
		return "", fmt.Errorf("unknown ingest outcome %v", res.Outcome)
	}
}

// release deletes the item and reports outcome.
func (d *Driver) release(ctx context.Context, c *spool.Claim, outcome Outcome) (Outcome, error) {
	if err := d.queue.Release(ctx, c); err != nil {
		if errors.Is(err, spool.ErrClaimLost) {
			logctx.FromContext(ctx).Warn("Claim lost before release; item may be processed again")
			return outcome, nil
		}
		return "", fmt.Errorf("release %s: %w", c.Name, err)
	}
	return outcome, nil
}

// deadLetter moves the item aside with reason so it stops blocking the queue.
func (d *Driver) deadLetter(ctx context.Context, c *spool.Claim, reason string) (Outcome, error) {
	ll := logctx.FromContext(ctx)
	if err := d.queue.DeadLetter(ctx, c, reason); err != nil {
		if errors.Is(err, spool.ErrClaimLost) {
			ll.Warn("Claim lost before dead-lettering")
			return ClaimLost, nil
		}
		return "", fmt.Errorf("dead-letter %s: %w", c.Name, err)
	}
	ll.Warn("Killmail moved to dead letter directory", slog.String("reason", reason))
	return DeadLettered, nil
}

func (d *Driver) unclaim(ctx context.Context, c *spool.Claim) (Outcome, error) {
	if err := d.queue.Unclaim(ctx, c); err != nil {
		if errors.Is(err, spool.ErrClaimLost) {
			return ClaimLost, nil
		}
		return "", fmt.Errorf("unclaim %s: %w", c.Name, err)
	}
	return Retry, nil
}

func (d *Driver) seenRecently(id int64) bool {
	return d.recent != nil && d.recent.Get(id) != nil
}

func (d *Driver) remember(id int64) {
	if d.recent != nil {
		d.recent.Set(id, struct{}{}, ttlcache.DefaultTTL)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
