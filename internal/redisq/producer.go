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

package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultErrorBackoff = 10 * time.Second

// Poller returns one serialized event, or nil if there was none.
type Poller interface {
	Poll(ctx context.Context) ([]byte, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte) (string, error)
}

// Producer moves events from the feed into the durable queue.
type Producer struct {
	poller       Poller
	queue        Enqueuer
	errorBackoff time.Duration
	ll           *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
	onPoll       func()
}

type ProducerOption func(*Producer)

func WithErrorBackoff(d time.Duration) ProducerOption {
	return func(p *Producer) {
		if d > 0 {
			p.errorBackoff = d
		}
	}
}

func WithProducerLogger(ll *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if ll != nil {
			p.ll = ll
		}
	}
}

// WithPollHook registers fn to run after every completed poll, whatever its
// result. The produce command uses it to report liveness.
func WithPollHook(fn func()) ProducerOption {
	return func(p *Producer) {
		p.onPoll = fn
	}
}

func NewProducer(poller Poller, queue Enqueuer, opts ...ProducerOption) *Producer {
	p := &Producer{
		poller:       poller,
		queue:        queue,
		errorBackoff: DefaultErrorBackoff,
		ll:           slog.Default(),
		sleep:        sleepContext,
		onPoll:       func() {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled. Feed failures never stop it; a failure
// to enqueue is returned because the event would otherwise be lost.
func (p *Producer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.step(ctx); err != nil {
			return err
		}
	}
}

func (p *Producer) step(ctx context.Context) error {
	p.ll.Debug("Waiting on feed")
	payload, err := p.poller.Poll(ctx)
	p.onPoll()

	switch {
	case err != nil && ctx.Err() != nil:
		return nil
	case errors.Is(err, ErrDecode):
		p.count(ctx, "decode_error")
		p.ll.Warn("Skipping undecodable feed response", slog.Any("error", err))
		return nil
	case err != nil:
		p.count(ctx, "network_error")
		p.ll.Warn("Feed poll failed, backing off",
			slog.Any("error", err),
			slog.Duration("backoff", p.errorBackoff))
		// Cancellation during the sleep ends Run on the next pass.
		_ = p.sleep(ctx, p.errorBackoff)
		return nil
	case payload == nil:
		p.count(ctx, "empty")
		return nil
	}

	name, err := p.queue.Enqueue(ctx, payload)
	if err != nil {
		return fmt.Errorf("failed to queue feed event: %w", err)
	}
	p.count(ctx, "queued")
	p.ll.Info("Queued feed event", slog.String("item", name))
	return nil
}

func (p *Producer) count(ctx context.Context, result string) {
	notificationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
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
