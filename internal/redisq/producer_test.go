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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollResult struct {
	payload []byte
	err     error
}

// scriptedPoller replays results and cancels the run once they are used up.
type scriptedPoller struct {
	results []pollResult
	cancel  context.CancelFunc
}

func (p *scriptedPoller) Poll(ctx context.Context) ([]byte, error) {
	if len(p.results) == 0 {
		p.cancel()
		return nil, ctx.Err()
	}
	r := p.results[0]
	p.results = p.results[1:]
	return r.payload, r.err
}

type memQueue struct {
	items [][]byte
	err   error
}

func (q *memQueue) Enqueue(_ context.Context, payload []byte) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.items = append(q.items, payload)
	return fmt.Sprintf("item-%d.json", len(q.items)), nil
}

func runProducer(t *testing.T, results []pollResult, queue *memQueue) ([]time.Duration, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var sleeps []time.Duration
	polls := 0
	p := NewProducer(&scriptedPoller{results: results, cancel: cancel}, queue,
		WithErrorBackoff(10*time.Second),
		WithPollHook(func() { polls++ }))
	p.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	err := p.Run(ctx)
	assert.Equal(t, len(results)+1, polls)
	return sleeps, err
}

func TestProducerQueuesEventsAndSkipsEmpty(t *testing.T) {
	queue := &memQueue{}
	sleeps, err := runProducer(t, []pollResult{
		{payload: []byte(`{"package":{"killID":1}}`)},
		{},
		{payload: []byte(`{"package":{"killID":2}}`)},
	}, queue)
	require.NoError(t, err)
	assert.Empty(t, sleeps)
	require.Len(t, queue.items, 2)
	assert.JSONEq(t, `{"package":{"killID":2}}`, string(queue.items[1]))
}

func TestProducerBacksOffOnNetworkError(t *testing.T) {
	queue := &memQueue{}
	sleeps, err := runProducer(t, []pollResult{
		{err: errors.New("connection refused")},
		{payload: []byte(`{"package":{"killID":1}}`)},
	}, queue)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeps)
	assert.Len(t, queue.items, 1)
}

func TestProducerRetriesDecodeErrorImmediately(t *testing.T) {
	queue := &memQueue{}
	sleeps, err := runProducer(t, []pollResult{
		{err: fmt.Errorf("%w: bad", ErrDecode)},
		{payload: []byte(`{"package":{"killID":1}}`)},
	}, queue)
	require.NoError(t, err)
	assert.Empty(t, sleeps)
	assert.Len(t, queue.items, 1)
}

func TestProducerStopsOnEnqueueFailure(t *testing.T) {
	boom := errors.New("disk full")
	queue := &memQueue{err: boom}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	p := NewProducer(&scriptedPoller{
		results: []pollResult{{payload: []byte(`{"package":{"killID":1}}`)}},
		cancel:  cancel,
	}, queue)
	err := p.Run(ctx)
	assert.ErrorIs(t, err, boom)
}
