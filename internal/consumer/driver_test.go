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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/killrunner/internal/esi"
	"github.com/cardinalhq/killrunner/internal/ingest"
	"github.com/cardinalhq/killrunner/internal/normalize"
	"github.com/cardinalhq/killrunner/internal/refdata"
	"github.com/cardinalhq/killrunner/internal/spool"
)

const (
	forge = int64(10000002)
	jita  = int64(30000142)
	amarr = int64(30002187)
)

func reference() *refdata.Store {
	return refdata.New(refdata.Tables{
		ItemTypes:    []refdata.ItemType{{ID: 587, Name: "Rifter"}, {ID: 34, Name: "Tritanium"}, {ID: 2881, Name: "Light Missile Launcher"}},
		Flags:        []refdata.Flag{{ID: 5, Name: "Cargo"}, {ID: 27, Name: "HiSlot0"}},
		Regions:      []refdata.Region{{ID: forge, Name: "The Forge"}, {ID: 10000043, Name: "Domain"}},
		SolarSystems: []refdata.SolarSystem{{ID: jita, RegionID: forge, Name: "Jita"}, {ID: amarr, RegionID: 10000043, Name: "Amarr"}},
	})
}

func qty(v int64) *int64 { return &v }

type fakeFetcher struct {
	calls     int
	system    int64
	itemTypes []int64
	err       error
	errFor    map[int64]error
}

func (f *fakeFetcher) Fetch(_ context.Context, killID int64, hash string) (*esi.Killmail, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errFor[killID]; err != nil {
		return nil, err
	}
	km := &esi.Killmail{
		KillmailID:    killID,
		KillmailTime:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		SolarSystemID: f.system,
		Victim:        esi.Victim{ShipTypeID: 587},
	}
	for _, typeID := range f.itemTypes {
		km.Victim.Items = append(km.Victim.Items, esi.Item{ItemTypeID: typeID, Flag: 5, QuantityDropped: qty(1)})
	}
	return km, nil
}

type fakeIngester struct {
	recorded map[int64]*normalize.Event
	result   *ingest.Result
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, ev *normalize.Event) (ingest.Result, error) {
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	if f.result != nil {
		return *f.result, nil
	}
	if _, ok := f.recorded[ev.KillmailID]; ok {
		return ingest.Result{Outcome: ingest.Duplicate}, nil
	}
	f.recorded[ev.KillmailID] = ev
	return ingest.Result{Outcome: ingest.Recorded, ItemsWritten: len(ev.Items)}, nil
}

type harness struct {
	store    *spool.DirStore
	queue    *spool.Queue
	fetcher  *fakeFetcher
	ingester *fakeIngester
	driver   *Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := spool.NewDirStore(t.TempDir())
	require.NoError(t, err)
	q, err := spool.New(store, spool.WithConsumerID("test"), spool.WithClaimBackoff(1, 0))
	require.NoError(t, err)

	h := &harness{
		store:    store,
		queue:    q,
		fetcher:  &fakeFetcher{system: jita, itemTypes: []int64{2881, 34}},
		ingester: &fakeIngester{recorded: map[int64]*normalize.Event{}},
	}
	h.driver = NewDriver(q, h.fetcher, normalize.New(reference(), []int64{forge}), h.ingester, Config{
		IdleSleep:  10 * time.Second,
		RetrySleep: 5 * time.Second,
		RecentTTL:  time.Hour,
	})
	return h
}

func (h *harness) enqueue(t *testing.T, payload string) string {
	t.Helper()
	name, err := h.queue.Enqueue(context.Background(), []byte(payload))
	require.NoError(t, err)
	return name
}

func (h *harness) pending(t *testing.T) []string {
	t.Helper()
	names, err := h.store.Pending(context.Background())
	require.NoError(t, err)
	claims, err := h.store.Claims(context.Background())
	require.NoError(t, err)
	assert.Empty(t, claims, "no claim should be left behind")
	return names
}

func TestStepRecordsKillmail(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Recorded, outcome)

	require.Contains(t, h.ingester.recorded, int64(1))
	assert.Len(t, h.ingester.recorded[1].Items, 2)
	assert.Empty(t, h.pending(t))
}

func TestStepPartialLineItems(t *testing.T) {
	h := newHarness(t)
	h.fetcher.itemTypes = []int64{2881, 99999, 34}
	h.enqueue(t, `{"package":{"killID":2,"zkb":{"hash":"abc"}}}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Recorded, outcome)
	assert.Len(t, h.ingester.recorded[2].Items, 2)
}

func TestStepMalformedItemIsDeletedWithoutFetch(t *testing.T) {
	for _, payload := range []string{`{"killID":1}`, `not json`} {
		h := newHarness(t)
		h.enqueue(t, payload)

		outcome, err := h.driver.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Malformed, outcome)
		assert.Zero(t, h.fetcher.calls)
		assert.Empty(t, h.ingester.recorded)
		assert.Empty(t, h.pending(t))
	}
}

func TestStepRegionFilter(t *testing.T) {
	h := newHarness(t)
	h.fetcher.system = amarr
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Filtered, outcome)
	assert.Empty(t, h.ingester.recorded)
	assert.Empty(t, h.pending(t))
}

func TestStepTransientFetchReturnsItem(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = &esi.TransientError{StatusCode: 503}
	name := h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Retry, outcome)
	assert.Equal(t, []string{name}, h.pending(t))
	assert.Equal(t, 5*time.Second, h.driver.pause(outcome))

	h.fetcher.err = nil
	outcome, err = h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Recorded, outcome)
}

func TestStepRejectedFetchIsDeadLetteredAndQueueMovesOn(t *testing.T) {
	tests := map[string]error{
		"bad detail json": &esi.DecodeError{Err: errors.New("truncated")},
		"not found":       &esi.TransientError{StatusCode: 404},
	}
	for name, fetchErr := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.fetcher.errFor = map[int64]error{1: fetchErr}
			first := h.enqueue(t, `{"killID":1,"hash":"abc"}`)
			h.enqueue(t, `{"killID":2,"hash":"def"}`)

			outcome, err := h.driver.Step(context.Background())
			require.NoError(t, err)
			assert.Equal(t, DeadLettered, outcome)
			reason, err := os.ReadFile(filepath.Join(h.store.DeadLetterDir(), first+".reason"))
			require.NoError(t, err)
			assert.Contains(t, string(reason), "killmail 1 rejected by endpoint")

			outcome, err = h.driver.Step(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Recorded, outcome)
			assert.Contains(t, h.ingester.recorded, int64(2))
			assert.Empty(t, h.pending(t))
		})
	}
}

func TestStepRateLimitedFetchReturnsItem(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = &esi.TransientError{StatusCode: 429}
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Retry, outcome)
	assert.Len(t, h.pending(t), 1)
}

func TestStepTransientStoreErrorReturnsItem(t *testing.T) {
	h := newHarness(t)
	h.ingester.err = &ingest.TransientError{Err: errors.New("connection reset")}
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Retry, outcome)
	assert.Len(t, h.pending(t), 1)
}

func TestStepRejectedIsDeadLettered(t *testing.T) {
	h := newHarness(t)
	h.ingester.result = &ingest.Result{Outcome: ingest.Rejected, Cause: errors.New("foreign key violation")}
	name := h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeadLettered, outcome)
	assert.Empty(t, h.pending(t))

	_, err = os.Stat(filepath.Join(h.store.DeadLetterDir(), name))
	assert.NoError(t, err)
	reason, err := os.ReadFile(filepath.Join(h.store.DeadLetterDir(), name+".reason"))
	require.NoError(t, err)
	assert.Contains(t, string(reason), "foreign key violation")
}

func TestStepDuplicateAndRecentCache(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Recorded, outcome)

	outcome, err = h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Recent, outcome)
	assert.Equal(t, 1, h.fetcher.calls)

	// Without the cache, the store reports the duplicate.
	h.driver.recent = nil
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)
	outcome, err = h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)
	assert.Empty(t, h.pending(t))
}

func TestStepEmptyQueue(t *testing.T) {
	h := newHarness(t)
	outcome, err := h.driver.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, outcome)
	assert.Equal(t, 10*time.Second, h.driver.pause(outcome))
}

func TestStepFatalErrorReturnsItemAndStops(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("relation \"killmails\" does not exist")
	h.ingester.err = boom
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	_, err := h.driver.Step(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, h.pending(t), 1)
}

func TestRunSleepsAndStops(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var outcomes []Outcome
	var sleeps []time.Duration
	h.driver.OnStep(func(o Outcome) { outcomes = append(outcomes, o) })
	h.driver.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		cancel()
		return context.Canceled
	}

	require.NoError(t, h.driver.Run(ctx))
	assert.Equal(t, []Outcome{Recorded, Idle}, outcomes)
	assert.Equal(t, []time.Duration{10 * time.Second}, sleeps)
}

func TestRunReturnsFatalError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("permission denied for table killmails")
	h.ingester.err = boom
	h.enqueue(t, `{"killID":1,"hash":"abc"}`)

	err := h.driver.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}
