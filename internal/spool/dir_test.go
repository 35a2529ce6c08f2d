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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirStore(t *testing.T) *DirStore {
	t.Helper()
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestDirStoreAppendAndPending(t *testing.T) {
	ctx := context.Background()
	s := newTestDirStore(t)

	require.NoError(t, s.Append(ctx, "b.json", []byte(`{"b":1}`)))
	require.NoError(t, s.Append(ctx, "a.json", []byte(`{"a":1}`)))

	names, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)

	b, err := os.ReadFile(filepath.Join(s.Dir(), "a.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(b))

	// No temp files linger after a successful append.
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".tmp", filepath.Ext(e.Name()))
	}
}

func TestDirStoreAppendRefusesExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestDirStore(t)

	require.NoError(t, s.Append(ctx, "a.json", []byte("one")))
	err := s.Append(ctx, "a.json", []byte("two"))
	require.Error(t, err)

	b, err := os.ReadFile(filepath.Join(s.Dir(), "a.json"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
}

func TestDirStorePendingSkipsHiddenClaimedAndDirs(t *testing.T) {
	ctx := context.Background()
	s := newTestDirStore(t)

	for _, name := range []string{"a.json", ".b.json.tmp", "c.json.processing-7", ".hidden"} {
		require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), name), []byte("{}"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "subdir"), 0o755))

	names, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, names)
}

func TestDirStoreAcquireLifecycle(t *testing.T) {
	ctx := context.Background()
	claimTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewDirStore(t.TempDir(), withDirClock(func() time.Time { return claimTime }))
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "a.json", []byte(`{"x":1}`)))

	c, err := s.Acquire(ctx, "a.json", "c1")
	require.NoError(t, err)
	assert.Equal(t, "a.json", c.Name)
	assert.Equal(t, "c1", c.Consumer)
	assert.True(t, c.ClaimedAt.Equal(claimTime))

	info, err := os.Stat(filepath.Join(s.Dir(), "a.json.processing-c1"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(claimTime), "claimed-at is visible as the file mtime")

	names, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	b, err := s.Read(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(b))

	require.NoError(t, s.Release(ctx, c))
	_, err = os.Stat(filepath.Join(s.Dir(), "a.json.processing-c1"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, s.Release(ctx, c), ErrClaimLost)
}

func TestDirStoreAcquireStaleBacklogWithConcurrentReap(t *testing.T) {
	ctx := context.Background()
	var reaper *Reaper
	reapedDuringAcquire := -1
	s, err := NewDirStore(t.TempDir(), withDirClock(func() time.Time {
		n, err := reaper.ReapOnce(ctx)
		require.NoError(t, err)
		reapedDuringAcquire = n
		return time.Now()
	}))
	require.NoError(t, err)
	reaper = NewReaper(s, time.Hour, nil)

	require.NoError(t, s.Append(ctx, "a.json", []byte("{}")))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), "a.json"), past, past))

	c, err := s.Acquire(ctx, "a.json", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, reapedDuringAcquire)

	n, err := reaper.ReapOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a fresh claim on an old item is not stale")

	_, err = s.Read(ctx, c)
	assert.NoError(t, err)
}

func TestDirStoreAcquireVanishedItemIsContested(t *testing.T) {
	s := newTestDirStore(t)
	_, err := s.Acquire(context.Background(), "gone.json", "c1")
	assert.ErrorIs(t, err, ErrContested)
}

func TestDirStoreAcquireContested(t *testing.T) {
	ctx := context.Background()
	s := newTestDirStore(t)
	require.NoError(t, s.Append(ctx, "a.json", []byte("{}")))

	_, err := s.Acquire(ctx, "a.json", "c1")
	require.NoError(t, err)

	_, err = s.Acquire(ctx, "a.json", "c2")
	assert.ErrorIs(t, err, ErrContested)

	_, err = s.Acquire(ctx, "missing.json", "c2")
	assert.ErrorIs(t, err, ErrContested)
}

func TestDirStoreRequeue(t *testing.T) {
	ctx := context.Background()
	s := newTestDirStore(t)
	require.NoError(t, s.Append(ctx, "a.json", []byte("{}")))

	c, err := s.Acquire(ctx, "a.json", "c1")
	require.NoError(t, err)
	require.NoError(t, s.Requeue(ctx, c))

	names, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, names)

	assert.ErrorIs(t, s.Requeue(ctx, c), ErrClaimLost)
	assert.ErrorIs(t, s.Touch(ctx, c), ErrClaimLost)
	_, err = s.Read(ctx, c)
	assert.ErrorIs(t, err, ErrClaimLost)
}

func TestDirStoreDeadLetter(t *testing.T) {
	ctx := context.Background()
	dead := filepath.Join(t.TempDir(), "dlq")
	s, err := NewDirStore(t.TempDir(), WithDeadLetterDir(dead))
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "a.json", []byte(`{"k":1}`)))

	c, err := s.Acquire(ctx, "a.json", "c1")
	require.NoError(t, err)
	require.NoError(t, s.DeadLetter(ctx, c, "foreign key violation"))

	b, err := os.ReadFile(filepath.Join(dead, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(b))

	reason, err := os.ReadFile(filepath.Join(dead, "a.json.reason"))
	require.NoError(t, err)
	assert.Equal(t, "foreign key violation\n", string(reason))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Dead: 1}, st)
}

func TestDirStoreClaimsAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestDirStore(t)
	for _, n := range []string{"a.json", "b.json", "c.json"} {
		require.NoError(t, s.Append(ctx, n, []byte("{}")))
	}
	_, err := s.Acquire(ctx, "a.json", "c1")
	require.NoError(t, err)
	_, err = s.Acquire(ctx, "b.json", "c2")
	require.NoError(t, err)

	claims, err := s.Claims(ctx)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "a.json", claims[0].Name)
	assert.Equal(t, "c1", claims[0].Consumer)
	assert.Equal(t, "b.json", claims[1].Name)
	assert.Equal(t, "c2", claims[1].Consumer)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 2, st.Claimed)
	assert.Equal(t, 0, st.Dead)
	assert.False(t, st.OldestClaim.IsZero())
}
