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
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"time"
)

// DirStore is a ClaimStore backed by a directory on a filesystem shared by
// all producers and consumers. Claiming is an atomic rename of
// <name> to <name>.processing-<consumer>.
type DirStore struct {
	dir     string
	deadDir string
	now     func() time.Time
}

var _ ClaimStore = (*DirStore)(nil)

type DirOption func(*DirStore)

// WithDeadLetterDir sets where dead-lettered items are moved.
// Without this option, items are moved to "dead" under the queue directory.
func WithDeadLetterDir(dir string) DirOption {
	return func(s *DirStore) {
		if dir != "" {
			s.deadDir = dir
		}
	}
}

func withDirClock(now func() time.Time) DirOption {
	return func(s *DirStore) {
		s.now = now
	}
}

// NewDirStore opens (creating if needed) the queue directory and its
// dead-letter directory.
func NewDirStore(dir string, opts ...DirOption) (*DirStore, error) {
	s := &DirStore{
		dir:     dir,
		deadDir: filepath.Join(dir, "dead"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory %s: %w", s.dir, err)
	}
	if err := os.MkdirAll(s.deadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dead letter directory %s: %w", s.deadDir, err)
	}
	return s, nil
}

func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) DeadLetterDir() string {
	return s.deadDir
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Append writes payload to a hidden temp file, syncs it, and renames it into
// place so no consumer can observe a partially written item.
func (s *DirStore) Append(_ context.Context, name string, payload []byte) error {
	final := s.path(name)
	tmp := s.path(tempName(name))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to sync queue file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close queue file: %w", err)
	}
	if err := renameNoReplace(tmp, final); err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("queue item %s already exists: %w", name, fs.ErrExist)
		}
		return fmt.Errorf("failed to publish queue file: %w", err)
	}
	syncDir(s.dir)
	return nil
}

// Pending lists unclaimed items. os.ReadDir returns entries sorted by name,
// which for timestamp names is enqueue order.
func (s *DirStore) Pending(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsCandidate(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (s *DirStore) Acquire(_ context.Context, name, consumer string) (*Claim, error) {
	c := &Claim{Name: name, Consumer: consumer}

	// Rename keeps the mtime, so stamp claimed-at first. A claimed name
	// never carries the enqueue time, which the reaper would treat as stale.
	now := s.now()
	if err := os.Chtimes(s.path(name), now, now); err != nil {
		return nil, classifyRenameError(err)
	}
	if err := renameNoReplace(s.path(name), s.path(c.ClaimedName())); err != nil {
		return nil, classifyRenameError(err)
	}
	c.ClaimedAt = now
	return c, nil
}

func (s *DirStore) Read(_ context.Context, c *Claim) ([]byte, error) {
	b, err := os.ReadFile(s.path(c.ClaimedName()))
	if err != nil {
		return nil, claimError(err)
	}
	return b, nil
}

func (s *DirStore) Release(_ context.Context, c *Claim) error {
	if err := os.Remove(s.path(c.ClaimedName())); err != nil {
		return claimError(err)
	}
	return nil
}

func (s *DirStore) Requeue(_ context.Context, c *Claim) error {
	if err := renameNoReplace(s.path(c.ClaimedName()), s.path(c.Name)); err != nil {
		return claimError(err)
	}
	return nil
}

func (s *DirStore) Touch(_ context.Context, c *Claim) error {
	now := s.now()
	if err := os.Chtimes(s.path(c.ClaimedName()), now, now); err != nil {
		return claimError(err)
	}
	return nil
}

// DeadLetter moves the item into the dead letter directory under its
// original name and writes the reason alongside it.
func (s *DirStore) DeadLetter(_ context.Context, c *Claim, reason string) error {
	dst := filepath.Join(s.deadDir, c.Name)
	if err := renameNoReplace(s.path(c.ClaimedName()), dst); err != nil {
		return claimError(err)
	}
	if reason != "" {
		if err := os.WriteFile(dst+".reason", []byte(reason+"\n"), 0o644); err != nil {
			return fmt.Errorf("dead lettered %s but failed to record reason: %w", c.Name, err)
		}
	}
	return nil
}

func (s *DirStore) Claims(_ context.Context) ([]*Claim, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue directory: %w", err)
	}
	var claims []*Claim
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name, consumer, ok := ParseClaimedName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Released or requeued while listing.
			continue
		}
		claims = append(claims, &Claim{Name: name, Consumer: consumer, ClaimedAt: info.ModTime()})
	}
	return claims, nil
}

// Stats is a point-in-time census of the queue directory.
type Stats struct {
	Pending     int
	Claimed     int
	Dead        int
	OldestClaim time.Time
}

func (s *DirStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	pending, err := s.Pending(ctx)
	if err != nil {
		return st, err
	}
	st.Pending = len(pending)

	claims, err := s.Claims(ctx)
	if err != nil {
		return st, err
	}
	st.Claimed = len(claims)
	for _, c := range claims {
		if st.OldestClaim.IsZero() || c.ClaimedAt.Before(st.OldestClaim) {
			st.OldestClaim = c.ClaimedAt
		}
	}

	dead, err := os.ReadDir(s.deadDir)
	if err != nil {
		return st, fmt.Errorf("failed to list dead letter directory: %w", err)
	}
	for _, e := range dead {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) != ".reason" {
			st.Dead++
		}
	}
	return st, nil
}

// classifyRenameError maps a failed claim rename onto the claim protocol.
func classifyRenameError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrExist):
		return ErrContested
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EAGAIN):
		return fmt.Errorf("%w: %w", ErrTransient, err)
	default:
		return err
	}
}

func claimError(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrClaimLost, err)
	}
	return err
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
