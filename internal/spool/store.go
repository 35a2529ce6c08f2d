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
	"time"
)

var (
	// ErrContested means the item was taken by a competing consumer, or
	// vanished, between listing and claiming. It is not a failure.
	ErrContested = errors.New("queue item contested")

	// ErrTransient wraps claim failures worth retrying, such as permission or
	// locking hiccups on the underlying store.
	ErrTransient = errors.New("transient queue failure")

	// ErrClaimLost means the claimed item is no longer held by this consumer,
	// usually because a reaper requeued it.
	ErrClaimLost = errors.New("claim no longer held")
)

// Claim is exclusive ownership of one queue item by one consumer.
type Claim struct {
	Name      string
	Consumer  string
	ClaimedAt time.Time
}

// ClaimedName is the name the item carries in the store while claimed.
func (c *Claim) ClaimedName() string {
	return ClaimedName(c.Name, c.Consumer)
}

// ClaimStore is the storage capability behind a Queue. Acquire must be
// atomic: for any item, at most one Acquire succeeds until the claim is
// requeued.
type ClaimStore interface {
	// Append durably stores payload under name. Readers never see a partial item.
	Append(ctx context.Context, name string, payload []byte) error
	// Pending lists unclaimed item names in ascending order.
	Pending(ctx context.Context) ([]string, error)
	// Acquire claims name for consumer, returning ErrContested if it lost the race.
	Acquire(ctx context.Context, name, consumer string) (*Claim, error)
	Read(ctx context.Context, c *Claim) ([]byte, error)
	// Release permanently removes a claimed item.
	Release(ctx context.Context, c *Claim) error
	// Requeue returns a claimed item to the pending set under its original name.
	Requeue(ctx context.Context, c *Claim) error
	// Touch refreshes the claimed-at time.
	Touch(ctx context.Context, c *Claim) error
	// DeadLetter moves a claimed item out of the queue, keeping it for inspection.
	DeadLetter(ctx context.Context, c *Claim, reason string) error
	// Claims lists every currently claimed item, by any consumer.
	Claims(ctx context.Context) ([]*Claim, error)
}
