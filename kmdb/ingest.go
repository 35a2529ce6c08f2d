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

package kmdb

import (
	"context"
)

// IngestTx is the write surface for recording one killmail atomically.
type IngestTx interface {
	// InsertKillmail returns the number of rows written, 0 when the
	// killmail already exists.
	InsertKillmail(ctx context.Context, arg InsertKillmailParams) (int64, error)
	// InsertDroppedItem writes one line item. A failure leaves the rest of
	// the transaction usable.
	InsertDroppedItem(ctx context.Context, arg InsertDroppedItemParams) error
}

type ingestTx struct {
	store *Store
}

func (t ingestTx) InsertKillmail(ctx context.Context, arg InsertKillmailParams) (int64, error) {
	return t.store.InsertKillmail(ctx, arg)
}

func (t ingestTx) InsertDroppedItem(ctx context.Context, arg InsertDroppedItemParams) error {
	return t.store.savepoint(ctx, func(q *Queries) error {
		return q.InsertDroppedItem(ctx, arg)
	})
}

// IngestTx runs fn in one transaction. Returning an error from fn rolls
// back everything, so no line item outlives a failed killmail insert.
func (store *Store) IngestTx(ctx context.Context, fn func(IngestTx) error) error {
	return store.execTx(ctx, func(s *Store) error {
		return fn(ingestTx{store: s})
	})
}
