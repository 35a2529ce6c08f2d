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
	"time"
)

const insertKillmail = `-- name: InsertKillmail :execrows
INSERT INTO killmails (killmail_id, killmail_time, solar_system_id, ship_type_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (killmail_id) DO NOTHING
`

type InsertKillmailParams struct {
	KillmailID    int64     `json:"killmail_id"`
	KillmailTime  time.Time `json:"killmail_time"`
	SolarSystemID int64     `json:"solar_system_id"`
	ShipTypeID    int64     `json:"ship_type_id"`
}

// InsertKillmail returns 0 when the killmail is already recorded.
func (q *Queries) InsertKillmail(ctx context.Context, arg InsertKillmailParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertKillmail,
		arg.KillmailID,
		arg.KillmailTime,
		arg.SolarSystemID,
		arg.ShipTypeID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const insertDroppedItem = `-- name: InsertDroppedItem :exec
INSERT INTO dropped_items (killmail_id, type_id, flag_id, quantity, destroyed)
VALUES ($1, $2, $3, $4, $5)
`

type InsertDroppedItemParams struct {
	KillmailID int64 `json:"killmail_id"`
	TypeID     int64 `json:"type_id"`
	FlagID     int64 `json:"flag_id"`
	Quantity   int64 `json:"quantity"`
	Destroyed  bool  `json:"destroyed"`
}

func (q *Queries) InsertDroppedItem(ctx context.Context, arg InsertDroppedItemParams) error {
	_, err := q.db.Exec(ctx, insertDroppedItem,
		arg.KillmailID,
		arg.TypeID,
		arg.FlagID,
		arg.Quantity,
		arg.Destroyed,
	)
	return err
}

const getKillmail = `-- name: GetKillmail :one
SELECT killmail_id, killmail_time, solar_system_id, ship_type_id, recorded_at
FROM killmails
WHERE killmail_id = $1
`

func (q *Queries) GetKillmail(ctx context.Context, killmailID int64) (Killmail, error) {
	row := q.db.QueryRow(ctx, getKillmail, killmailID)
	var i Killmail
	err := row.Scan(
		&i.KillmailID,
		&i.KillmailTime,
		&i.SolarSystemID,
		&i.ShipTypeID,
		&i.RecordedAt,
	)
	return i, err
}

const listDroppedItems = `-- name: ListDroppedItems :many
SELECT id, killmail_id, type_id, flag_id, quantity, destroyed
FROM dropped_items
WHERE killmail_id = $1
ORDER BY id
`

func (q *Queries) ListDroppedItems(ctx context.Context, killmailID int64) ([]DroppedItem, error) {
	rows, err := q.db.Query(ctx, listDroppedItems, killmailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DroppedItem
	for rows.Next() {
		var i DroppedItem
		if err := rows.Scan(
			&i.ID,
			&i.KillmailID,
			&i.TypeID,
			&i.FlagID,
			&i.Quantity,
			&i.Destroyed,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countKillmails = `-- name: CountKillmails :one
SELECT count(*) FROM killmails
`

func (q *Queries) CountKillmails(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countKillmails)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countDroppedItems = `-- name: CountDroppedItems :one
SELECT count(*) FROM dropped_items
`

func (q *Queries) CountDroppedItems(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countDroppedItems)
	var count int64
	err := row.Scan(&count)
	return count, err
}
