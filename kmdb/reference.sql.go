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

const referenceCounts = `-- name: ReferenceCounts :one
SELECT
  (SELECT count(*) FROM inv_types)      AS item_types,
  (SELECT count(*) FROM inv_groups)     AS groups,
  (SELECT count(*) FROM inv_categories) AS categories,
  (SELECT count(*) FROM inv_flags)      AS flags,
  (SELECT count(*) FROM regions)        AS regions,
  (SELECT count(*) FROM solar_systems)  AS solar_systems
`

type ReferenceCountsRow struct {
	ItemTypes    int64 `json:"item_types"`
	Groups       int64 `json:"groups"`
	Categories   int64 `json:"categories"`
	Flags        int64 `json:"flags"`
	Regions      int64 `json:"regions"`
	SolarSystems int64 `json:"solar_systems"`
}

func (q *Queries) ReferenceCounts(ctx context.Context) (ReferenceCountsRow, error) {
	row := q.db.QueryRow(ctx, referenceCounts)
	var i ReferenceCountsRow
	err := row.Scan(
		&i.ItemTypes,
		&i.Groups,
		&i.Categories,
		&i.Flags,
		&i.Regions,
		&i.SolarSystems,
	)
	return i, err
}
