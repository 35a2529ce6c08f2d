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
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/killrunner/internal/refdata"
)

type referenceTable struct {
	name    string
	key     string
	columns []string
	rows    [][]any
}

func referenceTables(t refdata.Tables) []referenceTable {
	tables := []referenceTable{
		{name: "inv_categories", key: "category_id", columns: []string{"category_id", "category_name"}},
		{name: "inv_groups", key: "group_id", columns: []string{"group_id", "category_id", "group_name"}},
		{name: "inv_types", key: "type_id", columns: []string{"type_id", "group_id", "type_name", "description"}},
		{name: "inv_flags", key: "flag_id", columns: []string{"flag_id", "flag_name", "flag_text"}},
		{name: "regions", key: "region_id", columns: []string{"region_id", "region_name"}},
		{name: "solar_systems", key: "solar_system_id", columns: []string{"solar_system_id", "region_id", "solar_system_name"}},
	}
	for _, r := range t.Categories {
		tables[0].rows = append(tables[0].rows, []any{r.ID, r.Name})
	}
	for _, r := range t.Groups {
		tables[1].rows = append(tables[1].rows, []any{r.ID, r.CategoryID, r.Name})
	}
	for _, r := range t.ItemTypes {
		tables[2].rows = append(tables[2].rows, []any{r.ID, r.GroupID, r.Name, r.Description})
	}
	for _, r := range t.Flags {
		tables[3].rows = append(tables[3].rows, []any{r.ID, r.Name, r.Text})
	}
	for _, r := range t.Regions {
		tables[4].rows = append(tables[4].rows, []any{r.ID, r.Name})
	}
	for _, r := range t.SolarSystems {
		tables[5].rows = append(tables[5].rows, []any{r.ID, r.RegionID, r.Name})
	}
	return tables
}

func (rt referenceTable) upsertSQL(staging string) string {
	cols := strings.Join(rt.columns, ", ")
	var sets []string
	for _, c := range rt.columns {
		if c == rt.key {
			continue
		}
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		rt.name, cols, cols, staging, rt.key, strings.Join(sets, ", "))
}

// LoadReference bulk loads the lookup tables in one transaction. Rows are
// copied into staging tables and upserted, so reloading is safe even after
// killmails reference them.
func (store *Store) LoadReference(ctx context.Context, t refdata.Tables) (ReferenceCountsRow, error) {
	err := store.execTx(ctx, func(s *Store) error {
		for _, rt := range referenceTables(t) {
			if len(rt.rows) == 0 {
				continue
			}
			staging := "staging_" + rt.name
			if _, err := s.tx.Exec(ctx, fmt.Sprintf(
				"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", staging, rt.name)); err != nil {
				return fmt.Errorf("create staging table for %s: %w", rt.name, err)
			}
			if _, err := s.tx.CopyFrom(ctx, pgx.Identifier{staging}, rt.columns, pgx.CopyFromRows(rt.rows)); err != nil {
				return fmt.Errorf("copy %s: %w", rt.name, err)
			}
			if _, err := s.tx.Exec(ctx, rt.upsertSQL(staging)); err != nil {
				return fmt.Errorf("upsert %s: %w", rt.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return ReferenceCountsRow{}, err
	}
	return store.ReferenceCounts(ctx)
}
