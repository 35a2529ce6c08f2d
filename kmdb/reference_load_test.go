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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/killrunner/internal/refdata"
)

func TestReferenceTablesOrderAndRows(t *testing.T) {
	tables := referenceTables(refdata.Tables{
		SolarSystems: []refdata.SolarSystem{{ID: 30000142, RegionID: 10000002, Name: "Jita"}},
		Regions:      []refdata.Region{{ID: 10000002, Name: "The Forge"}},
		ItemTypes:    []refdata.ItemType{{ID: 587, GroupID: 25, Name: "Rifter", Description: "frigate"}},
	})

	var names []string
	for _, rt := range tables {
		names = append(names, rt.name)
		for _, row := range rt.rows {
			assert.Len(t, row, len(rt.columns), rt.name)
		}
	}
	// Regions must land before the solar systems that reference them.
	assert.Equal(t, []string{"inv_categories", "inv_groups", "inv_types", "inv_flags", "regions", "solar_systems"}, names)
	require.Len(t, tables[5].rows, 1)
	assert.Equal(t, []any{int64(30000142), int64(10000002), "Jita"}, tables[5].rows[0])
}

func TestUpsertSQL(t *testing.T) {
	rt := referenceTable{name: "regions", key: "region_id", columns: []string{"region_id", "region_name"}}
	assert.Equal(t,
		"INSERT INTO regions (region_id, region_name) SELECT region_id, region_name FROM staging_regions ON CONFLICT (region_id) DO UPDATE SET region_name = EXCLUDED.region_name",
		rt.upsertSQL("staging_regions"))
}
