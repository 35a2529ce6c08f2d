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

package esi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineItemsFlattensContainers(t *testing.T) {
	var km Killmail
	require.NoError(t, json.Unmarshal([]byte(`{
		"killmail_id": 1,
		"killmail_time": "2025-03-01T12:00:00Z",
		"solar_system_id": 30000142,
		"victim": {
			"ship_type_id": 587,
			"items": [
				{"item_type_id": 2881, "flag": 27, "quantity_destroyed": 1, "singleton": 0},
				{"item_type_id": 3467, "flag": 5, "quantity_dropped": 1, "singleton": 0,
				 "items": [{"item_type_id": 34, "flag": 0, "quantity_dropped": 500, "singleton": 0}]},
				{"item_type_id": 12, "flag": 5, "quantity_destroyed": 2, "quantity_dropped": 3, "singleton": 0}
			]
		}
	}`), &km))

	assert.Equal(t, []LineItem{
		{TypeID: 2881, FlagID: 27, Quantity: 1, Destroyed: true},
		{TypeID: 3467, FlagID: 5, Quantity: 1},
		{TypeID: 34, FlagID: 0, Quantity: 500},
		{TypeID: 12, FlagID: 5, Quantity: 2, Destroyed: true},
	}, km.LineItems())
}

func TestLineItemsEmpty(t *testing.T) {
	km := Killmail{}
	assert.Empty(t, km.LineItems())
}
