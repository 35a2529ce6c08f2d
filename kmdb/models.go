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
	"time"
)

type Killmail struct {
	KillmailID    int64     `json:"killmail_id"`
	KillmailTime  time.Time `json:"killmail_time"`
	SolarSystemID int64     `json:"solar_system_id"`
	ShipTypeID    int64     `json:"ship_type_id"`
	RecordedAt    time.Time `json:"recorded_at"`
}

type DroppedItem struct {
	ID         int64 `json:"id"`
	KillmailID int64 `json:"killmail_id"`
	TypeID     int64 `json:"type_id"`
	FlagID     int64 `json:"flag_id"`
	Quantity   int64 `json:"quantity"`
	Destroyed  bool  `json:"destroyed"`
}
