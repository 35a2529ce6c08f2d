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

import "time"

// Killmail is the detail record returned by the killmail endpoint.
type Killmail struct {
	KillmailID    int64     `json:"killmail_id"`
	KillmailTime  time.Time `json:"killmail_time"`
	SolarSystemID int64     `json:"solar_system_id"`
	Victim        Victim    `json:"victim"`
}

type Victim struct {
	ShipTypeID int64  `json:"ship_type_id"`
	Items      []Item `json:"items"`
}

// Item is one fitted or cargo item. Containers carry their contents in Items.
type Item struct {
	ItemTypeID        int64  `json:"item_type_id"`
	Flag              int64  `json:"flag"`
	QuantityDestroyed *int64 `json:"quantity_destroyed,omitempty"`
	QuantityDropped   *int64 `json:"quantity_dropped,omitempty"`
	Singleton         int64  `json:"singleton"`
	Items             []Item `json:"items,omitempty"`
}

// LineItem is a flattened Item ready for storage.
type LineItem struct {
	TypeID    int64
	FlagID    int64
	Quantity  int64
	Destroyed bool
}

// quantity prefers the destroyed count when both are present.
func (it Item) quantity() (int64, bool) {
	if it.QuantityDestroyed != nil {
		return *it.QuantityDestroyed, true
	}
	if it.QuantityDropped != nil {
		return *it.QuantityDropped, false
	}
	return 0, false
}

// LineItems flattens the victim's items depth first, containers before
// their contents.
func (k *Killmail) LineItems() []LineItem {
	var out []LineItem
	var walk func(items []Item)
	walk = func(items []Item) {
		for _, it := range items {
			qty, destroyed := it.quantity()
			out = append(out, LineItem{
				TypeID:    it.ItemTypeID,
				FlagID:    it.Flag,
				Quantity:  qty,
				Destroyed: destroyed,
			})
			walk(it.Items)
		}
	}
	walk(k.Victim.Items)
	return out
}
