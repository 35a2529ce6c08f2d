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

package refdata

type ItemType struct {
	ID          int64
	GroupID     int64
	Name        string
	Description string
}

type Group struct {
	ID         int64
	CategoryID int64
	Name       string
}

type Category struct {
	ID   int64
	Name string
}

// Flag is an inventory location on a ship, such as a slot or the cargo hold.
type Flag struct {
	ID   int64
	Name string
	Text string
}

type Region struct {
	ID   int64
	Name string
}

type SolarSystem struct {
	ID       int64
	RegionID int64
	Name     string
}
