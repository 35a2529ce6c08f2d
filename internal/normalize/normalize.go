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

package normalize

import (
	"context"
	"log/slog"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/killrunner/internal/esi"
	"github.com/cardinalhq/killrunner/internal/logctx"
	"github.com/cardinalhq/killrunner/internal/refdata"
)

// Reference is the subset of refdata.Store the normalizer reads.
type Reference interface {
	ItemType(id int64) (refdata.ItemType, bool)
	Flag(id int64) (refdata.Flag, bool)
	SolarSystem(id int64) (refdata.SolarSystem, bool)
	Region(id int64) (refdata.Region, bool)
}

var _ Reference = (*refdata.Store)(nil)

// Event is a killmail with its identifiers resolved. Names are empty when the
// reference data does not know the ID.
type Event struct {
	KillmailID      int64
	Time            time.Time
	SolarSystemID   int64
	SolarSystemName string
	RegionID        int64
	RegionName      string
	ShipTypeID      int64
	ShipTypeName    string
	Items           []Item
	DroppedItems    int
}

type Item struct {
	esi.LineItem
	TypeName string
	FlagName string
}

// Reason says why an event was filtered out.
type Reason string

const (
	Kept                Reason = ""
	UnknownLocation     Reason = "unknown_solar_system"
	RegionNotOfInterest Reason = "region_not_of_interest"
)

type Normalizer struct {
	ref      Reference
	interest mapset.Set[int64]
}

// New builds a Normalizer that keeps only events in the given regions.
func New(ref Reference, regions []int64) *Normalizer {
	return &Normalizer{
		ref:      ref,
		interest: mapset.NewSet(regions...),
	}
}

// Regions returns the interest set in ascending order.
func (n *Normalizer) Regions() []int64 {
	ids := n.interest.ToSlice()
	slices.Sort(ids)
	return ids
}

// Normalize resolves km and applies the region filter. A nil Event comes
// with the reason it was dropped.
func (n *Normalizer) Normalize(ctx context.Context, km *esi.Killmail) (*Event, Reason) {
	ll := logctx.FromContext(ctx)

	ss, ok := n.ref.SolarSystem(km.SolarSystemID)
	if !ok {
		ll.Info("Killmail solar system not in reference data, not recorded",
			slog.Int64("killmailID", km.KillmailID),
			slog.Int64("solarSystemID", km.SolarSystemID))
		return nil, UnknownLocation
	}

	ev := &Event{
		KillmailID:      km.KillmailID,
		Time:            km.KillmailTime.UTC(),
		SolarSystemID:   ss.ID,
		SolarSystemName: ss.Name,
		RegionID:        ss.RegionID,
		ShipTypeID:      km.Victim.ShipTypeID,
	}
	if r, ok := n.ref.Region(ss.RegionID); ok {
		ev.RegionName = r.Name
	}
	if st, ok := n.ref.ItemType(km.Victim.ShipTypeID); ok {
		ev.ShipTypeName = st.Name
	} else {
		ll.Warn("Unknown ship type, recording killmail without a ship name",
			slog.Int64("killmailID", km.KillmailID),
			slog.Int64("shipTypeID", km.Victim.ShipTypeID))
	}

	ll.Info("Killmail seen",
		slog.Int64("killmailID", ev.KillmailID),
		slog.String("ship", ev.ShipTypeName),
		slog.String("solarSystem", ev.SolarSystemName),
		slog.String("region", ev.RegionName))

	if !n.interest.Contains(ev.RegionID) {
		ll.Info("Region not of interest, not recorded",
			slog.Int64("killmailID", ev.KillmailID),
			slog.Int64("regionID", ev.RegionID))
		return nil, RegionNotOfInterest
	}

	for _, li := range km.LineItems() {
		it, ok := n.ref.ItemType(li.TypeID)
		if !ok {
			ev.DroppedItems++
			ll.Info("Unknown item type, line item skipped",
				slog.Int64("killmailID", ev.KillmailID),
				slog.Int64("typeID", li.TypeID))
			continue
		}
		item := Item{LineItem: li, TypeName: it.Name}
		if f, ok := n.ref.Flag(li.FlagID); ok {
			item.FlagName = f.Name
		}
		ev.Items = append(ev.Items, item)
	}
	return ev, Kept
}
