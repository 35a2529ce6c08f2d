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

import (
	"maps"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// Store holds the reference tables. It is immutable after Load and safe for
// concurrent readers.
type Store struct {
	itemTypes    map[int64]ItemType
	groups       map[int64]Group
	categories   map[int64]Category
	flags        map[int64]Flag
	regions      map[int64]Region
	solarSystems map[int64]SolarSystem
}

// Load reads every reference CSV from dir. All failures are reported
// together so a bootstrap directory can be fixed in one pass.
func Load(dir string) (*Store, error) {
	var errs *multierror.Error
	s := &Store{}

	var err error
	if s.itemTypes, err = itemTypesTable.load(dir); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.groups, err = groupsTable.load(dir); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.categories, err = categoriesTable.load(dir); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.flags, err = flagsTable.load(dir); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.regions, err = regionsTable.load(dir); err != nil {
		errs = multierror.Append(errs, err)
	}
	if s.solarSystems, err = solarSystemsTable.load(dir); err != nil {
		errs = multierror.Append(errs, err)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return s, nil
}

// Tables bundles already-built maps into a Store. Nil maps are treated as empty.
type Tables struct {
	ItemTypes    []ItemType
	Groups       []Group
	Categories   []Category
	Flags        []Flag
	Regions      []Region
	SolarSystems []SolarSystem
}

func index[T any](rows []T, id func(T) int64) map[int64]T {
	m := make(map[int64]T, len(rows))
	for _, r := range rows {
		m[id(r)] = r
	}
	return m
}

func New(t Tables) *Store {
	return &Store{
		itemTypes:    index(t.ItemTypes, func(r ItemType) int64 { return r.ID }),
		groups:       index(t.Groups, func(r Group) int64 { return r.ID }),
		categories:   index(t.Categories, func(r Category) int64 { return r.ID }),
		flags:        index(t.Flags, func(r Flag) int64 { return r.ID }),
		regions:      index(t.Regions, func(r Region) int64 { return r.ID }),
		solarSystems: index(t.SolarSystems, func(r SolarSystem) int64 { return r.ID }),
	}
}

func (s *Store) ItemType(id int64) (ItemType, bool) {
	v, ok := s.itemTypes[id]
	return v, ok
}

func (s *Store) Group(id int64) (Group, bool) {
	v, ok := s.groups[id]
	return v, ok
}

func (s *Store) Category(id int64) (Category, bool) {
	v, ok := s.categories[id]
	return v, ok
}

func (s *Store) Flag(id int64) (Flag, bool) {
	v, ok := s.flags[id]
	return v, ok
}

func (s *Store) Region(id int64) (Region, bool) {
	v, ok := s.regions[id]
	return v, ok
}

func (s *Store) SolarSystem(id int64) (SolarSystem, bool) {
	v, ok := s.solarSystems[id]
	return v, ok
}

func sortedValues[T any](m map[int64]T) []T {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

// Export returns every table ordered by ID, for bulk loading into the
// relational store.
func (s *Store) Export() Tables {
	return Tables{
		ItemTypes:    sortedValues(s.itemTypes),
		Groups:       sortedValues(s.groups),
		Categories:   sortedValues(s.categories),
		Flags:        sortedValues(s.flags),
		Regions:      sortedValues(s.regions),
		SolarSystems: sortedValues(s.solarSystems),
	}
}

type Counts struct {
	ItemTypes    int
	Groups       int
	Categories   int
	Flags        int
	Regions      int
	SolarSystems int
}

func (s *Store) Counts() Counts {
	return Counts{
		ItemTypes:    len(s.itemTypes),
		Groups:       len(s.groups),
		Categories:   len(s.categories),
		Flags:        len(s.flags),
		Regions:      len(s.regions),
		SolarSystems: len(s.solarSystems),
	}
}
