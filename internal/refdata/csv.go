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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// table is one reference CSV and how to turn a row into a record.
type table[T any] struct {
	file     string
	optional bool
	minCols  int
	parse    func(row []string) (int64, T, error)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// parseOptionalID maps blanks and placeholders like "None" to 0.
func parseOptionalID(s string) int64 {
	v, err := parseID(s)
	if err != nil {
		return 0
	}
	return v
}

func (t table[T]) load(dir string) (map[int64]T, error) {
	f, err := os.Open(filepath.Join(dir, t.file))
	if err != nil {
		if t.optional && errors.Is(err, os.ErrNotExist) {
			return map[int64]T{}, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", t.file, err)
	}
	defer func() { _ = f.Close() }()
	return t.read(f)
}

func (t table[T]) read(r io.Reader) (map[int64]T, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s is empty", t.file)
		}
		return nil, fmt.Errorf("failed to read %s header: %w", t.file, err)
	}

	out := make(map[int64]T)
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", t.file, line, err)
		}
		if len(row) < t.minCols {
			return nil, fmt.Errorf("%s line %d: want at least %d columns, got %d", t.file, line, t.minCols, len(row))
		}
		id, rec, err := t.parse(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", t.file, line, err)
		}
		out[id] = rec
	}
	return out, nil
}

var itemTypesTable = table[ItemType]{
	file:    "invTypes.csv",
	minCols: 4,
	parse: func(row []string) (int64, ItemType, error) {
		id, err := parseID(row[0])
		if err != nil {
			return 0, ItemType{}, fmt.Errorf("bad type id %q: %w", row[0], err)
		}
		return id, ItemType{ID: id, GroupID: parseOptionalID(row[1]), Name: row[2], Description: row[3]}, nil
	},
}

var groupsTable = table[Group]{
	file:     "invGroups.csv",
	optional: true,
	minCols:  3,
	parse: func(row []string) (int64, Group, error) {
		id, err := parseID(row[0])
		if err != nil {
			return 0, Group{}, fmt.Errorf("bad group id %q: %w", row[0], err)
		}
		return id, Group{ID: id, CategoryID: parseOptionalID(row[1]), Name: row[2]}, nil
	},
}

var categoriesTable = table[Category]{
	file:     "invCategories.csv",
	optional: true,
	minCols:  2,
	parse: func(row []string) (int64, Category, error) {
		id, err := parseID(row[0])
		if err != nil {
			return 0, Category{}, fmt.Errorf("bad category id %q: %w", row[0], err)
		}
		return id, Category{ID: id, Name: row[1]}, nil
	},
}

var flagsTable = table[Flag]{
	file:    "invFlags.csv",
	minCols: 3,
	parse: func(row []string) (int64, Flag, error) {
		id, err := parseID(row[0])
		if err != nil {
			return 0, Flag{}, fmt.Errorf("bad flag id %q: %w", row[0], err)
		}
		return id, Flag{ID: id, Name: row[1], Text: row[2]}, nil
	},
}

var regionsTable = table[Region]{
	file:    "mapRegions.csv",
	minCols: 2,
	parse: func(row []string) (int64, Region, error) {
		id, err := parseID(row[0])
		if err != nil {
			return 0, Region{}, fmt.Errorf("bad region id %q: %w", row[0], err)
		}
		return id, Region{ID: id, Name: row[1]}, nil
	},
}

// mapSolarSystems.csv leads with regionID, then constellationID, then the system.
var solarSystemsTable = table[SolarSystem]{
	file:    "mapSolarSystems.csv",
	minCols: 4,
	parse: func(row []string) (int64, SolarSystem, error) {
		regionID, err := parseID(row[0])
		if err != nil {
			return 0, SolarSystem{}, fmt.Errorf("bad region id %q: %w", row[0], err)
		}
		id, err := parseID(row[2])
		if err != nil {
			return 0, SolarSystem{}, fmt.Errorf("bad solar system id %q: %w", row[2], err)
		}
		return id, SolarSystem{ID: id, RegionID: regionID, Name: row[3]}, nil
	},
}
