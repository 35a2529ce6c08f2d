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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/killrunner/internal/refdata"
	"github.com/cardinalhq/killrunner/kmdb"
	kmdbmigrations "github.com/cardinalhq/killrunner/kmdb/migrations"
)

func connString(host, port, user, password, dbName string) string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   dbName,
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
		u.RawQuery = "sslmode=disable"
	} else if user != "" {
		u.User = url.User(user)
	}
	return u.String()
}

// SetupTestKillDB creates a clean, migrated killmail database for one test
// and drops it when the test ends. The test is skipped when KILLDB_HOST is
// unset.
func SetupTestKillDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	host := os.Getenv("KILLDB_HOST")
	if host == "" {
		t.Skip("KILLDB_HOST not set; skipping database test")
	}

	ctx := context.Background()
	dbName := fmt.Sprintf("test_kmdb_%d_%d", time.Now().Unix(), rand.IntN(10000))

	port := getEnvOrDefault("KILLDB_PORT", "5432")
	user := getEnvOrDefault("KILLDB_USER", os.Getenv("USER"))
	password := os.Getenv("KILLDB_PASSWORD")
	baseDB := getEnvOrDefault("KILLDB_DBNAME", "testing_kmdb")

	basePool, err := pgxpool.New(ctx, connString(host, port, user, password, baseDB))
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	testPool, err := kmdb.NewConnectionPool(ctx, connString(host, port, user, password, dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()
		if _, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)); err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	if err := kmdbmigrations.RunMigrationsUp(ctx, testPool); err != nil {
		t.Fatalf("Failed to run kmdb migrations: %v", err)
	}

	return testPool
}

// NewTestKillDBStore is SetupTestKillDB wrapped in a Store.
func NewTestKillDBStore(t *testing.T) *kmdb.Store {
	t.Helper()
	return kmdb.NewStore(SetupTestKillDB(t))
}

// ReferenceTables is a small consistent reference dataset: two regions with
// one solar system each, a ship, two items and two flags.
func ReferenceTables() refdata.Tables {
	return refdata.Tables{
		Categories: []refdata.Category{{ID: 6, Name: "Ship"}, {ID: 4, Name: "Material"}},
		Groups:     []refdata.Group{{ID: 25, CategoryID: 6, Name: "Frigate"}, {ID: 18, CategoryID: 4, Name: "Mineral"}},
		ItemTypes: []refdata.ItemType{
			{ID: 587, GroupID: 25, Name: "Rifter"},
			{ID: 34, GroupID: 18, Name: "Tritanium"},
			{ID: 2881, Name: "Light Missile Launcher"},
		},
		Flags:        []refdata.Flag{{ID: 5, Name: "Cargo", Text: "Cargo"}, {ID: 27, Name: "HiSlot0", Text: "High power slot 1"}},
		Regions:      []refdata.Region{{ID: 10000002, Name: "The Forge"}, {ID: 10000043, Name: "Domain"}},
		SolarSystems: []refdata.SolarSystem{{ID: 30000142, RegionID: 10000002, Name: "Jita"}, {ID: 30002187, RegionID: 10000043, Name: "Amarr"}},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
