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

package dbopen

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/killrunner/kmdb"
	"github.com/cardinalhq/killrunner/kmdb/migrations"
)

// ConnectToKillDB opens a pool and, unless opts say otherwise, waits until
// the schema is at the version this binary was built for.
func ConnectToKillDB(ctx context.Context, dbPath string, opts ...Options) (*pgxpool.Pool, error) {
	connectionString, err := DatabaseURL(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get KILLDB connection string: %w", err)
	}

	pool, err := kmdb.NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	var checkOpts []migrations.CheckOption
	for _, o := range opts {
		checkOpts = append(checkOpts, o.MigrationCheckOptions...)
	}
	if err := migrations.CheckExpectedVersion(ctx, pool, checkOpts...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("KILLDB migration version check failed: %w", err)
	}
	return pool, nil
}

func KillDBStore(ctx context.Context, dbPath string, opts ...Options) (*kmdb.Store, error) {
	pool, err := ConnectToKillDB(ctx, dbPath, opts...)
	if err != nil {
		return nil, err
	}
	return kmdb.NewStore(pool), nil
}
