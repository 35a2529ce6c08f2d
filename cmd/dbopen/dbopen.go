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
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// EnvPrefix names the environment variables describing the killmail database.
const EnvPrefix = "KILLDB"

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// DatabaseURL returns dbPath when it is set, and otherwise builds a
// PostgreSQL URL from KILLDB_URL or the KILLDB_HOST, KILLDB_PORT,
// KILLDB_USER, KILLDB_PASSWORD, KILLDB_DBNAME and KILLDB_SSLMODE variables.
func DatabaseURL(dbPath string) (string, error) {
	if dbPath != "" {
		return withApplicationName(dbPath)
	}
	return databaseURLFromEnv(EnvPrefix)
}

func databaseURLFromEnv(prefix string) (string, error) {
	env := func(name string) string { return os.Getenv(prefix + "_" + name) }

	if s := env("URL"); s != "" {
		return withApplicationName(s)
	}

	host, dbname := env("HOST"), env("DBNAME")
	var missing []string
	if host == "" {
		missing = append(missing, prefix+"_HOST")
	}
	if dbname == "" {
		missing = append(missing, prefix+"_DBNAME")
	}
	if len(missing) > 0 {
		return "", errors.Join(ErrDatabaseNotConfigured,
			fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", ")))
	}

	port := env("PORT")
	if port == "" {
		port = "5432"
	}
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host + ":" + port,
		Path:   dbname,
	}
	if user := env("USER"); user != "" {
		if pass := env("PASSWORD"); pass != "" {
			u.User = url.UserPassword(user, pass)
		} else {
			u.User = url.User(user)
		}
	}
	if sslmode := env("SSLMODE"); sslmode != "" {
		q := u.Query()
		q.Set("sslmode", sslmode)
		u.RawQuery = q.Encode()
	}
	return withApplicationName(u.String())
}

// withApplicationName tags URL-form connection strings with
// OTEL_SERVICE_NAME so sessions are identifiable in pg_stat_activity.
func withApplicationName(conn string) (string, error) {
	appName := os.Getenv("OTEL_SERVICE_NAME")
	if appName == "" || !strings.Contains(conn, "://") {
		return conn, nil
	}
	u, err := url.Parse(conn)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	q := u.Query()
	if q.Get("application_name") != "" {
		return conn, nil
	}
	appName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, appName)
	if len(appName) > 63 {
		appName = appName[:63]
	}
	q.Set("application_name", appName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
