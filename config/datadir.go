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

package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ContainerDataDir is where container images mount the data volume.
const ContainerDataDir = "/app/ZKillQueryData"

// ResolveDataDir picks the data directory: flag, then KILLRUNNER_DATA_DIR,
// then ContainerDataDir when it exists, then ZKillQueryData under the home
// directory. The chosen directory must exist.
func ResolveDataDir(flag string) (string, error) {
	dir := flag
	if dir == "" {
		dir = os.Getenv("KILLRUNNER_DATA_DIR")
	}
	if dir == "" {
		if isDir(ContainerDataDir) {
			dir = ContainerDataDir
		} else if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, "ZKillQueryData")
		}
	}
	if dir == "" {
		return "", errors.New("cannot determine data directory; set --data-dir or KILLRUNNER_DATA_DIR")
	}
	if !isDir(dir) {
		return "", &os.PathError{Op: "open data directory", Path: dir, Err: os.ErrNotExist}
	}
	return filepath.Clean(dir), nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
