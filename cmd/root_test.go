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

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/killrunner/config"
)

func useDataDir(t *testing.T, configJSON string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	if configJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(configJSON), 0o644))
	}
	old := dataDirFlag
	dataDirFlag = dir
	t.Cleanup(func() { dataDirFlag = old })
	return dir
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"produce", "consume", "reap", "queue", "migrate", "load-reference", "setup"}
	var got []string
	for _, c := range rootCmd.Commands() {
		got = append(got, c.Name())
	}
	for _, name := range want {
		assert.Contains(t, got, name)
	}
}

func TestLoadConfigFromDataDir(t *testing.T) {
	dir := useDataDir(t, `{"redis_queue_name": "q1", "regions": [10000002]}`)

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "q1", cfg.FeedQueueID)
	assert.Equal(t, filepath.Join(dir, "queue"), cfg.QueueDir)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	useDataDir(t, `{"consumer": {"claim_attempts": 0}}`)

	_, err := loadConfig()
	assert.ErrorContains(t, err, "claim_attempts")
}

func TestQueueStatus(t *testing.T) {
	dir := useDataDir(t, "")

	_, q, err := openQueue(mustConfig(t))
	require.NoError(t, err)
	_, err = q.Enqueue(t.Context(), []byte(`{"killID":1,"hash":"a"}`))
	require.NoError(t, err)
	_, err = q.Enqueue(t.Context(), []byte(`{"killID":2,"hash":"b"}`))
	require.NoError(t, err)
	_, err = q.Claim(t.Context())
	require.NoError(t, err)

	var out bytes.Buffer
	queueStatusCmd.SetOut(&out)
	queueStatusCmd.SetContext(t.Context())
	require.NoError(t, queueStatusCmd.RunE(queueStatusCmd, nil))

	assert.Contains(t, out.String(), filepath.Join(dir, "queue"))
	assert.Contains(t, out.String(), "pending: 1\n")
	assert.Contains(t, out.String(), "claimed: 1\n")
	assert.Contains(t, out.String(), "oldest claim:")
	assert.Contains(t, out.String(), "dead:    0\n")
}

func mustConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := loadConfig()
	require.NoError(t, err)
	return cfg
}
