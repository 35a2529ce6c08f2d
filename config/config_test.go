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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "queue"), cfg.QueueDir)
	assert.Equal(t, filepath.Join(dir, "queue", "dead"), cfg.DeadLetterDir)
	assert.Equal(t, filepath.Join(dir, "zkill.log"), cfg.LogFile)
	assert.Equal(t, dir, cfg.Reference.Dir)
	assert.Equal(t, 10*time.Second, cfg.Consumer.IdleSleep)
	assert.Equal(t, 3, cfg.Consumer.ClaimAttempts)
	assert.Equal(t, 8090, cfg.Health.Port)
	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Contains(t, cfg.ConsumerID, strings.TrimLeft(host, "."))
	assert.True(t, strings.HasSuffix(cfg.ConsumerID, "-"+strconv.Itoa(os.Getpid())))
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateProducer())
	assert.Error(t, cfg.ValidateConsumer())
}

func TestLoadConfigFileWithLegacyKeys(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, `{
		"redis_queue_name": "my-queue",
		"regions": [10000002, 10000043],
		"db_fname": "postgres://localhost/kills",
		"consumer": {"idle_sleep": "2s"}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "my-queue", cfg.FeedQueueID)
	assert.Equal(t, []int64{10000002, 10000043}, cfg.Regions)
	assert.Equal(t, "postgres://localhost/kills", cfg.DBPath)
	assert.Equal(t, 2*time.Second, cfg.Consumer.IdleSleep)
	assert.Equal(t, 10*time.Second, cfg.Consumer.RetrySleep)
	assert.NoError(t, cfg.ValidateProducer())
	assert.NoError(t, cfg.ValidateConsumer())
}

func TestLoadRejectsLegacySQLiteFilename(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, `{"db_fname": "zkill.db"}`)

	_, err := Load(dir)
	assert.ErrorContains(t, err, "db_fname")
	assert.ErrorContains(t, err, "zkill.db")
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, `{"feed_queue_id": "from-file"}`)
	t.Setenv("KILLRUNNER_FEED_QUEUE_ID", "from-env")
	t.Setenv("KILLRUNNER_REGIONS", "10000002, 10000043")
	t.Setenv("KILLRUNNER_CONSUMER_CLAIM_TTL", "30m")
	t.Setenv("KILLRUNNER_CONSUMER_ID", "worker-7")
	t.Setenv("HEALTH_CHECK_PORT", "9999")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.FeedQueueID)
	assert.Equal(t, []int64{10000002, 10000043}, cfg.Regions)
	assert.Equal(t, 30*time.Minute, cfg.Consumer.ClaimTTL)
	assert.Equal(t, "worker-7", cfg.ConsumerID)
	assert.Equal(t, 9999, cfg.Health.Port)
}

func TestLoadRejectsBadRegions(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("KILLRUNNER_REGIONS", "10000002,forge")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "forge")
}

func TestLoadRejectsBrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, `{"regions": [`)

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.QueueDir = "/tmp/q"
	require.NoError(t, cfg.Validate())

	cfg.Consumer.ClaimAttempts = 0
	cfg.Consumer.KeepAliveInterval = time.Hour
	err := cfg.Validate()
	assert.ErrorContains(t, err, "claim_attempts")
	assert.ErrorContains(t, err, "keepalive_interval")
}

func TestResolveDataDir(t *testing.T) {
	flagDir := t.TempDir()
	envDir := t.TempDir()
	t.Setenv("KILLRUNNER_DATA_DIR", envDir)

	got, err := ResolveDataDir(flagDir)
	require.NoError(t, err)
	assert.Equal(t, flagDir, got)

	got, err = ResolveDataDir("")
	require.NoError(t, err)
	assert.Equal(t, envDir, got)

	_, err = ResolveDataDir(filepath.Join(flagDir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
