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
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates configuration for the application.
type Config struct {
	DataDir string `mapstructure:"-"`

	FeedQueueID   string  `mapstructure:"feed_queue_id"`
	Regions       []int64 `mapstructure:"regions"`
	DBPath        string  `mapstructure:"db_path"`
	QueueDir      string  `mapstructure:"queue_dir"`
	DeadLetterDir string  `mapstructure:"dead_letter_dir"`
	LogFile       string  `mapstructure:"log_file"`
	ConsumerID    string  `mapstructure:"consumer_id"`
	UserAgent     string  `mapstructure:"user_agent"`

	Feed      FeedConfig      `mapstructure:"feed"`
	ESI       ESIConfig       `mapstructure:"esi"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Reference ReferenceConfig `mapstructure:"reference"`
	Health    HealthConfig    `mapstructure:"health"`
}

type FeedConfig struct {
	URL          string        `mapstructure:"url"`
	WaitSeconds  int           `mapstructure:"wait_seconds"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
}

type ESIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ConsumerConfig struct {
	IdleSleep         time.Duration `mapstructure:"idle_sleep"`
	RetrySleep        time.Duration `mapstructure:"retry_sleep"`
	ClaimAttempts     int           `mapstructure:"claim_attempts"`
	ClaimBackoff      time.Duration `mapstructure:"claim_backoff"`
	RenameRetryDelay  time.Duration `mapstructure:"rename_retry_delay"`
	ClaimTTL          time.Duration `mapstructure:"claim_ttl"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
	ReapInterval      time.Duration `mapstructure:"reap_interval"`
	RecentTTL         time.Duration `mapstructure:"recent_ttl"`
}

type ReferenceConfig struct {
	Dir string `mapstructure:"dir"`
}

type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// LogFileDisabled as log_file turns off the log file.
const LogFileDisabled = "-"

// Default returns the configuration used when nothing overrides it. Paths
// that depend on the data directory are filled in by Load.
func Default() *Config {
	return &Config{
		UserAgent: "killrunner/1.0",
		Feed: FeedConfig{
			URL:          "https://zkillredisq.stream/listen.php",
			WaitSeconds:  10,
			Timeout:      30 * time.Second,
			ErrorBackoff: 10 * time.Second,
		},
		ESI: ESIConfig{
			URL:     "https://esi.evetech.net/latest",
			Timeout: 15 * time.Second,
		},
		Consumer: ConsumerConfig{
			IdleSleep:         10 * time.Second,
			RetrySleep:        10 * time.Second,
			ClaimAttempts:     3,
			ClaimBackoff:      200 * time.Millisecond,
			RenameRetryDelay:  50 * time.Millisecond,
			ClaimTTL:          15 * time.Minute,
			KeepAliveInterval: time.Minute,
			ReapInterval:      5 * time.Minute,
			RecentTTL:         time.Hour,
		},
		Health: HealthConfig{Port: 8090},
	}
}

// Load reads config.json from dataDir (or the working directory) and then
// environment variables. Environment variables use the prefix "KILLRUNNER"
// and the dot character in keys is replaced by an underscore. For example,
// "consumer.idle_sleep" becomes "KILLRUNNER_CONSUMER_IDLE_SLEEP".
//
// The key names used by earlier deployments, redis_queue_name and
// db_fname, are accepted as aliases. A db_fname that is not a PostgreSQL
// connection string, such as an old SQLite filename, is an error.
func Load(dataDir string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	if dataDir != "" {
		v.AddConfigPath(dataDir)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("KILLRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.BindEnv("health.port", "KILLRUNNER_HEALTH_PORT", "HEALTH_CHECK_PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	legacyDB := v.IsSet("db_fname")
	v.RegisterAlias("redis_queue_name", "feed_queue_id")
	v.RegisterAlias("db_fname", "db_path")

	if s, ok := v.Get("regions").(string); ok {
		regions, err := parseRegions(s)
		if err != nil {
			return nil, err
		}
		v.Set("regions", regions)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if legacyDB && !isPostgresDSN(cfg.DBPath) {
		return nil, fmt.Errorf("db_fname %q is not a PostgreSQL connection string; set db_path to a postgres:// URL", cfg.DBPath)
	}
	cfg.DataDir = dataDir
	cfg.fillPaths()
	return cfg, nil
}

func (c *Config) fillPaths() {
	if c.QueueDir == "" {
		c.QueueDir = filepath.Join(c.DataDir, "queue")
	}
	if c.DeadLetterDir == "" {
		c.DeadLetterDir = filepath.Join(c.QueueDir, "dead")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "zkill.log")
	}
	if c.Reference.Dir == "" {
		c.Reference.Dir = c.DataDir
	}
	if c.ConsumerID == "" {
		c.ConsumerID = defaultConsumerID()
	}
}

// defaultConsumerID is unique across hosts sharing a queue directory, where
// containers often all run as the same pid.
func defaultConsumerID() string {
	pid := strconv.Itoa(os.Getpid())
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "pid" + pid
	}
	host = strings.NewReplacer("/", "_", `\`, "_", ".processing-", "_processing-").Replace(host)
	host = strings.TrimLeft(host, ".")
	if host == "" {
		return "pid" + pid
	}
	return host + "-" + pid
}

// isPostgresDSN accepts URL and keyword/value connection strings.
func isPostgresDSN(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") || strings.Contains(s, "=")
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.QueueDir == "" {
		errs = append(errs, errors.New("queue_dir is empty"))
	}
	if c.Feed.WaitSeconds < 0 {
		errs = append(errs, errors.New("feed.wait_seconds must not be negative"))
	}
	if c.Consumer.ClaimAttempts < 1 {
		errs = append(errs, errors.New("consumer.claim_attempts must be at least 1"))
	}
	if c.Consumer.ClaimTTL <= 0 {
		errs = append(errs, errors.New("consumer.claim_ttl must be positive"))
	}
	if c.Consumer.KeepAliveInterval > 0 && c.Consumer.KeepAliveInterval >= c.Consumer.ClaimTTL {
		errs = append(errs, fmt.Errorf("consumer.keepalive_interval %s must be shorter than consumer.claim_ttl %s",
			c.Consumer.KeepAliveInterval, c.Consumer.ClaimTTL))
	}
	return errors.Join(errs...)
}

// ValidateProducer checks the settings the feed producer needs.
func (c *Config) ValidateProducer() error {
	if c.FeedQueueID == "" {
		return errors.New("feed_queue_id is not set")
	}
	return nil
}

// ValidateConsumer checks the settings the queue consumer needs.
func (c *Config) ValidateConsumer() error {
	if len(c.Regions) == 0 {
		return errors.New("regions is empty; refusing to ingest without a region of interest")
	}
	return nil
}

func parseRegions(s string) ([]int64, error) {
	var regions []int64
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid region id %q: %w", f, err)
		}
		regions = append(regions, id)
	}
	return regions, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
