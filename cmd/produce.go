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
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/killrunner/config"
	"github.com/cardinalhq/killrunner/internal/healthcheck"
	"github.com/cardinalhq/killrunner/internal/redisq"
)

func init() {
	rootCmd.AddCommand(produceCmd)
}

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Long-poll the RedisQ feed and queue every notification",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateProducer(); err != nil {
			return err
		}
		return runProducer(cfg)
	},
}

func runProducer(cfg *config.Config) error {
	doneCtx, doneFx, err := setupTelemetry(config.ServiceNameProducer, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(doneFx)

	_, queue, err := openQueue(cfg)
	if err != nil {
		return err
	}
	client, err := redisq.NewClient(redisq.ClientConfig{
		URL:         cfg.Feed.URL,
		QueueID:     cfg.FeedQueueID,
		WaitSeconds: cfg.Feed.WaitSeconds,
		Timeout:     cfg.Feed.Timeout,
		UserAgent:   cfg.UserAgent,
	})
	if err != nil {
		return err
	}

	health := healthcheck.NewServer(healthcheck.Config{
		Port:       cfg.Health.Port,
		StaleAfter: 3 * (cfg.Feed.Timeout + cfg.Feed.ErrorBackoff),
	})
	producer := redisq.NewProducer(client, queue,
		redisq.WithErrorBackoff(cfg.Feed.ErrorBackoff),
		redisq.WithProducerLogger(slog.Default()),
		redisq.WithPollHook(health.Beat),
	)

	slog.Info("Starting feed producer",
		slog.String("feedQueueID", cfg.FeedQueueID),
		slog.String("queueDir", cfg.QueueDir))

	g, ctx := errgroup.WithContext(doneCtx)
	g.Go(func() error {
		return health.Start(ctx)
	})
	g.Go(func() error {
		health.Beat()
		health.SetStatus(healthcheck.StatusHealthy)
		err := producer.Run(ctx)
		health.SetStatus(healthcheck.StatusUnhealthy)
		return err
	})
	return g.Wait()
}
