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
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/killrunner/cmd/dbopen"
	"github.com/cardinalhq/killrunner/config"
	"github.com/cardinalhq/killrunner/internal/consumer"
	"github.com/cardinalhq/killrunner/internal/esi"
	"github.com/cardinalhq/killrunner/internal/healthcheck"
	"github.com/cardinalhq/killrunner/internal/ingest"
	"github.com/cardinalhq/killrunner/internal/normalize"
	"github.com/cardinalhq/killrunner/internal/refdata"
	"github.com/cardinalhq/killrunner/internal/spool"
	"github.com/cardinalhq/killrunner/kmdb"
)

func init() {
	rootCmd.AddCommand(consumeCmd)
}

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Claim queued notifications and record matching killmails",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateConsumer(); err != nil {
			return err
		}
		return runConsumer(cfg)
	},
}

func runConsumer(cfg *config.Config) error {
	doneCtx, doneFx, err := setupTelemetry(config.ServiceNameConsumer, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(doneFx)

	ref, err := refdata.Load(cfg.Reference.Dir)
	if err != nil {
		return fmt.Errorf("failed to load reference data: %w", err)
	}
	reportRegions(ref, cfg.Regions)

	store, err := dbopen.KillDBStore(doneCtx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := ensureReference(doneCtx, store, ref); err != nil {
		return err
	}

	dirStore, queue, err := openQueue(cfg)
	if err != nil {
		return err
	}
	fetcher, err := esi.NewClient(esi.ClientConfig{
		URL:       cfg.ESI.URL,
		Timeout:   cfg.ESI.Timeout,
		UserAgent: cfg.UserAgent,
	})
	if err != nil {
		return err
	}

	driver := consumer.NewDriver(queue, fetcher, normalize.New(ref, cfg.Regions), ingest.NewEngine(store), consumer.Config{
		IdleSleep:         cfg.Consumer.IdleSleep,
		RetrySleep:        cfg.Consumer.RetrySleep,
		KeepAliveInterval: cfg.Consumer.KeepAliveInterval,
		RecentTTL:         cfg.Consumer.RecentTTL,
	})
	health := healthcheck.NewServer(healthcheck.Config{
		Port:       cfg.Health.Port,
		StaleAfter: 3 * (max(cfg.Consumer.IdleSleep, cfg.Consumer.RetrySleep) + cfg.ESI.Timeout),
	})
	driver.OnStep(func(consumer.Outcome) { health.Beat() })

	slog.Info("Starting queue consumer",
		slog.String("consumerID", cfg.ConsumerID),
		slog.String("queueDir", cfg.QueueDir),
		slog.Any("regions", cfg.Regions))

	g, ctx := errgroup.WithContext(doneCtx)
	g.Go(func() error {
		return health.Start(ctx)
	})
	if cfg.Consumer.ReapInterval > 0 {
		reaper := spool.NewReaper(dirStore, cfg.Consumer.ClaimTTL, slog.Default())
		g.Go(func() error {
			return reaper.Run(ctx, cfg.Consumer.ReapInterval)
		})
	}
	g.Go(func() error {
		health.Beat()
		health.SetStatus(healthcheck.StatusHealthy)
		health.SetReadyCondition("database", true)
		err := driver.Run(ctx)
		health.SetStatus(healthcheck.StatusUnhealthy)
		if err != nil {
			return fmt.Errorf("consumer stopped: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// reportRegions warns about configured regions missing from the reference
// data; killmails there can never be attributed to them.
func reportRegions(ref *refdata.Store, regions []int64) {
	for _, id := range regions {
		if r, ok := ref.Region(id); ok {
			slog.Info("Region of interest", slog.Int64("regionID", id), slog.String("name", r.Name))
		} else {
			slog.Warn("Region of interest not found in reference data", slog.Int64("regionID", id))
		}
	}
}

// ensureReference loads the lookup tables when the database has none yet.
func ensureReference(ctx context.Context, store *kmdb.Store, ref *refdata.Store) error {
	counts, err := store.ReferenceCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count reference rows: %w", err)
	}
	if counts.ItemTypes > 0 && counts.Flags > 0 && counts.SolarSystems > 0 {
		return nil
	}
	slog.Info("Reference tables are empty, loading them")
	counts, err = store.LoadReference(ctx, ref.Export())
	if err != nil {
		return fmt.Errorf("failed to load reference tables: %w", err)
	}
	logReferenceCounts(counts)
	return nil
}
