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

	"github.com/cardinalhq/killrunner/config"
	"github.com/cardinalhq/killrunner/internal/spool"
)

func init() {
	rootCmd.AddCommand(reapCmd)
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Return claims older than consumer.claim_ttl to the queue",
	Long: `Rename every claimed item whose claimed-at time is older than consumer.claim_ttl
back to its queue name, so a consumer that died mid-item does not strand it.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		doneCtx, doneFx, err := setupTelemetry(config.ServiceNameReaper, cfg)
		if err != nil {
			return err
		}
		defer shutdownTelemetry(doneFx)

		store, err := openQueueStore(cfg)
		if err != nil {
			return err
		}
		n, err := spool.NewReaper(store, cfg.Consumer.ClaimTTL, slog.Default()).ReapOnce(doneCtx)
		slog.Info("Reap complete", slog.Int("requeued", n), slog.Duration("claimTTL", cfg.Consumer.ClaimTTL))
		return err
	},
}
