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
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/killrunner/config"
	"github.com/cardinalhq/killrunner/internal/spool"
)

func init() {
	queueCmd.AddCommand(queueStatusCmd)
	rootCmd.AddCommand(queueCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the durable queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Count pending, claimed and dead-lettered items",
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openQueueStore(cfg)
		if err != nil {
			return err
		}
		st, err := store.Stats(c.Context())
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		out := c.OutOrStdout()
		fmt.Fprintf(out, "queue:   %s\n", store.Dir())
		fmt.Fprintf(out, "pending: %d\n", st.Pending)
		fmt.Fprintf(out, "claimed: %d\n", st.Claimed)
		if !st.OldestClaim.IsZero() {
			fmt.Fprintf(out, "oldest claim: %s (%s ago)\n",
				st.OldestClaim.UTC().Format(time.RFC3339), time.Since(st.OldestClaim).Truncate(time.Second))
		}
		fmt.Fprintf(out, "dead:    %d\n", st.Dead)
		return nil
	},
}

func openQueueStore(cfg *config.Config) (*spool.DirStore, error) {
	store, err := spool.NewDirStore(cfg.QueueDir, spool.WithDeadLetterDir(cfg.DeadLetterDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open queue directory: %w", err)
	}
	return store, nil
}

// openQueue returns the queue over cfg.QueueDir, claiming as
// cfg.ConsumerID.
func openQueue(cfg *config.Config) (*spool.DirStore, *spool.Queue, error) {
	store, err := openQueueStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	q, err := spool.New(store,
		spool.WithConsumerID(cfg.ConsumerID),
		spool.WithLogger(slog.Default()),
		spool.WithClaimBackoff(cfg.Consumer.ClaimAttempts, cfg.Consumer.ClaimBackoff),
		spool.WithRenameRetryDelay(cfg.Consumer.RenameRetryDelay),
	)
	if err != nil {
		return nil, nil, err
	}
	return store, q, nil
}
