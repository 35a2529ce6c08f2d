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

	"github.com/cardinalhq/killrunner/cmd/dbopen"
	"github.com/cardinalhq/killrunner/config"
	"github.com/cardinalhq/killrunner/internal/refdata"
	"github.com/cardinalhq/killrunner/kmdb"
)

var referenceDir string

func init() {
	loadReferenceCmd.Flags().StringVar(&referenceDir, "dir", "", "Directory holding the reference CSVs (default reference.dir)")
	rootCmd.AddCommand(loadReferenceCmd)
}

var loadReferenceCmd = &cobra.Command{
	Use:   "load-reference",
	Short: "Load item, flag and map reference CSVs into the database",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		doneCtx, doneFx, err := setupTelemetry(config.ServiceNameTool, cfg)
		if err != nil {
			return err
		}
		defer shutdownTelemetry(doneFx)
		return loadReference(doneCtx, cfg)
	},
}

func loadReference(ctx context.Context, cfg *config.Config) error {
	dir := referenceDir
	if dir == "" {
		dir = cfg.Reference.Dir
	}
	ref, err := refdata.Load(dir)
	if err != nil {
		return fmt.Errorf("failed to read reference data: %w", err)
	}
	c := ref.Counts()
	slog.Info("Read reference data",
		slog.String("dir", dir),
		slog.Int("itemTypes", c.ItemTypes),
		slog.Int("flags", c.Flags),
		slog.Int("solarSystems", c.SolarSystems))

	store, err := dbopen.KillDBStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.LoadReference(ctx, ref.Export())
	if err != nil {
		return fmt.Errorf("failed to load reference tables: %w", err)
	}
	logReferenceCounts(counts)
	return nil
}

func logReferenceCounts(c kmdb.ReferenceCountsRow) {
	slog.Info("Reference tables loaded",
		slog.Int64("itemTypes", c.ItemTypes),
		slog.Int64("groups", c.Groups),
		slog.Int64("categories", c.Categories),
		slog.Int64("flags", c.Flags),
		slog.Int64("regions", c.Regions),
		slog.Int64("solarSystems", c.SolarSystems))
}
