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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/killrunner/config"
)

var skipMigrate bool
var skipReference bool

func init() {
	SetupCmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "Skip database migrations")
	SetupCmd.Flags().BoolVar(&skipReference, "skip-reference", false, "Skip loading reference tables")
	SetupCmd.Flags().StringVar(&referenceDir, "dir", "", "Directory holding the reference CSVs (default reference.dir)")

	rootCmd.AddCommand(SetupCmd)
}

var SetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Migrate the database and load reference tables",
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

		slog.Info("Starting killrunner setup")
		if !skipMigrate {
			if err := migrateKillDB(doneCtx, cfg); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
		} else {
			slog.Info("Skipping database migrations")
		}

		if !skipReference {
			if err := loadReference(doneCtx, cfg); err != nil {
				return fmt.Errorf("reference load failed: %w", err)
			}
		} else {
			slog.Info("Skipping reference load")
		}

		slog.Info("Killrunner setup completed successfully")
		return nil
	},
}
