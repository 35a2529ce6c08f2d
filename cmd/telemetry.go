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
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/killrunner/config"
	"github.com/cardinalhq/killrunner/internal/idgen"
)

var (
	commonAttributes attribute.Set

	meter = otel.Meter("github.com/cardinalhq/killrunner")

	myInstanceID string

	// existsGauge is set to 1 and never changes, so dashboards can count
	// running processes.
	// nolint:unused
	existsGauge metric.Int64Gauge
)

// setupTelemetry installs the default logger, writing to stdout and to
// cfg.LogFile, plus OTLP export when enabled. The returned context is
// cancelled on SIGINT or SIGTERM; call the returned function before exit.
func setupTelemetry(servicename string, cfg *config.Config) (context.Context, func() error, error) {
	myInstanceID = idgen.InstanceID()

	doneCtx, doneCancel := handleSignals(context.Background())

	commonAttributes = attribute.NewSet(
		attribute.String("instanceID", myInstanceID),
		attribute.String("consumerID", cfg.ConsumerID),
	)

	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("KILLRUNNER_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stdout, opts)}

	var logFile *os.File
	if cfg.LogFile != "" && cfg.LogFile != config.LogFileDisabled {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			doneCancel()
			return doneCtx, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		handlers = append(handlers, slog.NewTextHandler(f, opts))
	}

	otlp := os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true"
	if otlp {
		handlers = append(handlers, otelslog.NewHandler(servicename))
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)).With(
		slog.String("service", servicename),
		slog.String("instanceID", myInstanceID),
	))

	otelShutdown := func(context.Context) error { return nil }
	if otlp {
		slog.Info("OpenTelemetry exporting enabled")
		shutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			doneCancel()
			return doneCtx, nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}
		otelShutdown = shutdown

		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(time.Second * 10)); err != nil {
			slog.Warn("failed to start runtime metrics", "error", err.Error())
		}
		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", "error", err.Error())
		}
	}

	setupGlobalMetrics()

	f := func() error {
		defer doneCancel()
		if otlp {
			slog.Info("Shutting down OpenTelemetry SDK")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := otelShutdown(ctx)
		if logFile != nil {
			_ = logFile.Close()
		}
		return err
	}
	return doneCtx, f, nil
}

func setupGlobalMetrics() {
	mg, err := meter.Int64Gauge(
		"killrunner.exists",
		metric.WithDescription("Indicates if the service is running (1) or not (0)"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create exists.gauge: %w", err))
	}
	existsGauge = mg
	mg.Record(context.Background(), 1, metric.WithAttributeSet(commonAttributes))
}

// shutdownTelemetry runs fn and logs its failure; for use in defer.
func shutdownTelemetry(fn func() error) {
	if err := fn(); err != nil {
		slog.Error("Error shutting down telemetry", slog.Any("error", err))
	}
}
