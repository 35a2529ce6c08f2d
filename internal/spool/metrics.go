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

package spool

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("github.com/cardinalhq/killrunner/internal/spool")

	claimCounter  metric.Int64Counter
	reapedCounter metric.Int64Counter
)

func init() {
	var err error
	claimCounter, err = meter.Int64Counter(
		"killrunner.queue.claims",
		metric.WithDescription("Claim attempts by result (claimed, empty, contested)"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create queue.claims counter: %w", err))
	}

	reapedCounter, err = meter.Int64Counter(
		"killrunner.queue.reaped",
		metric.WithDescription("Stale claims returned to the queue by the reaper"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create queue.reaped counter: %w", err))
	}
}
