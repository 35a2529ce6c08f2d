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

package consumer

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	itemCounter       metric.Int64Counter
	durationHistogram metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/killrunner/internal/consumer")

	var err error
	itemCounter, err = meter.Int64Counter(
		"killrunner.consumer.items",
		metric.WithDescription("Queue items handled by outcome"),
	)
	if err != nil {
		panic(err)
	}

	durationHistogram, err = meter.Float64Histogram(
		"killrunner.consumer.duration",
		metric.WithDescription("Time spent on one claimed item"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
}
