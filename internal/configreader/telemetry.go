// Copyright (C) 2025-2026 CardinalHQ, Inc
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

package configreader

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	refreshCounter metric.Int64Counter
	lookupCounter  metric.Int64Counter
	recordsGauge   metric.Int64Gauge
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/liveconfig/internal/configreader")

	var err error
	refreshCounter, err = meter.Int64Counter(
		"liveconfig.reader.refresh",
		metric.WithDescription("Refresh cycles run, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create refresh counter: %w", err))
	}

	lookupCounter, err = meter.Int64Counter(
		"liveconfig.reader.lookups",
		metric.WithDescription("Value lookups, by the snapshot that answered them"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create lookup counter: %w", err))
	}

	recordsGauge, err = meter.Int64Gauge(
		"liveconfig.reader.records",
		metric.WithDescription("Records in the active snapshot after the latest successful refresh"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records gauge: %w", err))
	}
}
