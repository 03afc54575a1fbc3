// Package analytics computes the correlated AC->DC efficiency metric
// that is this system's reason for existing: the single aggregator
// operation fuses the meter and vehicle history tables through the
// session mapping.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
)

// DefaultWindow is the trailing window the spec fixes for the default
// implementation; exposed as a constructor parameter so tests can use
// shorter windows.
const DefaultWindow = 24 * time.Hour

type Aggregator struct {
	pool   *pgxpool.Pool
	window time.Duration
}

func NewAggregator(pool *pgxpool.Pool, window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Aggregator{pool: pool, window: window}
}

// Performance computes totalAcConsumption, totalDcDelivery,
// efficiencyRatio, avgBatteryTemp, and dataPoints for vehicleID over
// the trailing window ending at "now".
//
// The AC and DC aggregates are computed as two independent subqueries
// combined by a single-row cross product — joining meter_history to
// vehicle_history directly would cartesian-blow-up on the partitioned
// tables, since neither table shares a row-level key with the other;
// the session mapping is the only correlation available, and it is
// applied inside the AC subquery, not as a post-join filter.
func (a *Aggregator) Performance(ctx context.Context, vehicleID uuid.UUID, now time.Time) (domain.PerformanceReport, error) {
	windowEnd := now
	windowStart := now.Add(-a.window)

	const query = `
		WITH ac AS (
			SELECT max(h.kwh_consumed_ac) - min(h.kwh_consumed_ac) AS ac_delta
			FROM meter_history h
			JOIN vehicle_sessions s ON s.meter_id = h.meter_id
			WHERE s.vehicle_id = $1
			  AND s.mapped_at <= $3
			  AND (s.unmapped_at IS NULL OR s.unmapped_at >= $2)
			  AND h.recorded_at BETWEEN $2 AND $3
		),
		dc AS (
			SELECT
				max(kwh_delivered_dc) - min(kwh_delivered_dc) AS dc_delta,
				avg(battery_temp_c) AS avg_temp,
				count(*) AS data_points
			FROM vehicle_history
			WHERE vehicle_id = $1 AND recorded_at BETWEEN $2 AND $3
		)
		SELECT coalesce(ac.ac_delta, 0), dc.dc_delta, dc.avg_temp, dc.data_points
		FROM ac, dc
	`

	row := a.pool.QueryRow(ctx, query, vehicleID, windowStart, windowEnd)

	var report domain.PerformanceReport
	var dcDelta, avgTemp *float64
	var dataPoints *int64
	if err := row.Scan(&report.TotalAcConsumption, &dcDelta, &avgTemp, &dataPoints); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PerformanceReport{}, fmt.Errorf("%w: no data for vehicle %s", domain.ErrNotFound, vehicleID)
		}
		return domain.PerformanceReport{}, fmt.Errorf("analytics: performance query: %w", err)
	}

	if dataPoints == nil || *dataPoints == 0 {
		return domain.PerformanceReport{}, fmt.Errorf("%w: no dc samples for vehicle %s in window", domain.ErrNotFound, vehicleID)
	}

	report.VehicleID = vehicleID.String()
	report.WindowStart = windowStart
	report.WindowEnd = windowEnd
	report.DataPoints = *dataPoints
	if dcDelta != nil {
		report.TotalDcDelivery = *dcDelta
	}
	if avgTemp != nil {
		report.AvgBatteryTempC = *avgTemp
	}
	report.EfficiencyRatio = domain.EfficiencyRatio(report.TotalAcConsumption, report.TotalDcDelivery)

	return report, nil
}
