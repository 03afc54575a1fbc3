package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
)

// FleetSnapshot returns the N most-recently-updated vehicle state
// rows, each left-joined to the meter state of its currently active
// session. Purely a hot-store read; no history access.
func (d *DB) FleetSnapshot(ctx context.Context, limit int) ([]domain.FleetSnapshotRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := d.Pool.Query(ctx, `
		SELECT
			v.vehicle_id, v.soc_percent, v.kwh_delivered_dc, v.battery_temp_c, v.last_updated_at,
			m.meter_id, m.kwh_consumed_ac, m.voltage_v, m.last_updated_at
		FROM vehicle_state v
		LEFT JOIN vehicle_sessions s ON s.vehicle_id = v.vehicle_id AND s.active
		LEFT JOIN meter_state m ON m.meter_id = s.meter_id
		ORDER BY v.last_updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fleet snapshot query: %w", err)
	}
	defer rows.Close()

	var out []domain.FleetSnapshotRow
	for rows.Next() {
		var r domain.FleetSnapshotRow
		var vehicleID uuid.UUID
		var meterID *uuid.UUID
		if err := rows.Scan(
			&vehicleID, &r.SoCPercent, &r.KwhDeliveredDC, &r.BatteryTempC, &r.VehicleUpdatedAt,
			&meterID, &r.KwhConsumedAC, &r.VoltageV, &r.MeterUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan fleet snapshot row: %w", err)
		}
		r.VehicleID = vehicleID.String()
		if meterID != nil {
			s := meterID.String()
			r.MeterID = &s
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
