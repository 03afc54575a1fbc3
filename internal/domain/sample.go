package domain

import (
	"fmt"
	"time"
)

// Stream names the two independent device classes the intake adapter
// subscribes to. Each has its own durable queue and its own writer.
type Stream string

const (
	StreamMeter   Stream = "meter"
	StreamVehicle Stream = "vehicle"
)

// MeterSample is one reading from an AC smart meter: cumulative
// grid-side energy and line voltage.
type MeterSample struct {
	MeterID         string
	KwhConsumedAC   float64
	VoltageV        float64
	RecordedAt      time.Time
	IngestedAt      time.Time
}

// Validate enforces the range invariants of the wire contract. It does
// not mutate the sample; callers still drop it on error.
func (s MeterSample) Validate() error {
	if s.MeterID == "" {
		return fmt.Errorf("%w: missing meterId", ErrInvalidSample)
	}
	if s.KwhConsumedAC < 0 {
		return fmt.Errorf("%w: kwhConsumedAc %.3f is negative", ErrInvalidSample, s.KwhConsumedAC)
	}
	if s.VoltageV < 0 || s.VoltageV > 500 {
		return fmt.Errorf("%w: voltage %.2f out of range [0,500]", ErrInvalidSample, s.VoltageV)
	}
	if s.RecordedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	return nil
}

// VehicleSample is one reading from a vehicle: state of charge,
// battery-side cumulative energy delivered, and battery temperature.
type VehicleSample struct {
	VehicleID     string
	SoCPercent    float64
	KwhDeliveredDC float64
	BatteryTempC  float64
	RecordedAt    time.Time
	IngestedAt    time.Time
}

func (s VehicleSample) Validate() error {
	if s.VehicleID == "" {
		return fmt.Errorf("%w: missing vehicleId", ErrInvalidSample)
	}
	if s.SoCPercent < 0 || s.SoCPercent > 100 {
		return fmt.Errorf("%w: soc %.2f out of range [0,100]", ErrInvalidSample, s.SoCPercent)
	}
	if s.KwhDeliveredDC < 0 {
		return fmt.Errorf("%w: kwhDeliveredDc %.3f is negative", ErrInvalidSample, s.KwhDeliveredDC)
	}
	if s.BatteryTempC < -40 || s.BatteryTempC > 80 {
		return fmt.Errorf("%w: batteryTemp %.2f out of range [-40,80]", ErrInvalidSample, s.BatteryTempC)
	}
	if s.RecordedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	return nil
}

// DedupMeterSamples keeps, for each meter id, the sample with the
// largest RecordedAt. Ties are broken by last-seen-in-slice, which is
// deterministic given a fixed input order (see §4.3 of the writer
// contract: "ties broken arbitrarily but deterministically").
func DedupMeterSamples(batch []MeterSample) []MeterSample {
	latest := make(map[string]MeterSample, len(batch))
	for _, s := range batch {
		cur, ok := latest[s.MeterID]
		if !ok || !s.RecordedAt.Before(cur.RecordedAt) {
			latest[s.MeterID] = s
		}
	}
	out := make([]MeterSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out
}

// DedupVehicleSamples is the vehicle-stream counterpart of
// DedupMeterSamples.
func DedupVehicleSamples(batch []VehicleSample) []VehicleSample {
	latest := make(map[string]VehicleSample, len(batch))
	for _, s := range batch {
		cur, ok := latest[s.VehicleID]
		if !ok || !s.RecordedAt.Before(cur.RecordedAt) {
			latest[s.VehicleID] = s
		}
	}
	out := make([]VehicleSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out
}
