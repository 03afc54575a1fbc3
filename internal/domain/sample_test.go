package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterSample_Validate(t *testing.T) {
	base := MeterSample{
		MeterID:       "meter-1",
		KwhConsumedAC: 10.5,
		VoltageV:      230,
		RecordedAt:    time.Now(),
	}

	cases := []struct {
		name    string
		mutate  func(s *MeterSample)
		wantErr bool
	}{
		{"valid", func(s *MeterSample) {}, false},
		{"empty meter id", func(s *MeterSample) { s.MeterID = "" }, true},
		{"negative kwh", func(s *MeterSample) { s.KwhConsumedAC = -1 }, true},
		{"voltage below range", func(s *MeterSample) { s.VoltageV = -1 }, true},
		{"voltage above range", func(s *MeterSample) { s.VoltageV = 501 }, true},
		{"zero recorded at", func(s *MeterSample) { s.RecordedAt = time.Time{} }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidSample)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestVehicleSample_Validate(t *testing.T) {
	base := VehicleSample{
		VehicleID:      "vehicle-1",
		SoCPercent:     50,
		KwhDeliveredDC: 5,
		BatteryTempC:   25,
		RecordedAt:     time.Now(),
	}

	cases := []struct {
		name    string
		mutate  func(s *VehicleSample)
		wantErr bool
	}{
		{"valid", func(s *VehicleSample) {}, false},
		{"soc below range", func(s *VehicleSample) { s.SoCPercent = -0.1 }, true},
		{"soc above range", func(s *VehicleSample) { s.SoCPercent = 100.1 }, true},
		{"negative dc delivered", func(s *VehicleSample) { s.KwhDeliveredDC = -1 }, true},
		{"temp below range", func(s *VehicleSample) { s.BatteryTempC = -41 }, true},
		{"temp above range", func(s *VehicleSample) { s.BatteryTempC = 81 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDedupMeterSamples_LastRecordedWins(t *testing.T) {
	now := time.Now()
	older := MeterSample{MeterID: "m1", KwhConsumedAC: 1, RecordedAt: now.Add(-time.Minute)}
	newer := MeterSample{MeterID: "m1", KwhConsumedAC: 2, RecordedAt: now}
	other := MeterSample{MeterID: "m2", KwhConsumedAC: 9, RecordedAt: now}

	deduped := DedupMeterSamples([]MeterSample{older, newer, other})

	require.Len(t, deduped, 2)

	byID := make(map[string]MeterSample, len(deduped))
	for _, s := range deduped {
		byID[s.MeterID] = s
	}
	assert.Equal(t, 2.0, byID["m1"].KwhConsumedAC)
	assert.Equal(t, 9.0, byID["m2"].KwhConsumedAC)
}

func TestDedupVehicleSamples_LastRecordedWins(t *testing.T) {
	now := time.Now()
	a := VehicleSample{VehicleID: "v1", SoCPercent: 10, RecordedAt: now}
	b := VehicleSample{VehicleID: "v1", SoCPercent: 20, RecordedAt: now.Add(time.Second)}

	deduped := DedupVehicleSamples([]VehicleSample{a, b})

	require.Len(t, deduped, 1)
	assert.Equal(t, 20.0, deduped[0].SoCPercent)
}
