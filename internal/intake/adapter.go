// Package intake adapts broker deliveries into validated domain
// samples and hands them to the durable queue, generalizing the
// teacher's Dispatcher drop-and-count idiom from an in-memory channel
// select/default to a queue.Enqueue call whose error is the
// backpressure signal.
package intake

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/broker"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
)

// meterWire mirrors the §6 wire payload for telemetry/meter/<meterId>.
type meterWire struct {
	MeterID       string  `json:"meterId"`
	KwhConsumedAc float64 `json:"kwhConsumedAc"`
	Voltage       float64 `json:"voltage"`
	Timestamp     string  `json:"timestamp"`
}

// vehicleWire mirrors the §6 wire payload for telemetry/vehicle/<vehicleId>.
type vehicleWire struct {
	VehicleID     string  `json:"vehicleId"`
	SoC           float64 `json:"soc"`
	KwhDeliveredDc float64 `json:"kwhDeliveredDc"`
	BatteryTemp   float64 `json:"batteryTemp"`
	Timestamp     string  `json:"timestamp"`
}

// Adapter subscribes to the two broker topic patterns and enqueues
// valid samples onto their stream's durable queue. It is stateless and
// safe to run as multiple horizontally-scaled instances.
type Adapter struct {
	broker      broker.Broker
	meterQueue  queue.Queue
	vehicleQueue queue.Queue
	log         *slog.Logger
	m           *metrics.IngestionMetrics
}

func New(b broker.Broker, meterQueue, vehicleQueue queue.Queue, log *slog.Logger, m *metrics.IngestionMetrics) *Adapter {
	return &Adapter{broker: b, meterQueue: meterQueue, vehicleQueue: vehicleQueue, log: log, m: m}
}

// Run subscribes to both topic patterns. It blocks until ctx is
// cancelled or a subscribe call fails.
func (a *Adapter) Run(ctx context.Context, meterPattern, vehiclePattern string) error {
	if err := a.broker.Subscribe(ctx, meterPattern, a.handleMeter); err != nil {
		return err
	}
	if err := a.broker.Subscribe(ctx, vehiclePattern, a.handleVehicle); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *Adapter) handleMeter(ctx context.Context, d broker.Delivery) {
	a.m.SamplesReceived.WithLabelValues(string(domain.StreamMeter)).Inc()

	var w meterWire
	if err := json.Unmarshal(d.Data, &w); err != nil {
		a.drop(d, domain.StreamMeter, "malformed_json", err)
		return
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		a.drop(d, domain.StreamMeter, "bad_timestamp", err)
		return
	}

	sample := domain.MeterSample{
		MeterID:       w.MeterID,
		KwhConsumedAC: w.KwhConsumedAc,
		VoltageV:      w.Voltage,
		RecordedAt:    ts,
		IngestedAt:    time.Now().UTC(),
	}
	if err := sample.Validate(); err != nil {
		a.drop(d, domain.StreamMeter, "validation", err)
		return
	}

	payload, _ := json.Marshal(sample)
	if err := a.meterQueue.Enqueue(ctx, payload); err != nil {
		a.m.EnqueueFailures.WithLabelValues(string(domain.StreamMeter)).Inc()
		a.log.Warn("enqueue failed, nacking for broker redelivery", "stream", "meter", "error", err)
		d.Nack()
		return
	}
	d.Ack()
}

func (a *Adapter) handleVehicle(ctx context.Context, d broker.Delivery) {
	a.m.SamplesReceived.WithLabelValues(string(domain.StreamVehicle)).Inc()

	var w vehicleWire
	if err := json.Unmarshal(d.Data, &w); err != nil {
		a.drop(d, domain.StreamVehicle, "malformed_json", err)
		return
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		a.drop(d, domain.StreamVehicle, "bad_timestamp", err)
		return
	}

	sample := domain.VehicleSample{
		VehicleID:      w.VehicleID,
		SoCPercent:     w.SoC,
		KwhDeliveredDC: w.KwhDeliveredDc,
		BatteryTempC:   w.BatteryTemp,
		RecordedAt:     ts,
		IngestedAt:     time.Now().UTC(),
	}
	if err := sample.Validate(); err != nil {
		a.drop(d, domain.StreamVehicle, "validation", err)
		return
	}

	payload, _ := json.Marshal(sample)
	if err := a.vehicleQueue.Enqueue(ctx, payload); err != nil {
		a.m.EnqueueFailures.WithLabelValues(string(domain.StreamVehicle)).Inc()
		a.log.Warn("enqueue failed, nacking for broker redelivery", "stream", "vehicle", "error", err)
		d.Nack()
		return
	}
	d.Ack()
}

// drop acks the delivery (the broker's job is done; this payload will
// never be valid on redelivery) and counts it toward the
// dropped-invalid metric, per §4.1: parsing/validation failures are
// logged and dropped, not retried.
func (a *Adapter) drop(d broker.Delivery, stream domain.Stream, reason string, err error) {
	a.m.SamplesDropped.WithLabelValues(string(stream), reason).Inc()
	a.log.Warn("dropping invalid sample", "stream", stream, "reason", reason, "error", err)
	d.Ack()
}
