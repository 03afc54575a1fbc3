package intake

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahullalw/smart-ev-analytics/internal/broker"
	"github.com/rahullalw/smart-ev-analytics/internal/domain"
	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
)

type recordingQueue struct {
	mu       sync.Mutex
	enqueued [][]byte
	failNext bool
}

func (q *recordingQueue) Enqueue(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext {
		q.failNext = false
		return assert.AnError
	}
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func (q *recordingQueue) Poll(_ context.Context, _ int64) ([]queue.Job, error) { return nil, nil }
func (q *recordingQueue) Ack(_ context.Context, _ []queue.Job) error           { return nil }
func (q *recordingQueue) Reclaim(_ context.Context, _ time.Duration, _ int64) ([]queue.Job, int, error) {
	return nil, 0, nil
}
func (q *recordingQueue) Depth(_ context.Context) (int64, error) { return 0, nil }

func newDelivery(data []byte) (broker.Delivery, *bool, *bool) {
	acked := new(bool)
	nacked := new(bool)
	return broker.Delivery{
		Data: data,
		Ack:  func() { *acked = true },
		Nack: func() { *nacked = true },
	}, acked, nacked
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleMeter_ValidSampleIsEnqueuedAndAcked(t *testing.T) {
	meterQueue := &recordingQueue{}
	vehicleQueue := &recordingQueue{}
	a := New(nil, meterQueue, vehicleQueue, testLogger(), metrics.NewIngestionMetrics("test_handle_meter_valid"))

	body, err := json.Marshal(map[string]any{
		"meterId":       "meter-1",
		"kwhConsumedAc": 12.5,
		"voltage":       230.0,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
	require.NoError(t, err)

	d, acked, nacked := newDelivery(body)
	a.handleMeter(context.Background(), d)

	assert.True(t, *acked)
	assert.False(t, *nacked)
	require.Len(t, meterQueue.enqueued, 1)

	var sample domain.MeterSample
	require.NoError(t, json.Unmarshal(meterQueue.enqueued[0], &sample))
	assert.Equal(t, "meter-1", sample.MeterID)
}

func TestHandleMeter_MalformedJSONIsDroppedAndAcked(t *testing.T) {
	meterQueue := &recordingQueue{}
	vehicleQueue := &recordingQueue{}
	a := New(nil, meterQueue, vehicleQueue, testLogger(), metrics.NewIngestionMetrics("test_handle_meter_malformed"))

	d, acked, nacked := newDelivery([]byte("not json"))
	a.handleMeter(context.Background(), d)

	assert.True(t, *acked)
	assert.False(t, *nacked)
	assert.Empty(t, meterQueue.enqueued)
}

func TestHandleMeter_OutOfRangeValidationIsDroppedAndAcked(t *testing.T) {
	meterQueue := &recordingQueue{}
	vehicleQueue := &recordingQueue{}
	a := New(nil, meterQueue, vehicleQueue, testLogger(), metrics.NewIngestionMetrics("test_handle_meter_invalid"))

	body, err := json.Marshal(map[string]any{
		"meterId":       "meter-1",
		"kwhConsumedAc": -5.0,
		"voltage":       230.0,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
	require.NoError(t, err)

	d, acked, nacked := newDelivery(body)
	a.handleMeter(context.Background(), d)

	assert.True(t, *acked)
	assert.False(t, *nacked)
	assert.Empty(t, meterQueue.enqueued)
}

func TestHandleVehicle_EnqueueFailureNacksInsteadOfAcking(t *testing.T) {
	meterQueue := &recordingQueue{}
	vehicleQueue := &recordingQueue{failNext: true}
	a := New(nil, meterQueue, vehicleQueue, testLogger(), metrics.NewIngestionMetrics("test_handle_vehicle_enqueue_fail"))

	body, err := json.Marshal(map[string]any{
		"vehicleId":      "vehicle-1",
		"soc":            55.0,
		"kwhDeliveredDc": 3.2,
		"batteryTemp":    28.0,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
	require.NoError(t, err)

	d, acked, nacked := newDelivery(body)
	a.handleVehicle(context.Background(), d)

	assert.False(t, *acked)
	assert.True(t, *nacked)
	assert.Empty(t, vehicleQueue.enqueued)
}
