package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
)

// fakeQueue is an in-memory queue.Queue used to drive BatchWorker
// without Redis.
type fakeQueue struct {
	mu      sync.Mutex
	pending []queue.Job
	nextID  int
	acked   int
}

func (q *fakeQueue) Enqueue(_ context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.pending = append(q.pending, queue.Job{ID: strconv.Itoa(q.nextID), Payload: payload})
	return nil
}

func (q *fakeQueue) Poll(_ context.Context, maxJobs int64) ([]queue.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int64(len(q.pending))
	if n > maxJobs {
		n = maxJobs
	}
	out := q.pending[:n]
	q.pending = q.pending[n:]
	return out, nil
}

func (q *fakeQueue) Ack(_ context.Context, jobs []queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked += len(jobs)
	return nil
}

func (q *fakeQueue) Reclaim(_ context.Context, _ time.Duration, _ int64) ([]queue.Job, int, error) {
	return nil, 0, nil
}

func (q *fakeQueue) Depth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

// fakeWriter records every batch it was asked to write.
type fakeWriter struct {
	mu      sync.Mutex
	batches [][][]byte
	err     error
}

func (w *fakeWriter) WriteBatch(_ context.Context, payloads [][]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, payloads)
	return nil
}

func (w *fakeWriter) batchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBatchWorker_SizeTriggerFlushesWithoutWaitingForTimer(t *testing.T) {
	q := &fakeQueue{}
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), []byte("x")))
	}
	w := &fakeWriter{}

	worker := NewBatchWorker(Config{
		Stream:     "meter",
		BatchSize:  3,
		FlushEvery: time.Hour, // far in the future — only size should trigger
		PollEvery:  5 * time.Millisecond,
	}, q, w, testLogger(), metrics.NewIngestionMetrics("test_size_trigger"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	// Checked before cancellation: the shutdown drain would flush the
	// jobs too, whichever trigger fired.
	assert.Eventually(t, func() bool { return w.batchCount() >= 1 }, 200*time.Millisecond, 5*time.Millisecond)
	cancel()
	<-done
}

func TestBatchWorker_TimeTriggerFlushesBelowBatchSize(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, q.Enqueue(context.Background(), []byte("x")))
	w := &fakeWriter{}

	worker := NewBatchWorker(Config{
		Stream:     "vehicle",
		BatchSize:  1000, // never reached
		FlushEvery: 20 * time.Millisecond,
		PollEvery:  5 * time.Millisecond,
	}, q, w, testLogger(), metrics.NewIngestionMetrics("test_time_trigger"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	// Checked before cancellation: the shutdown drain would flush the
	// job too, whichever trigger fired.
	assert.Eventually(t, func() bool { return w.batchCount() >= 1 }, 200*time.Millisecond, 5*time.Millisecond)
	cancel()
	<-done
}

func TestBatchWorker_FailedWriteLeavesJobsUnacked(t *testing.T) {
	q := &fakeQueue{}
	require.NoError(t, q.Enqueue(context.Background(), []byte("x")))
	w := &fakeWriter{err: errors.New("boom")}

	worker := NewBatchWorker(Config{
		Stream:     "meter",
		BatchSize:  1,
		FlushEvery: time.Hour,
		PollEvery:  5 * time.Millisecond,
	}, q, w, testLogger(), metrics.NewIngestionMetrics("test_failed_write"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	assert.Equal(t, 0, w.batchCount())
	q.mu.Lock()
	acked := q.acked
	q.mu.Unlock()
	assert.Equal(t, 0, acked, "a failed write must not ack its jobs")
	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth, "flush drains the queue via Poll even when the write fails; the job is not re-enqueued by this fake, mirroring that Ack is simply never called")
}

func TestBatchWorker_DrainsOnShutdown(t *testing.T) {
	q := &fakeQueue{}
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), []byte("x")))
	}
	w := &fakeWriter{}

	worker := NewBatchWorker(Config{
		Stream:     "meter",
		BatchSize:  1000, // never size-triggers
		FlushEvery: time.Hour,
		PollEvery:  5 * time.Millisecond,
	}, q, w, testLogger(), metrics.NewIngestionMetrics("test_drain_on_shutdown"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	worker.Run(ctx)

	depth, err := q.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
	assert.GreaterOrEqual(t, w.batchCount(), 1)
}
