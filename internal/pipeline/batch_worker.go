// Package pipeline implements the durable batcher's drain side: one
// BatchWorker per stream polls its queue.Queue and coalesces jobs into
// fixed-size batches under a dual size/time trigger, generalizing the
// teacher's channel-draining DBWriter.Run loop to poll an external,
// crash-surviving queue instead of an in-memory channel.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/rahullalw/smart-ev-analytics/internal/metrics"
	"github.com/rahullalw/smart-ev-analytics/internal/queue"
)

// Writer executes the transactional dual write for one batch. Returning
// an error leaves the batch's jobs unacked; the queue redelivers them.
type Writer interface {
	WriteBatch(ctx context.Context, payloads [][]byte) error
}

// Config tunes one BatchWorker instance.
type Config struct {
	Stream      string
	BatchSize   int64         // B: size trigger
	FlushEvery  time.Duration // T: time trigger
	PollEvery   time.Duration // how often the loop checks depth; bounds size-trigger latency
	ReclaimIdle time.Duration // minimum pending age before a job is considered abandoned
	MaxAttempts int64         // attempts before a job is dead-lettered
}

// BatchWorker is single-flight by construction: Run is one sequential
// loop, so a new batch is never assembled until the previous one's
// transaction has returned. One BatchWorker is constructed per stream
// in cmd/ingestor; running two instances against the same queue would
// break the unconditional-overwrite safety argument the hot-state
// upsert relies on (see internal/store.MeterWriter and VehicleWriter).
type BatchWorker struct {
	cfg    Config
	queue  queue.Queue
	writer Writer
	log    *slog.Logger
	m      *metrics.IngestionMetrics

	lastFlush time.Time
}

func NewBatchWorker(cfg Config, q queue.Queue, w Writer, log *slog.Logger, m *metrics.IngestionMetrics) *BatchWorker {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 100 * time.Millisecond
	}
	if cfg.ReclaimIdle <= 0 {
		cfg.ReclaimIdle = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &BatchWorker{cfg: cfg, queue: q, writer: w, log: log, m: m, lastFlush: time.Now()}
}

// Run blocks until ctx is cancelled. On cancellation it drains and
// flushes whatever is currently queued before returning, per the
// graceful-shutdown contract: adapters stop first, the worker finishes
// its current batch, then exits.
func (w *BatchWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainOnShutdown()
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *BatchWorker) tick(ctx context.Context) {
	depth, err := w.queue.Depth(ctx)
	if err != nil {
		w.log.Error("queue depth check failed", "stream", w.cfg.Stream, "error", err)
		return
	}
	w.m.QueueDepth.WithLabelValues(w.cfg.Stream).Set(float64(depth))

	sizeTriggered := depth >= w.cfg.BatchSize
	timeTriggered := depth > 0 && time.Since(w.lastFlush) >= w.cfg.FlushEvery
	if sizeTriggered || timeTriggered {
		w.flush(ctx)
	}

	reclaimed, deadLettered, err := w.queue.Reclaim(ctx, w.cfg.ReclaimIdle, w.cfg.MaxAttempts)
	if err != nil {
		w.log.Error("reclaim failed", "stream", w.cfg.Stream, "error", err)
		return
	}
	if len(reclaimed) > 0 {
		w.log.Info("reclaimed abandoned jobs, retrying", "stream", w.cfg.Stream, "count", len(reclaimed))
		payloads := make([][]byte, len(reclaimed))
		for i, j := range reclaimed {
			payloads[i] = j.Payload
		}
		if err := w.writer.WriteBatch(ctx, payloads); err != nil {
			w.m.BatchFailures.WithLabelValues(w.cfg.Stream).Inc()
			w.log.Error("retry of reclaimed jobs failed, jobs remain pending", "stream", w.cfg.Stream, "batch_size", len(reclaimed), "error", err)
		} else if err := w.queue.Ack(ctx, reclaimed); err != nil {
			w.log.Error("ack failed after successful retry", "stream", w.cfg.Stream, "error", err)
		}
	}
	if deadLettered > 0 {
		w.m.DeadLettered.WithLabelValues(w.cfg.Stream).Add(float64(deadLettered))
		w.log.Warn("jobs exceeded max attempts", "stream", w.cfg.Stream, "count", deadLettered)
	}
}

func (w *BatchWorker) flush(ctx context.Context) {
	jobs, err := w.queue.Poll(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("poll failed", "stream", w.cfg.Stream, "error", err)
		return
	}
	w.lastFlush = time.Now()
	if len(jobs) == 0 {
		return
	}

	payloads := make([][]byte, len(jobs))
	for i, j := range jobs {
		payloads[i] = j.Payload
	}

	start := time.Now()
	err = w.writer.WriteBatch(ctx, payloads)
	w.m.BatchDuration.WithLabelValues(w.cfg.Stream).Observe(time.Since(start).Seconds())
	if err != nil {
		w.m.BatchFailures.WithLabelValues(w.cfg.Stream).Inc()
		w.log.Error("batch write failed, jobs remain queued for retry", "stream", w.cfg.Stream, "batch_size", len(jobs), "error", err)
		return
	}

	w.m.BatchSize.WithLabelValues(w.cfg.Stream).Observe(float64(len(jobs)))
	if err := w.queue.Ack(ctx, jobs); err != nil {
		w.log.Error("ack failed after successful write", "stream", w.cfg.Stream, "error", err)
	}
}

func (w *BatchWorker) drainOnShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		depth, err := w.queue.Depth(ctx)
		if err != nil || depth == 0 {
			return
		}
		w.flush(ctx)
	}
}
