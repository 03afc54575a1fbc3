// Package queue defines the durable, per-stream job queue that
// decouples the intake adapter from the batch writer.
package queue

import (
	"context"
	"time"
)

// Job is one unit of work sitting in a stream's queue: the raw,
// already-validated payload plus the bookkeeping the queue needs to
// redeliver or dead-letter it.
type Job struct {
	ID       string
	Payload  []byte
	Attempts int64
}

// Queue is the port the intake adapter enqueues onto and the batch
// worker polls from. One Queue instance serves exactly one stream.
type Queue interface {
	// Enqueue durably records payload and returns once the write is
	// acknowledged by the backing store.
	Enqueue(ctx context.Context, payload []byte) error

	// Poll returns up to maxJobs jobs that are not already owned by
	// another consumer. It may return fewer than maxJobs, including
	// zero, without error.
	Poll(ctx context.Context, maxJobs int64) ([]Job, error)

	// Ack permanently removes the given jobs from the pending set.
	// Call it only after their batch has committed.
	Ack(ctx context.Context, jobs []Job) error

	// Reclaim re-delivers jobs that have been pending longer than
	// minIdle without being acked — i.e. a previous consumer died or
	// its transaction rolled back. Jobs whose attempt count exceeds
	// maxAttempts are moved to the dead-letter partition instead of
	// being returned; deadLettered reports how many that was.
	Reclaim(ctx context.Context, minIdle time.Duration, maxAttempts int64) (reclaimed []Job, deadLettered int, err error)

	// Depth reports the number of jobs not yet acked, for the size
	// trigger and for metrics.
	Depth(ctx context.Context) (int64, error)
}
