// Package redisqueue implements internal/queue.Queue on top of Redis
// Streams. Each stream ("meter", "vehicle") gets one Redis Stream key
// and one consumer group ("writer"); XADD enqueues, XREADGROUP polls,
// XACK commits, and XPENDING/XCLAIM drive redelivery and
// dead-lettering. This repurposes the teacher's only Redis dependency
// (previously a per-vehicle state cache) into the persistent store the
// job queue needs.
package redisqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rahullalw/smart-ev-analytics/internal/queue"
)

const payloadField = "payload"

// StreamQueue is a queue.Queue backed by one Redis Stream + consumer
// group. It is not safe to share a single Consumer name across
// multiple BatchWorker instances for the same stream — single-flight
// is enforced by running exactly one StreamQueue/BatchWorker pair per
// stream (see internal/pipeline.BatchWorker).
type StreamQueue struct {
	client    *redis.Client
	streamKey string
	deadKey   string
	group     string
	consumer  string
	log       *slog.Logger
}

func New(ctx context.Context, client *redis.Client, stream, group, consumer string, log *slog.Logger) (*StreamQueue, error) {
	q := &StreamQueue{
		client:    client,
		streamKey: "queue:" + stream,
		deadKey:   "queue:" + stream + ":dead",
		group:     group,
		consumer:  consumer,
		log:       log,
	}

	err := client.XGroupCreateMkStream(ctx, q.streamKey, group, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("redisqueue: create group %q on %q: %w", group, q.streamKey, err)
	}
	return q, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

func (q *StreamQueue) Enqueue(ctx context.Context, payload []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamKey,
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redisqueue: xadd %q: %w", q.streamKey, err)
	}
	return nil
}

// Poll reads only new entries (ID ">", never delivered to the group;
// pending unacked entries come back through Reclaim) and never blocks: the
// size/time trigger in BatchWorker already decides when to drain, so a
// blocking read here would stall the worker — and the reclaim loop
// that redelivers/dead-letters a failed batch's still-pending entries
// — whenever the stream is briefly caught up with no new messages.
func (q *StreamQueue) Poll(ctx context.Context, maxJobs int64) ([]queue.Job, error) {
	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.streamKey, ">"},
		Count:    maxJobs,
		Block:    -1,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redisqueue: xreadgroup %q: %w", q.streamKey, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return toJobs(res[0].Messages, 1), nil
}

func toJobs(msgs []redis.XMessage, attempts int64) []queue.Job {
	jobs := make([]queue.Job, 0, len(msgs))
	for _, m := range msgs {
		payload, _ := m.Values[payloadField].(string)
		jobs = append(jobs, queue.Job{ID: m.ID, Payload: []byte(payload), Attempts: attempts})
	}
	return jobs
}

// Ack commits the jobs and deletes them from the stream. Streams
// retain acked entries indefinitely otherwise; since this queue is a
// work queue, not a replay log, deleting on ack keeps Depth meaningful
// and bounds stream memory.
func (q *StreamQueue) Ack(ctx context.Context, jobs []queue.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	if err := q.client.XAck(ctx, q.streamKey, q.group, ids...).Err(); err != nil {
		return fmt.Errorf("redisqueue: xack %q: %w", q.streamKey, err)
	}
	if err := q.client.XDel(ctx, q.streamKey, ids...).Err(); err != nil {
		return fmt.Errorf("redisqueue: xdel %q: %w", q.streamKey, err)
	}
	return nil
}

func (q *StreamQueue) Reclaim(ctx context.Context, minIdle time.Duration, maxAttempts int64) ([]queue.Job, int, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.streamKey,
		Group:  q.group,
		Start:  "-",
		End:    "+",
		Count:  1000,
		Idle:   minIdle,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("redisqueue: xpending %q: %w", q.streamKey, err)
	}
	if len(pending) == 0 {
		return nil, 0, nil
	}

	var claimable, dead []string
	deadAttempts := make(map[string]int64, len(pending))
	for _, p := range pending {
		if p.RetryCount >= maxAttempts {
			dead = append(dead, p.ID)
		} else {
			claimable = append(claimable, p.ID)
			deadAttempts[p.ID] = p.RetryCount + 1
		}
	}

	if len(dead) > 0 {
		if err := q.deadLetter(ctx, dead); err != nil {
			return nil, 0, err
		}
	}
	if len(claimable) == 0 {
		return nil, len(dead), nil
	}

	msgs, err := q.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   q.streamKey,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  minIdle,
		Messages: claimable,
	}).Result()
	if err != nil {
		return nil, len(dead), fmt.Errorf("redisqueue: xclaim %q: %w", q.streamKey, err)
	}

	jobs := make([]queue.Job, 0, len(msgs))
	for _, m := range msgs {
		payload, _ := m.Values[payloadField].(string)
		jobs = append(jobs, queue.Job{ID: m.ID, Payload: []byte(payload), Attempts: deadAttempts[m.ID]})
	}
	return jobs, len(dead), nil
}

// deadLetter copies the named entries into the stream's dead-letter
// partition and acks (removes) them from the live stream.
func (q *StreamQueue) deadLetter(ctx context.Context, ids []string) error {
	for _, id := range ids {
		vals, err := q.client.XRange(ctx, q.streamKey, id, id).Result()
		if err != nil {
			return fmt.Errorf("redisqueue: xrange %q %q: %w", q.streamKey, id, err)
		}
		if len(vals) == 1 {
			if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.deadKey, Values: vals[0].Values}).Err(); err != nil {
				return fmt.Errorf("redisqueue: dead-letter xadd %q: %w", q.deadKey, err)
			}
			q.log.Warn("job moved to dead-letter partition", "stream", q.streamKey, "job_id", id)
		}
	}
	if err := q.client.XAck(ctx, q.streamKey, q.group, ids...).Err(); err != nil {
		return fmt.Errorf("redisqueue: xack dead-lettered %q: %w", q.streamKey, err)
	}
	return q.client.XDel(ctx, q.streamKey, ids...).Err()
}

func (q *StreamQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.XLen(ctx, q.streamKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redisqueue: xlen %q: %w", q.streamKey, err)
	}
	return n, nil
}
