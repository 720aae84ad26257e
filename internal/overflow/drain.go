package overflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ReplayFunc replays one queued job through the full router + resilience
// stack. A non-nil error means the attempt failed and the job is either
// requeued (attempts below the bound) or dropped as permanently failed.
type ReplayFunc func(ctx context.Context, job Job) error

// Drain runs a reliable-queue consumer loop until ctx is cancelled:
// BRPOPLPUSH moves one job from the queue into a processing list,
// replays it, and removes it from the processing list on success or
// permanent failure. A requeue on transient failure re-adds it to the
// queue's tail so other pending jobs get a turn first.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := q.rdb.BRPopLPush(ctx, queueKey, processingKey, 5*time.Second).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.WithError(err).Error("overflow drain: BRPOPLPUSH failed")
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.WithError(err).Error("overflow drain: malformed job, dropping")
			q.rdb.LRem(ctx, processingKey, 1, raw)
			continue
		}

		job.Attempts++
		if replayErr := replay(ctx, job); replayErr != nil {
			if job.Attempts >= q.maxAttempts {
				q.logger.WithFields(logrus.Fields{
					"request_id": job.RequestID,
					"attempts":   job.Attempts,
				}).WithError(replayErr).Error("overflow job failed permanently")
				q.rdb.LRem(ctx, processingKey, 1, raw)
				continue
			}

			data, marshalErr := json.Marshal(job)
			if marshalErr == nil {
				q.rdb.LPush(ctx, queueKey, data)
			}
			q.rdb.LRem(ctx, processingKey, 1, raw)
			continue
		}

		q.rdb.LRem(ctx, processingKey, 1, raw)
	}
}
