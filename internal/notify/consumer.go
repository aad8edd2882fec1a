package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Consumer pops notification jobs off the queue and hands them to a handler.
// A handler error is logged and the job dropped; the queue carries
// best-effort user notifications, not durable work.
type Consumer struct {
	rdb   *redis.Client
	queue string
}

// NewConsumer creates a consumer reading from the given queue.
func NewConsumer(rdb *redis.Client, queue string) *Consumer {
	return &Consumer{rdb: rdb, queue: queue}
}

// Run blocks, delivering jobs to handler until the context is cancelled.
func (c *Consumer) Run(ctx context.Context, handler func(context.Context, Job) error) error {
	slog.Info("notification consumer started", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification consumer stopped")
			return nil
		default:
		}

		// BRPOP with a short timeout so cancellation is picked up promptly.
		res, err := c.rdb.BRPop(ctx, 5*time.Second, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // queue empty
			}
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("failed to pop notification job", "error", err)
			time.Sleep(time.Second)
			continue
		}

		// BRPOP returns [key, value]
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			slog.Error("failed to decode notification job", "error", err)
			continue
		}

		if err := handler(ctx, job); err != nil {
			slog.Error("failed to handle notification job",
				"job_id", job.ID,
				"type", job.Type,
				"error", err,
			)
		}
	}
}
