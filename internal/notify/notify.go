// Package notify publishes outcome events to a Redis work queue. A separate
// worker process consumes the queue and delivers user-facing emails, so the
// watcher itself never blocks on SMTP.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Type enumerates the notification job types the pipeline emits.
type Type string

const (
	TypeUserDoesNotExist        Type = "user-does-not-exist"
	TypeAddAttachment           Type = "add-attachment"
	TypeAttachmentLimitExceeded Type = "analyser-attachment-limit-exceeded"
	TypeAttachmentValidation    Type = "attachment-validation"
	TypeQuickReply              Type = "analyser-quick-reply"
	TypeAnalysisComplete        Type = "analysis-complete"
	TypeEvaluationComplete      Type = "evaluation-complete"
)

// Job is one unit of work on the notification queue.
type Job struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	Data       map[string]string `json:"data"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Publisher pushes notification jobs onto a Redis list. The Redis client is
// process-wide and injected; the publisher never opens connections of its own.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

// NewPublisher creates a publisher targeting the given queue.
func NewPublisher(rdb *redis.Client, queue string) *Publisher {
	return &Publisher{rdb: rdb, queue: queue}
}

// Publish serialises the job and pushes it onto the queue. The job ID and
// enqueue timestamp are assigned here.
func (p *Publisher) Publish(ctx context.Context, job Job) error {
	job.ID = uuid.New().String()
	job.EnqueuedAt = time.Now().UTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queue, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("queued notification",
		"job_id", job.ID,
		"type", job.Type,
		"queue", p.queue,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
