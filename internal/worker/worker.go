package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealmates/backend/pkg/queue"
)

// NotificationCreator inserts one notification per recipient. Implemented by
// the notifications service.
type NotificationCreator interface {
	Create(ctx context.Context, userID uuid.UUID, title, message string) error
}

// FanoutProcessor drains notification fan-out jobs: one queued broadcast
// becomes one insert per recipient, off the request path.
type FanoutProcessor struct {
	notifier NotificationCreator
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewFanoutProcessor creates a notification fan-out processor.
func NewFanoutProcessor(notifier NotificationCreator, q *queue.Queue, logger *zap.Logger) *FanoutProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanoutProcessor{notifier: notifier, queue: q, logger: logger}
}

// Process executes one fan-out job. A recipient whose insert fails does not
// block the rest; the job only errors (and retries) when every insert failed,
// since re-running a partially delivered broadcast would duplicate the
// delivered ones.
func (p *FanoutProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotificationFanout {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationFanoutPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(payload.UserIDs) == 0 {
		return nil
	}

	failed := 0
	for _, userID := range payload.UserIDs {
		if err := p.notifier.Create(ctx, userID, payload.Title, payload.Message); err != nil {
			p.logger.Warn("notification insert failed",
				zap.Error(err), zap.String("user_id", userID.String()), zap.String("job_id", job.ID))
			failed++
		}
	}
	if failed == len(payload.UserIDs) {
		return fmt.Errorf("all %d notification inserts failed", failed)
	}
	p.logger.Info("fan-out delivered",
		zap.String("job_id", job.ID), zap.Int("recipients", len(payload.UserIDs)), zap.Int("failed", failed))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *FanoutProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
		}
	}
}
