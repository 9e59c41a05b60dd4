/**
 * OCR task dispatchers
 *
 * Hand OCR work to the out-of-process worker without waiting for pickup.
 * Task IDs are derived from the message key so that enqueuing the same unit
 * of work twice is rejected by the broker.
 */

package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/docingest/internal/models"
)

// Dispatcher enqueues OCR task messages
type Dispatcher interface {
	Enqueue(ctx context.Context, msg *models.OCRTaskMessage) error
}

// enqueuer is the part of *asynq.Client used for dispatch
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqDispatcher enqueues OCR tasks on an asynq queue
type AsynqDispatcher struct {
	client   enqueuer
	queue    string
	maxRetry int
}

// NewAsynqDispatcher connects an asynq client to redisURL
func NewAsynqDispatcher(redisURL, queueName string) (*AsynqDispatcher, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &AsynqDispatcher{
		client:   asynq.NewClient(redisOpt),
		queue:    queueName,
		maxRetry: 5,
	}, nil
}

// Enqueue submits msg and returns once the broker has accepted it
func (d *AsynqDispatcher) Enqueue(ctx context.Context, msg *models.OCRTaskMessage) error {
	task, err := NewOCRTask(msg)
	if err != nil {
		return err
	}

	info, err := d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.TaskID(msg.Key()),
		asynq.MaxRetry(d.maxRetry),
	)
	if stderrors.Is(err, asynq.ErrTaskIDConflict) || stderrors.Is(err, asynq.ErrDuplicateTask) {
		log.Printf("[Dispatcher] OCR task %s already enqueued, skipping", msg.Key())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue OCR task %s: %w", msg.Key(), err)
	}

	log.Printf("[Dispatcher] Enqueued %s: id=%s, queue=%s", task.Type(), info.ID, info.Queue)
	return nil
}

// Close releases the asynq client
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}
