/**
 * Queue Consumer for the OCR worker
 *
 * Consumes ocr:document and ocr:page tasks from Redis via asynq and hands
 * each decoded message to an OCRHandler.
 */

package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/docingest/internal/models"
)

const defaultProcessingTimeout = 300000 * time.Millisecond // 5 minutes

// OCRHandler performs recognition for one task message
type OCRHandler interface {
	HandleOCR(ctx context.Context, msg *models.OCRTaskMessage) error
}

// OCRHandlerFunc adapts a function to OCRHandler
type OCRHandlerFunc func(ctx context.Context, msg *models.OCRTaskMessage) error

func (f OCRHandlerFunc) HandleOCR(ctx context.Context, msg *models.OCRTaskMessage) error {
	return f(ctx, msg)
}

// Consumer handles task consumption from the Redis queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler OCRHandler
	config  *ConsumerConfig
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Handler           OCRHandler
	ProcessingTimeout int64 // milliseconds (default: 300000 = 5 minutes)
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, payload=%s, error=%v",
					task.Type(), string(task.Payload()), err)
			}),
		},
	)

	return newConsumer(server, cfg), nil
}

func newConsumer(server *asynq.Server, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		server:  server,
		mux:     asynq.NewServeMux(),
		handler: cfg.Handler,
		config:  cfg,
	}
	c.mux.HandleFunc(TypeOCRDocument, c.handleOCRTask)
	c.mux.HandleFunc(TypeOCRPage, c.handleOCRTask)
	return c
}

// retryDelay is an exponential backoff: 5s, 10s, 20s, capped at 60s
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := time.Duration(5*(1<<uint(n))) * time.Second
	if delay > 60*time.Second || delay <= 0 {
		delay = 60 * time.Second
	}
	return delay
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	log.Printf("Queue consumer stopped")
	return nil
}

// handleOCRTask decodes the task and runs the handler under the processing timeout
func (c *Consumer) handleOCRTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	msg, err := ParseOCRTask(task)
	if err != nil {
		// a malformed message never becomes valid
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	timeout := processingTimeout(c.config.ProcessingTimeout)
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("[Task %s] Processing %s: file=%s, lang=%s, namespace=%s",
		msg.Key(), task.Type(), msg.FileName, msg.Lang, msg.Namespace)

	err = c.handler.HandleOCR(processCtx, msg)
	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			log.Printf("[Task %s] Processing timed out after %v (timeout: %v)", msg.Key(), duration, timeout)
			return fmt.Errorf("processing timeout after %v: %w", timeout, err)
		}
		log.Printf("[Task %s] Processing failed after %v: %v", msg.Key(), duration, err)
		return fmt.Errorf("OCR processing failed: %w", err)
	}

	log.Printf("[Task %s] Processing completed in %v", msg.Key(), duration)
	return nil
}

func processingTimeout(ms int64) time.Duration {
	if ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultProcessingTimeout
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
