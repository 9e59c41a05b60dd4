/**
 * Redis LIST queue
 *
 * Plain LIST/HASH protocol shared with non-Go producers and consumers:
 *   LPUSH <queue> <id>            job id
 *   HSET  <queue>:data <id> json  job body
 *   SADD  <queue>:processing|completed|failed <id>
 *   PUBLISH <queue>:events json   status events
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/docingest/internal/models"
)

var errNoJobs = stderrors.New("no jobs available")

// ListJob is the job body stored in <queue>:data
type ListJob struct {
	ID         string                `json:"id"`
	Type       string                `json:"type"`
	Payload    models.OCRTaskMessage `json:"payload"`
	CreatedAt  time.Time             `json:"createdAt"`
	Attempts   int                   `json:"attempts"`
	MaxRetries int                   `json:"maxRetries"`
}

func dataKey(queue string) string   { return queue + ":data" }
func eventsKey(queue string) string { return queue + ":events" }

// ListDispatcher enqueues OCR tasks with the LIST protocol
type ListDispatcher struct {
	client     redis.UniversalClient
	queue      string
	maxRetries int
}

// NewListDispatcher creates a dispatcher over an existing Redis client
func NewListDispatcher(client redis.UniversalClient, queueName string) *ListDispatcher {
	return &ListDispatcher{client: client, queue: queueName, maxRetries: 3}
}

// Enqueue stores the job body under its key and pushes the key. A key that
// is already stored is not pushed again.
func (d *ListDispatcher) Enqueue(ctx context.Context, msg *models.OCRTaskMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid OCR task message: %w", err)
	}

	job := ListJob{
		ID:         msg.Key(),
		Type:       TaskType(msg),
		Payload:    *msg,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: d.maxRetries,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	stored, err := d.client.HSetNX(ctx, dataKey(d.queue), job.ID, body).Result()
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	if !stored {
		log.Printf("[Dispatcher] OCR job %s already queued, skipping", job.ID)
		return nil
	}

	if err := d.client.LPush(ctx, d.queue, job.ID).Err(); err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.ID, err)
	}

	log.Printf("[Dispatcher] Pushed %s onto %s", job.ID, d.queue)
	return nil
}

// ListConsumer pops jobs pushed by ListDispatcher and runs the OCR handler
type ListConsumer struct {
	client  redis.UniversalClient
	handler OCRHandler
	config  *ListConsumerConfig
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// ListConsumerConfig holds consumer configuration
type ListConsumerConfig struct {
	QueueName         string
	Concurrency       int
	ProcessingTimeout int64 // milliseconds
}

// NewListConsumer creates a LIST protocol consumer
func NewListConsumer(client redis.UniversalClient, handler OCRHandler, cfg *ListConsumerConfig) (*ListConsumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ListConsumer{
		client:  client,
		handler: handler,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the worker goroutines
func (c *ListConsumer) Start() error {
	log.Printf("Starting Redis list consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop cancels the workers and waits for in-flight jobs
func (c *ListConsumer) Stop() error {
	log.Println("Stopping Redis list consumer...")
	c.cancel()
	c.wg.Wait()
	log.Printf("Redis list consumer stopped (queue=%s, stats=%v)", c.config.QueueName, c.GetStats(context.Background()))
	return nil
}

func (c *ListConsumer) worker(id int) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		default:
			if err := c.processNextJob(); err != nil && !stderrors.Is(err, errNoJobs) {
				if c.ctx.Err() != nil {
					return
				}
				log.Printf("Worker %d error: %v", id, err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *ListConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}
	jobID := result[1]

	raw, err := c.client.HGet(c.ctx, dataKey(c.config.QueueName), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job ListJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	c.updateJobStatus(job.ID, "processing", nil)

	if err := c.runJob(&job); err != nil {
		log.Printf("Job %s failed: %v", job.ID, err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updated, _ := json.Marshal(job)
			c.client.HSet(c.ctx, dataKey(c.config.QueueName), job.ID, updated)
			c.client.LPush(c.ctx, c.config.QueueName, job.ID)
			log.Printf("Job %s re-queued for retry (attempt %d/%d)", job.ID, job.Attempts, job.MaxRetries)
			return nil
		}
		c.updateJobStatus(job.ID, "failed", map[string]interface{}{
			"error":    err.Error(),
			"attempts": job.Attempts,
		})
		return nil
	}

	c.updateJobStatus(job.ID, "completed", nil)
	log.Printf("Job %s completed successfully", job.ID)
	return nil
}

func (c *ListConsumer) runJob(job *ListJob) error {
	msg := job.Payload
	if err := checkMessage(job.Type, &msg); err != nil {
		return err
	}

	timeout := processingTimeout(c.config.ProcessingTimeout)
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	return c.handler.HandleOCR(ctx, &msg)
}

func (c *ListConsumer) updateJobStatus(jobID, status string, detail map[string]interface{}) {
	queue := c.config.QueueName
	switch status {
	case "processing":
		c.client.SAdd(c.ctx, queue+":processing", jobID)
	case "completed":
		c.client.SRem(c.ctx, queue+":processing", jobID)
		c.client.SAdd(c.ctx, queue+":completed", jobID)
	case "failed":
		c.client.SRem(c.ctx, queue+":processing", jobID)
		c.client.SAdd(c.ctx, queue+":failed", jobID)
		if detail != nil {
			errorData, _ := json.Marshal(detail)
			c.client.HSet(c.ctx, queue+":errors", jobID, errorData)
		}
	}

	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, eventsKey(queue), eventData)
}

// GetStats returns queue statistics
func (c *ListConsumer) GetStats(ctx context.Context) map[string]int64 {
	queue := c.config.QueueName
	waiting, _ := c.client.LLen(ctx, queue).Result()
	processing, _ := c.client.SCard(ctx, queue+":processing").Result()
	completed, _ := c.client.SCard(ctx, queue+":completed").Result()
	failed, _ := c.client.SCard(ctx, queue+":failed").Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}
}
