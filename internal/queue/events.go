package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/docingest/internal/models"
)

// EventDocumentIngested is published after a document is created or versioned
const EventDocumentIngested = "document:ingested"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// IngestEvent is the JSON body published on <queue>:events
type IngestEvent struct {
	Event         string `json:"event"`
	DocumentID    string `json:"documentId"`
	UserID        string `json:"userId"`
	Title         string `json:"title"`
	Version       int    `json:"version"`
	PageCount     int    `json:"pageCount"`
	ProcessorKind string `json:"processorKind"`
	RunID         string `json:"runId,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// EventPublisher publishes ingestion events on Redis pub/sub
type EventPublisher struct {
	client  publisher
	channel string
}

// NewEventPublisher publishes on <queueName>:events
func NewEventPublisher(client redis.UniversalClient, queueName string) *EventPublisher {
	return &EventPublisher{client: client, channel: eventsKey(queueName)}
}

// DocumentIngested announces a created or versioned document
func (p *EventPublisher) DocumentIngested(ctx context.Context, doc *models.Document, processorKind, runID string) error {
	event := IngestEvent{
		Event:         EventDocumentIngested,
		DocumentID:    doc.ID.String(),
		UserID:        doc.UserID.String(),
		Title:         doc.Title,
		Version:       doc.Version,
		PageCount:     doc.PageCount,
		ProcessorKind: processorKind,
		RunID:         runID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish ingest event: %w", err)
	}
	return nil
}
