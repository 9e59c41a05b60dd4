package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/docingest/internal/models"
)

// Task types routed by the OCR worker
const (
	TypeOCRDocument = "ocr:document"
	TypeOCRPage     = "ocr:page"
)

// TaskType returns the task type for a message
func TaskType(msg *models.OCRTaskMessage) string {
	if msg.IsPerPage() {
		return TypeOCRPage
	}
	return TypeOCRDocument
}

// NewOCRTask validates msg and wraps it into an asynq task
func NewOCRTask(msg *models.OCRTaskMessage) (*asynq.Task, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid OCR task message: %w", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OCR task message: %w", err)
	}
	return asynq.NewTask(TaskType(msg), payload), nil
}

// ParseOCRTask decodes and validates the message carried by an OCR task
func ParseOCRTask(task *asynq.Task) (*models.OCRTaskMessage, error) {
	return decodeMessage(task.Type(), task.Payload())
}

func decodeMessage(taskType string, payload []byte) (*models.OCRTaskMessage, error) {
	var msg models.OCRTaskMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OCR task message: %w", err)
	}
	if err := checkMessage(taskType, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func checkMessage(taskType string, msg *models.OCRTaskMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid OCR task message: %w", err)
	}
	if want := TaskType(msg); taskType != want {
		return fmt.Errorf("task type %s does not match message (want %s)", taskType, want)
	}
	return nil
}
