package models

import (
	"fmt"

	"github.com/google/uuid"
)

// OCRTaskMessage carries everything the OCR worker needs to process a document
// without querying pipeline state.
type OCRTaskMessage struct {
	UserID        uuid.UUID `json:"user_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	FileName      string    `json:"file_name"`
	Lang          string    `json:"lang"`
	Namespace     string    `json:"namespace"`
	SourceVersion int       `json:"version"`
	TargetVersion int       `json:"target_version"`
	StoredVersion int       `json:"stored_version"`
	Page          *int      `json:"page,omitempty"`
}

// IsPerPage reports whether the message targets a single page
func (m *OCRTaskMessage) IsPerPage() bool {
	return m.Page != nil
}

// Key identifies the unit of OCR work. Two messages with the same key describe the same work.
// The stored version is part of the key: creation stores v0 and the first
// re-upload stores v1, both with target_version 1.
func (m *OCRTaskMessage) Key() string {
	key := fmt.Sprintf("ocr:%s:s%d:t%d", m.DocumentID, m.StoredVersion, m.TargetVersion)
	if m.Page != nil {
		key += fmt.Sprintf(":p%d", *m.Page)
	}
	return key
}

// Validate checks the message is self-sufficient
func (m *OCRTaskMessage) Validate() error {
	if m.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if m.DocumentID == uuid.Nil {
		return fmt.Errorf("document_id is required")
	}
	if m.FileName == "" {
		return fmt.Errorf("file_name is required")
	}
	if m.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if m.TargetVersion != m.SourceVersion+1 {
		return fmt.Errorf("target_version must be version+1, got version=%d target_version=%d",
			m.SourceVersion, m.TargetVersion)
	}
	if m.StoredVersion != m.SourceVersion && m.StoredVersion != m.TargetVersion {
		return fmt.Errorf("stored_version must be version or target_version, got %d", m.StoredVersion)
	}
	if m.Page != nil && *m.Page < 1 {
		return fmt.Errorf("page must be >= 1, got %d", *m.Page)
	}
	return nil
}
