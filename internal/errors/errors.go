package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the document ingestion pipeline
 *
 * Stage-local conditions (incompatible payload, malformed init, stage load
 * failure) are recovered by the chain. Persistence and storage failures
 * escape the chain and abort the run.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Payload and stage errors
	ErrorUnsupportedPayloadType ErrorCode = "UNSUPPORTED_PAYLOAD_TYPE"
	ErrorIncompatiblePayload    ErrorCode = "INCOMPATIBLE_PAYLOAD"
	ErrorMalformedInit          ErrorCode = "MALFORMED_INIT"
	ErrorStageLoadFailed        ErrorCode = "STAGE_LOAD_FAILED"

	// Persistence errors
	ErrorDocumentValidation ErrorCode = "DOCUMENT_VALIDATION_FAILED"
	ErrorStorageIO          ErrorCode = "STORAGE_IO_FAILED"
	ErrorDatabaseFailed     ErrorCode = "DATABASE_FAILED"

	// Worker errors
	ErrorOCRFailed ErrorCode = "OCR_FAILED"
)

// IngestError represents a structured ingestion error
type IngestError struct {
	Code      ErrorCode
	Message   string
	Stage     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *IngestError) Error() string {
	prefix := string(e.Code)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Code, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *IngestError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first IngestError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var ie *IngestError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Factory functions for common errors

func NewUnsupportedPayloadTypeError(payload interface{}) *IngestError {
	return &IngestError{
		Code:      ErrorUnsupportedPayloadType,
		Message:   fmt.Sprintf("Unsupported payload type: %T", payload),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"payload_type": fmt.Sprintf("%T", payload),
		},
	}
}

func NewIncompatiblePayloadError(stage string, mimeType string) *IngestError {
	return &IngestError{
		Code:      ErrorIncompatiblePayload,
		Message:   fmt.Sprintf("Payload of type %s is not supported by stage", mimeType),
		Stage:     stage,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewMalformedInitError(stage string, reason string) *IngestError {
	return &IngestError{
		Code:      ErrorMalformedInit,
		Message:   reason,
		Stage:     stage,
		Timestamp: time.Now(),
	}
}

func NewStageLoadError(stage string, cause error) *IngestError {
	return &IngestError{
		Code:      ErrorStageLoadFailed,
		Message:   "Pipeline stage could not be loaded",
		Stage:     stage,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDocumentValidationError(field string, reason string, cause error) *IngestError {
	return &IngestError{
		Code:      ErrorDocumentValidation,
		Message:   fmt.Sprintf("Document validation failed on %s: %s", field, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"field": field,
		},
		Cause: cause,
	}
}

func NewStorageIOError(op string, path string, cause error) *IngestError {
	return &IngestError{
		Code:      ErrorStorageIO,
		Message:   fmt.Sprintf("Storage %s failed for %s", op, path),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": op,
			"path":      path,
		},
		Cause: cause,
	}
}

func NewDatabaseError(op string, cause error) *IngestError {
	return &IngestError{
		Code:      ErrorDatabaseFailed,
		Message:   fmt.Sprintf("Database operation %s failed", op),
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewOCRFailedError(documentID string, page int, cause error) *IngestError {
	return &IngestError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed for document %s", documentID),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"document_id": documentID,
			"page":        page,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for structured logging and event payloads
func (e *IngestError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.Stage != "" {
		result["stage"] = e.Stage
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
