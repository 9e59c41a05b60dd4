/**
 * Domain models shared by the ingestion pipeline, the document store and
 * the OCR worker.
 */

package models

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InboxTitle is the reserved title of every user's root landing folder
const InboxTitle = ".inbox"

// DefaultLanguage is used when neither the request nor the owner names an OCR language
const DefaultLanguage = "deu"

// User is the owner of folders and documents
type User struct {
	ID          uuid.UUID
	Username    string
	IsSuperuser bool
	OCRLanguage string
}

// Folder is a node that contains documents. A nil ParentID marks a root folder.
type Folder struct {
	ID       uuid.UUID
	Title    string
	UserID   uuid.UUID
	ParentID *uuid.UUID
}

// IsInbox reports whether the folder is a user's inbox
func (f *Folder) IsInbox() bool {
	return f.ParentID == nil && f.Title == InboxTitle
}

// Document is the record created or versioned by the ingestion pipeline
type Document struct {
	ID        uuid.UUID
	Title     string
	FileName  string
	Size      int64
	PageCount int
	Lang      string
	Version   int
	UserID    uuid.UUID
	ParentID  *uuid.UUID
	Notes     string
	CreatedAt time.Time
}

// Page is one page of one version of a document
type Page struct {
	DocumentID uuid.UUID
	Version    int
	Number     int
	Text       string
}

const maxTitleLength = 1024

// ValidationError describes the first field that failed Document validation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate runs full model validation. It returns *ValidationError on failure.
func (d *Document) Validate() error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	case len(d.Title) > maxTitleLength:
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d characters", maxTitleLength)}
	case strings.TrimSpace(d.FileName) == "":
		return &ValidationError{Field: "file_name", Reason: "must not be empty"}
	case strings.ContainsAny(d.FileName, `/\`):
		return &ValidationError{Field: "file_name", Reason: "must not contain path separators"}
	case d.Size < 0:
		return &ValidationError{Field: "size", Reason: "must not be negative"}
	case d.PageCount < 0:
		return &ValidationError{Field: "page_count", Reason: "must not be negative"}
	case d.Version < 0:
		return &ValidationError{Field: "version", Reason: "must not be negative"}
	case d.UserID == uuid.Nil:
		return &ValidationError{Field: "user", Reason: "owner is required"}
	case d.ParentID == nil || *d.ParentID == uuid.Nil:
		return &ValidationError{Field: "parent", Reason: "parent folder is required"}
	}
	return nil
}

// Path returns the canonical storage path of the document file for the given version
func (d *Document) Path(version int) string {
	return DocumentPath(d.UserID, d.ID, version, d.FileName)
}

// DocumentPath builds docs/user_<uid>/document_<docid>/v<version>/<file_name>
func DocumentPath(userID, documentID uuid.UUID, version int, fileName string) string {
	return path.Join(
		"docs",
		fmt.Sprintf("user_%s", userID),
		fmt.Sprintf("document_%s", documentID),
		fmt.Sprintf("v%d", version),
		fileName,
	)
}
