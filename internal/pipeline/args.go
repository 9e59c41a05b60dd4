package pipeline

import (
	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/payload"
)

// ProcessorKind names the entry point that started an ingestion
type ProcessorKind string

const (
	ProcessorWeb   ProcessorKind = "WEB"
	ProcessorREST  ProcessorKind = "REST_API"
	ProcessorIMAP  ProcessorKind = "IMAP"
	ProcessorLocal ProcessorKind = "LOCAL"
)

// Valid reports whether k is a known entry point
func (k ProcessorKind) Valid() bool {
	switch k {
	case ProcessorWeb, ProcessorREST, ProcessorIMAP, ProcessorLocal:
		return true
	}
	return false
}

// Override is one optional field of an override set. An unset override
// leaves the running value alone; a set override replaces it, and setting
// the zero value clears it.
type Override[T any] struct {
	Set   bool
	Value T
}

// To returns a set override carrying v
func To[T any](v T) Override[T] {
	return Override[T]{Set: true, Value: v}
}

func (o Override[T]) applyTo(dst *T) {
	if o.Set {
		*dst = o.Value
	}
}

// InitArgs decide how the next stage is admitted
type InitArgs struct {
	Payload   *payload.TempPayload
	Processor ProcessorKind
	// Doc is an existing document to version instead of creating a new one
	Doc *models.Document
}

// InitOverride is what a stage asks to change in InitArgs
type InitOverride struct {
	Payload Override[*payload.TempPayload]
	Doc     Override[*models.Document]
}

// Merge applies the set fields of o
func (a *InitArgs) Merge(o InitOverride) {
	o.Payload.applyTo(&a.Payload)
	o.Doc.applyTo(&a.Doc)
}

// ApplyArgs are the processing parameters of a stage's apply step
type ApplyArgs struct {
	// User wins over Username. With neither, the first superuser owns the document.
	User     *models.User
	Username string
	// ParentID is the target folder; nil lands the document in the owner's inbox
	ParentID *uuid.UUID
	Lang     string
	Notes    string
	// Name is the display name; empty uses the payload's base name
	Name           string
	SkipOCR        bool
	AsyncPerPage   bool
	CreateDocument bool
}

// DefaultApplyArgs returns ApplyArgs with document creation enabled
func DefaultApplyArgs() ApplyArgs {
	return ApplyArgs{CreateDocument: true}
}

// ApplyOverride is what a stage asks to change in ApplyArgs
type ApplyOverride struct {
	User           Override[*models.User]
	Username       Override[string]
	ParentID       Override[*uuid.UUID]
	Lang           Override[string]
	Notes          Override[string]
	Name           Override[string]
	SkipOCR        Override[bool]
	AsyncPerPage   Override[bool]
	CreateDocument Override[bool]
}

// Merge applies the set fields of o
func (a *ApplyArgs) Merge(o ApplyOverride) {
	o.User.applyTo(&a.User)
	o.Username.applyTo(&a.Username)
	o.ParentID.applyTo(&a.ParentID)
	o.Lang.applyTo(&a.Lang)
	o.Notes.applyTo(&a.Notes)
	o.Name.applyTo(&a.Name)
	o.SkipOCR.applyTo(&a.SkipOCR)
	o.AsyncPerPage.applyTo(&a.AsyncPerPage)
	o.CreateDocument.applyTo(&a.CreateDocument)
}
