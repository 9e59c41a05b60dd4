package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/store"
)

// resolveOwner picks the document owner: the explicit user, else the user
// named by username, else the first superuser
func resolveOwner(ctx context.Context, st Store, args ApplyArgs) (*models.User, error) {
	if args.User != nil {
		return args.User, nil
	}

	if args.Username != "" {
		u, err := st.UserByUsername(ctx, args.Username)
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewDocumentValidationError("user", fmt.Sprintf("unknown user %q", args.Username), err)
		}
		return u, err
	}

	u, err := st.FirstSuperuser(ctx)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NewDocumentValidationError("user", "no user given and no superuser exists", err)
	}
	return u, err
}

// resolveParent returns the target folder, falling back to the owner's inbox
func resolveParent(ctx context.Context, st Store, owner *models.User, parentID *uuid.UUID) (uuid.UUID, error) {
	if parentID != nil && *parentID != uuid.Nil {
		return *parentID, nil
	}
	inbox, err := st.GetOrCreateInbox(ctx, owner.ID)
	if err != nil {
		return uuid.Nil, err
	}
	return inbox.ID, nil
}

// resolveLang picks the OCR language: explicit, else the owner's preference,
// else the default. Languages outside the accepted list fall back to the default.
func resolveLang(requested string, owner *models.User, accepted []string, fallback string) string {
	if fallback == "" {
		fallback = models.DefaultLanguage
	}
	lang := strings.ToLower(strings.TrimSpace(requested))
	if lang == "" && owner != nil {
		lang = strings.ToLower(strings.TrimSpace(owner.OCRLanguage))
	}
	if lang == "" {
		return fallback
	}
	if len(accepted) == 0 {
		return lang
	}
	for _, a := range accepted {
		if a == lang {
			return lang
		}
	}
	return fallback
}

// VersionRequest describes the file being ingested into a document
type VersionRequest struct {
	// Existing is the document to version; nil creates a new document
	Existing  *models.Document
	Owner     *models.User
	ParentID  uuid.UUID
	Name      string
	Size      int64
	PageCount int
	Lang      string
	Notes     string
}

// Versioned is the outcome of a create or version bump
type Versioned struct {
	Document      *models.Document
	SourceVersion int
	TargetVersion int
	Created       bool
}

// Versioner creates documents or bumps existing ones to a new version.
// Validation runs before anything is written, and nothing touches storage.
type Versioner struct {
	store Store
}

// NewVersioner wraps a store
func NewVersioner(st Store) *Versioner {
	return &Versioner{store: st}
}

// Apply creates a document at version 0 or moves an existing one from V to V+1
func (v *Versioner) Apply(ctx context.Context, req VersionRequest) (*Versioned, error) {
	if req.Existing == nil {
		return v.create(ctx, req)
	}
	return v.bump(ctx, req)
}

func (v *Versioner) create(ctx context.Context, req VersionRequest) (*Versioned, error) {
	parent := req.ParentID
	doc := &models.Document{
		ID:        uuid.New(),
		Title:     req.Name,
		FileName:  req.Name,
		Size:      req.Size,
		PageCount: req.PageCount,
		Lang:      req.Lang,
		Version:   0,
		UserID:    req.Owner.ID,
		ParentID:  &parent,
		Notes:     req.Notes,
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	if err := v.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return &Versioned{Document: doc, SourceVersion: 0, TargetVersion: 1, Created: true}, nil
}

func (v *Versioner) bump(ctx context.Context, req VersionRequest) (*Versioned, error) {
	doc := *req.Existing
	source := doc.Version

	doc.Version = source + 1
	doc.PageCount = req.PageCount
	doc.FileName = req.Name
	doc.Size = req.Size
	if req.Lang != "" {
		doc.Lang = req.Lang
	}
	if req.Notes != "" {
		doc.Notes = req.Notes
	}

	if err := validate(&doc); err != nil {
		return nil, err
	}
	if err := v.store.SaveVersion(ctx, &doc); err != nil {
		return nil, err
	}

	*req.Existing = doc
	return &Versioned{Document: req.Existing, SourceVersion: source, TargetVersion: doc.Version}, nil
}

func validate(doc *models.Document) error {
	err := doc.Validate()
	if err == nil {
		return nil
	}
	var ve *models.ValidationError
	if stderrors.As(err, &ve) {
		return errors.NewDocumentValidationError(ve.Field, ve.Reason, err)
	}
	return errors.NewDocumentValidationError("document", err.Error(), err)
}
