/**
 * Default ingestion stage
 *
 * Creates or versions the document record, copies the payload to its
 * canonical storage path, resolves the storage namespace and hands the
 * document to the OCR queue. Dispatch failures are logged and never undo
 * the ingestion.
 */

package pipeline

import (
	"context"
	"fmt"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/mimetype"
	"github.com/adverant/nexus/docingest/internal/models"
)

// DefaultStageID is the registry identifier of the default stage
const DefaultStageID = "default"

// DefaultStage persists the payload as a document or a new document version
type DefaultStage struct {
	id        string
	mimeTypes []string
	deps      Deps
	versioner *Versioner
	logger    *logging.Logger
}

// NewDefaultStage is the Factory of the default stage
func NewDefaultStage(spec StageSpec, deps Deps) (Stage, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("default stage requires a document store")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("default stage requires a storage gateway")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("default stage requires an OCR dispatcher")
	}
	if deps.Classifier == nil {
		deps.Classifier = mimetype.NewMagicClassifier()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger("Pipeline")
	}
	return &DefaultStage{
		id:        spec.ID,
		mimeTypes: spec.MimeTypes,
		deps:      deps,
		versioner: NewVersioner(deps.Store),
		logger:    deps.Logger.With("stage", spec.ID),
	}, nil
}

func (s *DefaultStage) Name() string { return s.id }

func (s *DefaultStage) Admit(ctx context.Context, args InitArgs) (Handle, error) {
	mime, err := admitMime(s.id, s.deps.Classifier, s.mimeTypes, args)
	if err != nil {
		return nil, err
	}
	return &defaultHandle{stage: s, init: args, mime: mime}, nil
}

type defaultHandle struct {
	stage *DefaultStage
	init  InitArgs
	mime  string

	// doc is the document Apply stored, nil until then
	doc *models.Document
}

// Overrides hands the stored document to later stages so they version it
// instead of creating another one.
func (h *defaultHandle) Overrides() (InitOverride, ApplyOverride) {
	if h.doc == nil {
		return InitOverride{}, ApplyOverride{}
	}
	return InitOverride{Doc: To(h.doc)}, ApplyOverride{}
}

func (h *defaultHandle) Apply(ctx context.Context, args ApplyArgs) (*models.Document, error) {
	s := h.stage
	log := s.logger.With("run", RunIDFrom(ctx))
	p := h.init.Payload

	if h.init.Doc == nil && !args.CreateDocument {
		log.Warn("No document to version and creation disabled, nothing ingested", "file", p.Name())
		return nil, nil
	}

	owner, err := resolveOwner(ctx, s.deps.Store, args)
	if err != nil {
		return nil, err
	}
	lang := resolveLang(args.Lang, owner, s.deps.Languages, s.deps.DefaultLang)

	name := args.Name
	if name == "" {
		name = p.Name()
	}
	size, err := p.Size()
	if err != nil {
		return nil, errors.NewStorageIOError("stat", p.Path(), err)
	}
	pages, err := p.PageCount()
	if err != nil {
		return nil, errors.NewDocumentValidationError("page_count", "could not count pages", err)
	}

	req := VersionRequest{
		Existing:  h.init.Doc,
		Owner:     owner,
		Name:      name,
		Size:      size,
		PageCount: pages,
		Lang:      lang,
		Notes:     args.Notes,
	}
	if req.Existing == nil {
		if req.ParentID, err = resolveParent(ctx, s.deps.Store, owner, args.ParentID); err != nil {
			return nil, err
		}
	} else if args.Lang == "" {
		// an existing document keeps its language unless one was asked for
		req.Lang = ""
	}

	out, err := s.versioner.Apply(ctx, req)
	if err != nil {
		return nil, err
	}
	doc := out.Document
	h.doc = doc

	key := doc.Path(doc.Version)
	if err := s.deps.Storage.Copy(ctx, p.Path(), key); err != nil {
		return nil, errors.NewStorageIOError("copy", key, err)
	}
	closeQuietly(p, log)

	namespace, err := s.deps.Storage.Upload(ctx, key)
	if err != nil {
		return nil, errors.NewStorageIOError("upload", key, err)
	}

	log.Info("Document stored",
		"document", doc.ID,
		"version", doc.Version,
		"created", out.Created,
		"pages", doc.PageCount,
		"mime", h.mime,
	)

	if args.SkipOCR {
		log.Debug("OCR skipped", "document", doc.ID)
	} else {
		h.dispatch(ctx, log, doc, namespace, out, args.AsyncPerPage)
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.DocumentIngested(ctx, doc, string(h.init.Processor), RunIDFrom(ctx)); err != nil {
			log.Warn("Failed to publish ingestion event", "document", doc.ID, "error", err)
		}
	}
	return doc, nil
}

// dispatch hands the document to the OCR queue, one message per page when
// perPage is set. It never fails the ingestion.
func (h *defaultHandle) dispatch(ctx context.Context, log *logging.Logger, doc *models.Document, namespace string, out *Versioned, perPage bool) {
	base := models.OCRTaskMessage{
		UserID:        doc.UserID,
		DocumentID:    doc.ID,
		FileName:      doc.FileName,
		Lang:          doc.Lang,
		Namespace:     namespace,
		SourceVersion: out.SourceVersion,
		TargetVersion: out.TargetVersion,
		StoredVersion: doc.Version,
	}

	if !perPage {
		msg := base
		if err := h.stage.deps.Dispatcher.Enqueue(ctx, &msg); err != nil {
			log.Error("OCR dispatch failed", "document", doc.ID, "error", err)
		}
		return
	}

	failed := 0
	for n := 1; n <= doc.PageCount; n++ {
		msg := base
		page := n
		msg.Page = &page
		if err := h.stage.deps.Dispatcher.Enqueue(ctx, &msg); err != nil {
			failed++
			log.Error("OCR dispatch failed", "document", doc.ID, "page", page, "error", err)
		}
	}
	if failed > 0 {
		log.Warn("Some pages were not queued for OCR", "document", doc.ID, "failed", failed, "pages", doc.PageCount)
	}
}
