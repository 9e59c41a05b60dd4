package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/mimetype"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/store"
)

// SupersedeStageID is the registry identifier of the supersede stage
const SupersedeStageID = "supersede"

// SupersedeStage turns an upload whose name matches an existing document in
// the target folder into a new version of that document. It must run before
// the default stage and never produces a document itself.
type SupersedeStage struct {
	id        string
	mimeTypes []string
	deps      Deps
	logger    *logging.Logger
}

func NewSupersedeStage(spec StageSpec, deps Deps) (Stage, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("supersede stage requires a document store")
	}
	if deps.Classifier == nil {
		deps.Classifier = mimetype.NewMagicClassifier()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger("Pipeline")
	}
	return &SupersedeStage{
		id:        spec.ID,
		mimeTypes: spec.MimeTypes,
		deps:      deps,
		logger:    deps.Logger.With("stage", spec.ID),
	}, nil
}

func (s *SupersedeStage) Name() string { return s.id }

func (s *SupersedeStage) Admit(ctx context.Context, args InitArgs) (Handle, error) {
	if _, err := admitMime(s.id, s.deps.Classifier, s.mimeTypes, args); err != nil {
		return nil, err
	}
	return &supersedeHandle{stage: s, init: args}, nil
}

type supersedeHandle struct {
	stage *SupersedeStage
	init  InitArgs
	found *models.Document
}

func (h *supersedeHandle) Apply(ctx context.Context, args ApplyArgs) (*models.Document, error) {
	if h.init.Doc != nil {
		return nil, nil
	}
	st := h.stage.deps.Store

	owner, err := resolveOwner(ctx, st, args)
	if err != nil {
		return nil, err
	}
	parent, err := resolveParent(ctx, st, owner, args.ParentID)
	if err != nil {
		return nil, err
	}
	name := args.Name
	if name == "" {
		name = h.init.Payload.Name()
	}

	doc, err := st.FindDocumentByTitle(ctx, parent, name)
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}

	h.stage.logger.Info("Upload supersedes existing document",
		"run", RunIDFrom(ctx), "document", doc.ID, "version", doc.Version)
	h.found = doc
	return nil, nil
}

func (h *supersedeHandle) Overrides() (InitOverride, ApplyOverride) {
	if h.found == nil {
		return InitOverride{}, ApplyOverride{}
	}
	return InitOverride{Doc: To(h.found)}, ApplyOverride{}
}
