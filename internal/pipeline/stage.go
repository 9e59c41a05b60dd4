package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/mimetype"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/queue"
)

// Stage is one configured unit of the ingestion chain.
//
// Admit inspects the init arguments and either returns a Handle or an error:
// INCOMPATIBLE_PAYLOAD makes the chain skip the stage, MALFORMED_INIT stops
// the chain, anything else aborts the run.
type Stage interface {
	Name() string
	Admit(ctx context.Context, args InitArgs) (Handle, error)
}

// Handle is an admitted stage bound to one payload
type Handle interface {
	// Apply performs the stage's side effects. A nil document means the
	// stage produced none. Errors abort the run.
	Apply(ctx context.Context, args ApplyArgs) (*models.Document, error)
	// Overrides returns the argument changes later stages should see
	Overrides() (InitOverride, ApplyOverride)
}

// Store is the document store the built-in stages use
type Store interface {
	FirstSuperuser(ctx context.Context) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	GetOrCreateInbox(ctx context.Context, userID uuid.UUID) (*models.Folder, error)
	FindDocumentByTitle(ctx context.Context, parentID uuid.UUID, title string) (*models.Document, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	SaveVersion(ctx context.Context, doc *models.Document) error
}

// Storage is the physical file storage collaborator
type Storage interface {
	Copy(ctx context.Context, srcPath, key string) error
	Upload(ctx context.Context, key string) (string, error)
}

// EventSink is notified after a document is ingested
type EventSink interface {
	DocumentIngested(ctx context.Context, doc *models.Document, processorKind, runID string) error
}

// Deps are the collaborators handed to stage factories
type Deps struct {
	Store      Store
	Storage    Storage
	Dispatcher queue.Dispatcher
	Classifier mimetype.Classifier
	Events     EventSink // optional
	Logger     *logging.Logger
	// Languages are the accepted OCR languages; empty accepts any
	Languages   []string
	DefaultLang string
}

// StageSpec is the resolved configuration of one stage
type StageSpec struct {
	ID        string
	MimeTypes []string
}

// Factory builds a stage from its configuration
type Factory func(spec StageSpec, deps Deps) (Stage, error)

// Registry maps stage identifiers to factories
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the built-in stages
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(DefaultStageID, NewDefaultStage)
	r.Register(SupersedeStageID, NewSupersedeStage)
	return r
}

// Register adds or replaces a factory
func (r *Registry) Register(id string, f Factory) {
	r.factories[id] = f
}

// Lookup resolves a factory
func (r *Registry) Lookup(id string) (Factory, bool) {
	f, ok := r.factories[id]
	return f, ok
}

// IDs lists the registered identifiers
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// admitMime classifies the payload and rejects it when its type is not allowed
func admitMime(stage string, classifier mimetype.Classifier, allow []string, args InitArgs) (string, error) {
	if args.Payload == nil {
		return "", errors.NewMalformedInitError(stage, "payload is required")
	}
	if !args.Processor.Valid() {
		return "", errors.NewMalformedInitError(stage, fmt.Sprintf("unknown processor kind %q", args.Processor))
	}
	mime, err := classifier.Classify(args.Payload.Path())
	if err != nil {
		return "", errors.NewMalformedInitError(stage, err.Error())
	}
	if !mimetype.Allowed(mime, allow) {
		return mime, errors.NewIncompatiblePayloadError(stage, mime)
	}
	return mime, nil
}

func closeQuietly(c io.Closer, log *logging.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("Failed to release payload", "error", err)
	}
}
