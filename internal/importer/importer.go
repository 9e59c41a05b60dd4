/**
 * Entry point plumbing shared by the web, REST, IMAP and local importers
 *
 * Wraps an inbound source into a TempPayload and threads it through the
 * configured ingestion chain with arguments for the given processor kind.
 */

package importer

import (
	"context"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/payload"
	"github.com/adverant/nexus/docingest/internal/pipeline"
)

// Runner runs one ingestion through the stage chain
type Runner interface {
	Run(ctx context.Context, init pipeline.InitArgs, apply pipeline.ApplyArgs) (*models.Document, error)
}

// Request is one file handed to the pipeline by an entry point
type Request struct {
	// Source is a raw []byte buffer, a materialized temporary *os.File or a *payload.TempPayload
	Source    interface{}
	Processor pipeline.ProcessorKind

	Name     string
	User     *models.User
	Username string
	ParentID *uuid.UUID
	Lang     string
	Notes    string

	SkipOCR      bool
	AsyncPerPage bool

	// Document, when set, is versioned instead of creating a new document
	Document *models.Document
}

// Importer turns entry point requests into chain runs
type Importer struct {
	chain   Runner
	tempDir string
	logger  *logging.Logger
}

// New creates an importer that materializes raw buffers into tempDir
func New(chain Runner, tempDir string, logger *logging.Logger) *Importer {
	if logger == nil {
		logger = logging.NewLogger("Importer")
	}
	return &Importer{chain: chain, tempDir: tempDir, logger: logger}
}

// Import runs the chain for req. A nil document without error means no stage
// accepted the payload.
func (i *Importer) Import(ctx context.Context, req Request) (*models.Document, error) {
	p, err := payload.New(req.Source, payload.WithTempDir(i.tempDir))
	if err != nil {
		return nil, err
	}

	init := pipeline.InitArgs{
		Payload:   p,
		Processor: req.Processor,
		Doc:       req.Document,
	}

	apply := pipeline.DefaultApplyArgs()
	apply.User = req.User
	apply.Username = req.Username
	apply.ParentID = req.ParentID
	apply.Lang = req.Lang
	apply.Notes = req.Notes
	apply.Name = req.Name
	apply.SkipOCR = req.SkipOCR
	apply.AsyncPerPage = req.AsyncPerPage

	doc, err := i.chain.Run(ctx, init, apply)
	if err != nil {
		i.logger.Error("Import failed", "processor", req.Processor, "name", req.Name, "error", err)
		return nil, err
	}
	if doc == nil {
		i.logger.Info("Import produced no document", "processor", req.Processor, "name", req.Name)
	}
	return doc, nil
}
