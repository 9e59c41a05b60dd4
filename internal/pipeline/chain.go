/**
 * Ingestion chain
 *
 * Runs the configured stages strictly in order for one payload. A stage that
 * declines the payload is skipped, a stage that cannot be admitted stops the
 * chain, and persistence failures abort the run. Every payload the chain sees
 * is released exactly once before Run returns.
 */

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/adverant/nexus/docingest/internal/config"
	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/payload"
)

type runIDKey struct{}

// RunIDFrom returns the chain run id carried by ctx
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Chain is an ordered, resolved list of stages
type Chain struct {
	stages []Stage
	logger *logging.Logger
}

// NewChain resolves every configured stage through reg. An unknown or
// failing stage is fatal unless it is marked optional, in which case it is
// logged and left out.
func NewChain(pc *config.PipelineConfig, reg *Registry, deps Deps) (*Chain, error) {
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger("Pipeline")
	}

	chain := &Chain{logger: deps.Logger}
	for _, sc := range pc.Stages {
		stage, err := loadStage(sc, pc, reg, deps)
		if err != nil {
			if !sc.Optional {
				return nil, err
			}
			deps.Logger.Warn("Optional stage not loaded", "code", errors.CodeOf(err), "stage", sc.ID, "error", err)
			continue
		}
		chain.stages = append(chain.stages, stage)
	}

	if len(chain.stages) == 0 {
		return nil, fmt.Errorf("no pipeline stage could be loaded")
	}
	return chain, nil
}

func loadStage(sc config.StageConfig, pc *config.PipelineConfig, reg *Registry, deps Deps) (Stage, error) {
	factory, ok := reg.Lookup(sc.ID)
	if !ok {
		return nil, errors.NewStageLoadError(sc.ID, fmt.Errorf("no stage registered as %q (known: %s)", sc.ID, strings.Join(reg.IDs(), ", ")))
	}
	stage, err := factory(StageSpec{ID: sc.ID, MimeTypes: pc.MimeTypesFor(sc)}, deps)
	if err != nil {
		return nil, errors.NewStageLoadError(sc.ID, err)
	}
	return stage, nil
}

// Stages returns the loaded stage names in order
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Run threads init and apply through the stages and returns what the last
// applied stage returned, which may be nil.
func (c *Chain) Run(ctx context.Context, init InitArgs, apply ApplyArgs) (*models.Document, error) {
	runID := ulid.Make().String()
	ctx = context.WithValue(ctx, runIDKey{}, runID)
	log := c.logger.With("run", runID, "processor", init.Processor)

	seen := newPayloadSet()
	seen.add(init.Payload)
	defer seen.closeAll(log)

	var result *models.Document

stages:
	for _, stage := range c.stages {
		handle, err := stage.Admit(ctx, init)
		switch {
		case errors.HasCode(err, errors.ErrorIncompatiblePayload):
			log.Info("Stage skipped", "stage", stage.Name(), "reason", err)
			continue
		case errors.HasCode(err, errors.ErrorMalformedInit):
			log.Error("Stage could not be admitted, stopping chain", "stage", stage.Name(), "error", err)
			break stages
		case err != nil:
			return nil, err
		}

		doc, err := handle.Apply(ctx, apply)
		if err != nil {
			log.Error("Stage failed", "stage", stage.Name(), "error", err)
			return nil, err
		}
		result = doc

		initOverride, applyOverride := handle.Overrides()
		init.Merge(initOverride)
		apply.Merge(applyOverride)
		seen.add(init.Payload)
	}

	if result != nil {
		log.Info("Ingestion finished", "document", result.ID, "version", result.Version)
	} else {
		log.Info("Ingestion finished without a document")
	}
	return result, nil
}

type payloadSet struct {
	order []*payload.TempPayload
	index map[*payload.TempPayload]bool
}

func newPayloadSet() *payloadSet {
	return &payloadSet{index: make(map[*payload.TempPayload]bool)}
}

func (s *payloadSet) add(p *payload.TempPayload) {
	if p == nil || s.index[p] {
		return
	}
	s.index[p] = true
	s.order = append(s.order, p)
}

func (s *payloadSet) closeAll(log *logging.Logger) {
	for _, p := range s.order {
		closeQuietly(p, log)
	}
}
