package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/config"
	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/mimetype"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/payload"
	"github.com/adverant/nexus/docingest/internal/store"
)

// fakeStore keeps users, inboxes and documents in memory
type fakeStore struct {
	admin   *models.User
	users   map[string]*models.User
	inboxes map[uuid.UUID]*models.Folder
	docs    map[uuid.UUID]*models.Document
	saves   int
}

func newFakeStore() *fakeStore {
	admin := &models.User{ID: uuid.New(), Username: "admin", IsSuperuser: true}
	return &fakeStore{
		admin:   admin,
		users:   map[string]*models.User{"admin": admin},
		inboxes: make(map[uuid.UUID]*models.Folder),
		docs:    make(map[uuid.UUID]*models.Document),
	}
}

func (s *fakeStore) FirstSuperuser(ctx context.Context) (*models.User, error) {
	if s.admin == nil {
		return nil, store.ErrNotFound
	}
	return s.admin, nil
}

func (s *fakeStore) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GetOrCreateInbox(ctx context.Context, userID uuid.UUID) (*models.Folder, error) {
	if f, ok := s.inboxes[userID]; ok {
		return f, nil
	}
	f := &models.Folder{ID: uuid.New(), Title: models.InboxTitle, UserID: userID}
	s.inboxes[userID] = f
	return f, nil
}

func (s *fakeStore) FindDocumentByTitle(ctx context.Context, parentID uuid.UUID, title string) (*models.Document, error) {
	for _, d := range s.docs {
		if *d.ParentID == parentID && d.Title == title {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if _, err := s.FindDocumentByTitle(ctx, *doc.ParentID, doc.Title); err == nil {
		return errors.NewDocumentValidationError("title", "already exists", nil)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeStore) SaveVersion(ctx context.Context, doc *models.Document) error {
	cur, ok := s.docs[doc.ID]
	if !ok || cur.Version != doc.Version-1 {
		return errors.NewDocumentValidationError("version", "stale", nil)
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	s.saves++
	return nil
}

type fakeStorage struct {
	copies    []string
	copyErr   error
	uploadErr error
}

func (s *fakeStorage) Copy(ctx context.Context, srcPath, key string) error {
	if s.copyErr != nil {
		return s.copyErr
	}
	if _, err := os.Stat(srcPath); err != nil {
		return err
	}
	s.copies = append(s.copies, key)
	return nil
}

func (s *fakeStorage) Upload(ctx context.Context, key string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return key, nil
}

// fakeDispatcher drops messages whose key was already queued, like the
// brokers do
type fakeDispatcher struct {
	msgs []models.OCRTaskMessage
	keys map[string]bool
	err  error
}

func (d *fakeDispatcher) Enqueue(ctx context.Context, msg *models.OCRTaskMessage) error {
	if d.err != nil {
		return d.err
	}
	if d.keys == nil {
		d.keys = make(map[string]bool)
	}
	if d.keys[msg.Key()] {
		return nil
	}
	d.keys[msg.Key()] = true
	d.msgs = append(d.msgs, *msg)
	return nil
}

type fakeEvents struct {
	kinds []string
}

func (e *fakeEvents) DocumentIngested(ctx context.Context, doc *models.Document, kind, runID string) error {
	if runID == "" {
		return fmt.Errorf("missing run id")
	}
	e.kinds = append(e.kinds, kind)
	return nil
}

type harness struct {
	store      *fakeStore
	storage    *fakeStorage
	dispatcher *fakeDispatcher
	events     *fakeEvents
	deps       Deps
}

func newHarness() *harness {
	h := &harness{
		store:      newFakeStore(),
		storage:    &fakeStorage{},
		dispatcher: &fakeDispatcher{},
		events:     &fakeEvents{},
	}
	h.deps = Deps{
		Store:       h.store,
		Storage:     h.storage,
		Dispatcher:  h.dispatcher,
		Classifier:  mimetype.NewMagicClassifier(),
		Events:      h.events,
		Logger:      logging.Discard(),
		Languages:   []string{"deu", "eng"},
		DefaultLang: "deu",
	}
	return h
}

func (h *harness) chain(t *testing.T, stages ...config.StageConfig) *Chain {
	t.Helper()
	if len(stages) == 0 {
		stages = []config.StageConfig{{ID: DefaultStageID}}
	}
	pc := &config.PipelineConfig{Stages: stages, MimeTypes: config.DefaultMimeTypes}
	c, err := NewChain(pc, DefaultRegistry(), h.deps)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func pdfPayload(t *testing.T, pages int) *payload.TempPayload {
	t.Helper()
	p, err := payload.FromBytes([]byte("%PDF-1.4\n%test\n"),
		payload.WithTempDir(t.TempDir()),
		payload.WithPageCounter(func(string) (int, error) { return pages, nil }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func textPayload(t *testing.T) *payload.TempPayload {
	t.Helper()
	p, err := payload.FromBytes([]byte("just some plain text"), payload.WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func named(name string) ApplyArgs {
	a := DefaultApplyArgs()
	a.Name = name
	return a
}

func TestScenarioNewWebUpload(t *testing.T) {
	h := newHarness()
	c := h.chain(t)

	doc, err := c.Run(context.Background(),
		InitArgs{Payload: pdfPayload(t, 3), Processor: ProcessorWeb}, named("invoice.pdf"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if doc == nil {
		t.Fatal("expected a document")
	}
	if doc.Version != 0 || doc.PageCount != 3 || doc.UserID != h.store.admin.ID {
		t.Errorf("doc = %+v", doc)
	}
	if *doc.ParentID != h.store.inboxes[h.store.admin.ID].ID {
		t.Error("document should land in the owner's inbox")
	}
	if len(h.dispatcher.msgs) != 1 {
		t.Fatalf("dispatched %d messages, want 1", len(h.dispatcher.msgs))
	}
	msg := h.dispatcher.msgs[0]
	if msg.SourceVersion != 0 || msg.TargetVersion != 1 || msg.StoredVersion != 0 || msg.Page != nil {
		t.Errorf("msg = %+v", msg)
	}
	if msg.Lang != "deu" {
		t.Errorf("lang = %s, want deu", msg.Lang)
	}
	if len(h.storage.copies) != 1 || h.storage.copies[0] != doc.Path(0) {
		t.Errorf("copies = %v", h.storage.copies)
	}
	if msg.Namespace != doc.Path(0) {
		t.Errorf("namespace = %s", msg.Namespace)
	}
	if fmt.Sprint(h.events.kinds) != "[WEB]" {
		t.Errorf("events = %v", h.events.kinds)
	}
}

func TestScenarioReingestExistingDocument(t *testing.T) {
	h := newHarness()
	parent := uuid.New()
	existing := &models.Document{
		ID: uuid.New(), Title: "report.pdf", FileName: "report.pdf", PageCount: 2,
		Lang: "eng", Version: 2, UserID: h.store.admin.ID, ParentID: &parent,
	}
	stored := *existing
	h.store.docs[existing.ID] = &stored

	c := h.chain(t)
	doc, err := c.Run(context.Background(),
		InitArgs{Payload: pdfPayload(t, 5), Processor: ProcessorREST, Doc: existing}, named("report.pdf"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if doc.Version != 3 || doc.PageCount != 5 {
		t.Errorf("doc version=%d pages=%d", doc.Version, doc.PageCount)
	}
	if doc.Lang != "eng" {
		t.Errorf("existing language should be kept, got %s", doc.Lang)
	}
	if h.store.saves != 1 {
		t.Errorf("saves = %d", h.store.saves)
	}
	msg := h.dispatcher.msgs[0]
	if msg.SourceVersion != 2 || msg.TargetVersion != 3 || msg.StoredVersion != 3 {
		t.Errorf("msg versions = %d -> %d (stored %d)", msg.SourceVersion, msg.TargetVersion, msg.StoredVersion)
	}
	if h.storage.copies[0] != doc.Path(3) {
		t.Errorf("copied to %s", h.storage.copies[0])
	}
}

func TestScenarioIncompatiblePayload(t *testing.T) {
	h := newHarness()
	c := h.chain(t)

	doc, err := c.Run(context.Background(),
		InitArgs{Payload: textPayload(t), Processor: ProcessorIMAP}, DefaultApplyArgs())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if doc != nil {
		t.Errorf("doc = %+v, want nil", doc)
	}
	if len(h.storage.copies) != 0 || len(h.dispatcher.msgs) != 0 {
		t.Error("incompatible payload must not be copied or dispatched")
	}
}

// scriptedStage records its calls and returns canned results
type scriptedStage struct {
	name     string
	admitErr error
	doc      *models.Document
	initOv   InitOverride
	applyOv  ApplyOverride
	log      *[]string
	seen     *[]ApplyArgs
	seenInit *[]InitArgs
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Admit(ctx context.Context, args InitArgs) (Handle, error) {
	*s.log = append(*s.log, "admit:"+s.name)
	if s.seenInit != nil {
		*s.seenInit = append(*s.seenInit, args)
	}
	if s.admitErr != nil {
		return nil, s.admitErr
	}
	return s, nil
}

func (s *scriptedStage) Apply(ctx context.Context, args ApplyArgs) (*models.Document, error) {
	*s.log = append(*s.log, "apply:"+s.name)
	if s.seen != nil {
		*s.seen = append(*s.seen, args)
	}
	return s.doc, nil
}

func (s *scriptedStage) Overrides() (InitOverride, ApplyOverride) {
	return s.initOv, s.applyOv
}

func scriptedChain(t *testing.T, stages ...*scriptedStage) *Chain {
	t.Helper()
	reg := NewRegistry()
	var cfg []config.StageConfig
	for _, s := range stages {
		s := s
		reg.Register(s.name, func(StageSpec, Deps) (Stage, error) { return s, nil })
		cfg = append(cfg, config.StageConfig{ID: s.name})
	}
	c, err := NewChain(&config.PipelineConfig{Stages: cfg}, reg, Deps{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func TestScenarioMalformedInitStopsChain(t *testing.T) {
	var log []string
	first := &models.Document{ID: uuid.New()}
	c := scriptedChain(t,
		&scriptedStage{name: "one", doc: first, log: &log},
		&scriptedStage{name: "two", admitErr: errors.NewMalformedInitError("two", "bad"), log: &log},
		&scriptedStage{name: "three", doc: &models.Document{ID: uuid.New()}, log: &log},
	)

	doc, err := c.Run(context.Background(),
		InitArgs{Payload: textPayload(t), Processor: ProcessorLocal}, DefaultApplyArgs())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if doc != first {
		t.Errorf("doc = %+v, want first stage's document", doc)
	}
	if fmt.Sprint(log) != "[admit:one apply:one admit:two]" {
		t.Errorf("calls = %v", log)
	}
}

func TestIncompatibleStageDoesNotMutateArgs(t *testing.T) {
	var log []string
	var seen []ApplyArgs
	c := scriptedChain(t,
		&scriptedStage{
			name:     "picky",
			admitErr: errors.NewIncompatiblePayloadError("picky", "text/plain"),
			applyOv:  ApplyOverride{Lang: To("eng")},
			log:      &log,
		},
		&scriptedStage{name: "after", log: &log, seen: &seen},
	)

	apply := DefaultApplyArgs()
	apply.Lang = "deu"
	if _, err := c.Run(context.Background(), InitArgs{Payload: textPayload(t), Processor: ProcessorWeb}, apply); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0].Lang != "deu" {
		t.Errorf("later stage saw %+v", seen)
	}
}

func TestOverridesReachLaterStages(t *testing.T) {
	var log []string
	var seen []ApplyArgs
	c := scriptedChain(t,
		&scriptedStage{name: "tagger", applyOv: ApplyOverride{Lang: To("eng"), SkipOCR: To(true)}, log: &log},
		&scriptedStage{name: "eraser", applyOv: ApplyOverride{Notes: To("")}, log: &log},
		&scriptedStage{name: "reader", log: &log, seen: &seen},
	)

	apply := DefaultApplyArgs()
	apply.Notes = "from mail"
	apply.Name = "kept.pdf"
	if _, err := c.Run(context.Background(), InitArgs{Payload: textPayload(t), Processor: ProcessorWeb}, apply); err != nil {
		t.Fatal(err)
	}
	got := seen[0]
	if got.Lang != "eng" || !got.SkipOCR || got.Notes != "" || got.Name != "kept.pdf" {
		t.Errorf("merged args = %+v", got)
	}
}

func TestDispatchCount(t *testing.T) {
	tests := []struct {
		name     string
		perPage  bool
		skipOCR  bool
		wantMsgs int
	}{
		{"whole document", false, false, 1},
		{"per page", true, false, 4},
		{"skip whole document", false, true, 0},
		{"skip per page", true, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			c := h.chain(t)
			apply := named("scan.pdf")
			apply.AsyncPerPage = tt.perPage
			apply.SkipOCR = tt.skipOCR

			if _, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 4), Processor: ProcessorWeb}, apply); err != nil {
				t.Fatal(err)
			}
			if len(h.dispatcher.msgs) != tt.wantMsgs {
				t.Fatalf("dispatched %d, want %d", len(h.dispatcher.msgs), tt.wantMsgs)
			}
			if tt.perPage && !tt.skipOCR {
				for i, m := range h.dispatcher.msgs {
					if m.Page == nil || *m.Page != i+1 {
						t.Errorf("message %d page = %v", i, m.Page)
					}
				}
			}
		})
	}
}

func TestDispatchFailureDoesNotFailIngestion(t *testing.T) {
	h := newHarness()
	h.dispatcher.err = fmt.Errorf("redis down")
	c := h.chain(t)

	doc, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorWeb}, named("a.pdf"))
	if err != nil || doc == nil {
		t.Fatalf("doc = %v, err = %v", doc, err)
	}
}

func TestPayloadReleasedOnce(t *testing.T) {
	h := newHarness()
	c := h.chain(t)
	p := pdfPayload(t, 1)

	if _, err := c.Run(context.Background(), InitArgs{Payload: p, Processor: ProcessorWeb}, named("a.pdf")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.Path()); !os.IsNotExist(err) {
		t.Errorf("payload file still present: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestValidationFailureWritesNothing(t *testing.T) {
	h := newHarness()
	c := h.chain(t)

	_, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 2), Processor: ProcessorWeb}, named("bad/name.pdf"))
	if !errors.HasCode(err, errors.ErrorDocumentValidation) {
		t.Fatalf("err = %v", err)
	}
	if len(h.store.docs) != 0 || len(h.storage.copies) != 0 || len(h.dispatcher.msgs) != 0 {
		t.Error("nothing should be persisted after a validation failure")
	}
}

func TestUnknownUserIsValidationFailure(t *testing.T) {
	h := newHarness()
	c := h.chain(t)
	apply := named("a.pdf")
	apply.Username = "ghost"

	_, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorREST}, apply)
	if !errors.HasCode(err, errors.ErrorDocumentValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateDisabledWithoutDocument(t *testing.T) {
	h := newHarness()
	c := h.chain(t)
	apply := named("a.pdf")
	apply.CreateDocument = false

	doc, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorLocal}, apply)
	if err != nil || doc != nil {
		t.Fatalf("doc = %v, err = %v", doc, err)
	}
	if len(h.store.docs) != 0 {
		t.Error("no document should be created")
	}
}

func TestSupersedeVersionsDocumentWithSameTitle(t *testing.T) {
	h := newHarness()
	c := h.chain(t, config.StageConfig{ID: SupersedeStageID}, config.StageConfig{ID: DefaultStageID})

	first, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorLocal}, named("weekly.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 2), Processor: ProcessorLocal}, named("weekly.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Version != 1 || second.PageCount != 2 {
		t.Errorf("second = %+v", second)
	}
	if len(h.store.docs) != 1 {
		t.Errorf("documents = %d, want 1", len(h.store.docs))
	}
}

func TestNewChainStageLoading(t *testing.T) {
	h := newHarness()

	_, err := NewChain(&config.PipelineConfig{Stages: []config.StageConfig{{ID: "nope"}, {ID: DefaultStageID}}},
		DefaultRegistry(), h.deps)
	if !errors.HasCode(err, errors.ErrorStageLoadFailed) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "known: default, supersede") {
		t.Errorf("error should list the registered stages: %v", err)
	}

	c, err := NewChain(&config.PipelineConfig{Stages: []config.StageConfig{{ID: "nope", Optional: true}, {ID: DefaultStageID}}},
		DefaultRegistry(), h.deps)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(c.Stages()) != "[default]" {
		t.Errorf("stages = %v", c.Stages())
	}

	_, err = NewChain(&config.PipelineConfig{Stages: []config.StageConfig{{ID: "nope", Optional: true}}},
		DefaultRegistry(), h.deps)
	if err == nil {
		t.Error("a chain without stages should not load")
	}
}

func TestResolveLang(t *testing.T) {
	owner := &models.User{OCRLanguage: "eng"}
	accepted := []string{"deu", "eng"}
	tests := []struct {
		requested string
		owner     *models.User
		want      string
	}{
		{"ENG", nil, "eng"},
		{"", owner, "eng"},
		{"", nil, "deu"},
		{"fra", nil, "deu"},
	}
	for _, tt := range tests {
		if got := resolveLang(tt.requested, tt.owner, accepted, "deu"); got != tt.want {
			t.Errorf("resolveLang(%q) = %s, want %s", tt.requested, got, tt.want)
		}
	}
}

func TestReuploadAfterCreateDispatchesDistinctWork(t *testing.T) {
	h := newHarness()
	c := h.chain(t, config.StageConfig{ID: SupersedeStageID}, config.StageConfig{ID: DefaultStageID})

	first, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorWeb}, named("scan.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorWeb}, named("scan.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.Version != 1 {
		t.Fatalf("second = %+v", second)
	}

	if len(h.dispatcher.msgs) != 2 {
		t.Fatalf("dispatched %d messages, want 2", len(h.dispatcher.msgs))
	}
	created, reuploaded := h.dispatcher.msgs[0], h.dispatcher.msgs[1]
	if created.Key() == reuploaded.Key() {
		t.Errorf("both uploads share key %s", created.Key())
	}
	if created.StoredVersion != 0 || created.Namespace != second.Path(0) {
		t.Errorf("create msg = %+v", created)
	}
	if reuploaded.StoredVersion != 1 || reuploaded.Namespace != second.Path(1) {
		t.Errorf("re-upload msg = %+v", reuploaded)
	}
}

func TestDefaultStageHandsDocumentToLaterStages(t *testing.T) {
	h := newHarness()
	var log []string
	var inits []InitArgs
	after := &scriptedStage{name: "after", log: &log, seenInit: &inits}

	reg := DefaultRegistry()
	reg.Register(after.name, func(StageSpec, Deps) (Stage, error) { return after, nil })
	pc := &config.PipelineConfig{
		Stages:    []config.StageConfig{{ID: DefaultStageID}, {ID: after.name}},
		MimeTypes: config.DefaultMimeTypes,
	}
	c, err := NewChain(pc, reg, h.deps)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Run(context.Background(), InitArgs{Payload: pdfPayload(t, 1), Processor: ProcessorWeb}, named("a.pdf")); err != nil {
		t.Fatal(err)
	}
	if len(inits) != 1 || inits[0].Doc == nil {
		t.Fatalf("later stage saw %+v", inits)
	}
	var stored *models.Document
	for _, d := range h.store.docs {
		stored = d
	}
	if inits[0].Doc.ID != stored.ID {
		t.Errorf("later stage got document %s, want %s", inits[0].Doc.ID, stored.ID)
	}
}

func TestStorageFailureAbortsAndReleasesPayload(t *testing.T) {
	tests := []struct {
		name      string
		copyErr   error
		uploadErr error
	}{
		{"copy", fmt.Errorf("disk full"), nil},
		{"upload", nil, fmt.Errorf("bucket gone")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.storage.copyErr = tt.copyErr
			h.storage.uploadErr = tt.uploadErr
			c := h.chain(t)
			p := pdfPayload(t, 1)

			doc, err := c.Run(context.Background(), InitArgs{Payload: p, Processor: ProcessorWeb}, named("a.pdf"))
			if !errors.HasCode(err, errors.ErrorStorageIO) {
				t.Fatalf("err = %v, want %s", err, errors.ErrorStorageIO)
			}
			if doc != nil {
				t.Errorf("doc = %+v, want nil", doc)
			}
			if _, err := os.Stat(p.Path()); !os.IsNotExist(err) {
				t.Errorf("payload file still present: %v", err)
			}
			if len(h.dispatcher.msgs) != 0 {
				t.Error("nothing should be dispatched")
			}
		})
	}
}

func TestMalformedInitReleasesPayload(t *testing.T) {
	var log []string
	c := scriptedChain(t,
		&scriptedStage{name: "broken", admitErr: errors.NewMalformedInitError("broken", "bad"), log: &log},
	)
	p := textPayload(t)

	doc, err := c.Run(context.Background(), InitArgs{Payload: p, Processor: ProcessorLocal}, DefaultApplyArgs())
	if err != nil || doc != nil {
		t.Fatalf("doc = %v, err = %v", doc, err)
	}
	if _, err := os.Stat(p.Path()); !os.IsNotExist(err) {
		t.Errorf("payload file still present: %v", err)
	}
}

func TestLastAppliedStageResultWins(t *testing.T) {
	var log []string
	c := scriptedChain(t,
		&scriptedStage{name: "maker", doc: &models.Document{ID: uuid.New()}, log: &log},
		&scriptedStage{name: "eraser", log: &log},
	)

	doc, err := c.Run(context.Background(), InitArgs{Payload: textPayload(t), Processor: ProcessorWeb}, DefaultApplyArgs())
	if err != nil {
		t.Fatal(err)
	}
	if doc != nil {
		t.Errorf("doc = %+v, want the last stage's nil", doc)
	}
}
