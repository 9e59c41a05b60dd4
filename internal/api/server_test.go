package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/importer"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/pipeline"
	"github.com/adverant/nexus/docingest/internal/store"
)

type fakeImporter struct {
	reqs []importer.Request
	doc  *models.Document
	err  error
}

func (f *fakeImporter) Import(ctx context.Context, req importer.Request) (*models.Document, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.doc == nil {
		return nil, nil
	}
	d := *f.doc
	if req.Document != nil {
		d.ID = req.Document.ID
		d.Version = req.Document.Version + 1
	}
	return &d, nil
}

type fakeDocs struct {
	docs    map[uuid.UUID]*models.Document
	pingErr error
}

func (f *fakeDocs) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocs) Ping(ctx context.Context) error { return f.pingErr }

func newTestServer(imp *fakeImporter, docs *fakeDocs) http.Handler {
	if docs.docs == nil {
		docs.docs = make(map[uuid.UUID]*models.Document)
	}
	return NewServer(imp, docs, 1<<20, logging.Discard()).Routes()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) uploadResponse {
	t.Helper()
	var out uploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestWebUpload(t *testing.T) {
	imp := &fakeImporter{doc: &models.Document{ID: uuid.New(), Title: "scan.pdf", PageCount: 2}}
	h := newTestServer(imp, &fakeDocs{})
	parent := uuid.New()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "scan.pdf")
	fw.Write([]byte("%PDF-1.4"))
	mw.WriteField("parent_id", parent.String())
	mw.WriteField("lang", "eng")
	mw.WriteField("skip_ocr", "on")
	mw.WriteField("async_per_page", "true")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(UsernameHeader, "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if out := decode(t, rec); !out.Ingested || out.Document.PageCount != 2 {
		t.Errorf("response = %+v", out)
	}

	r := imp.reqs[0]
	if r.Processor != pipeline.ProcessorWeb || r.Name != "scan.pdf" || r.Username != "alice" {
		t.Errorf("request = %+v", r)
	}
	if *r.ParentID != parent || r.Lang != "eng" || !r.SkipOCR || !r.AsyncPerPage {
		t.Errorf("request args = %+v", r)
	}
	if string(r.Source.([]byte)) != "%PDF-1.4" {
		t.Errorf("source = %q", r.Source)
	}
}

func TestWebUploadWithoutFile(t *testing.T) {
	h := newTestServer(&fakeImporter{}, &fakeDocs{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("lang", "eng")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRESTUploadLandsInInbox(t *testing.T) {
	imp := &fakeImporter{doc: &models.Document{ID: uuid.New(), Title: "r.pdf"}}
	h := newTestServer(imp, &fakeDocs{})

	req := httptest.NewRequest(http.MethodPost,
		"/api/documents/upload?parent_id="+uuid.NewString()+"&notes=hi", bytes.NewReader([]byte("%PDF-1.4")))
	req.Header.Set("Content-Disposition", `attachment; filename="r.pdf"`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	r := imp.reqs[0]
	if r.Processor != pipeline.ProcessorREST || r.Name != "r.pdf" || r.ParentID != nil || r.Notes != "hi" {
		t.Errorf("request = %+v", r)
	}
}

func TestRESTReupload(t *testing.T) {
	existing := &models.Document{ID: uuid.New(), Title: "old.pdf", FileName: "old.pdf", Version: 2}
	imp := &fakeImporter{doc: &models.Document{Title: "old.pdf"}}
	h := newTestServer(imp, &fakeDocs{docs: map[uuid.UUID]*models.Document{existing.ID: existing}})

	req := httptest.NewRequest(http.MethodPut,
		fmt.Sprintf("/api/documents/%s/upload", existing.ID), bytes.NewReader([]byte("%PDF-1.4")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if out := decode(t, rec); out.Document.Version != 3 {
		t.Errorf("version = %d", out.Document.Version)
	}
	if imp.reqs[0].Document != existing || imp.reqs[0].Name != "old.pdf" {
		t.Errorf("request = %+v", imp.reqs[0])
	}

	req = httptest.NewRequest(http.MethodPut,
		fmt.Sprintf("/api/documents/%s/upload", uuid.New()), bytes.NewReader([]byte("x")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown document status = %d", rec.Code)
	}
}

func TestUploadNotAccepted(t *testing.T) {
	h := newTestServer(&fakeImporter{}, &fakeDocs{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload?name=notes.txt", bytes.NewReader([]byte("hello")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if out := decode(t, rec); out.Ingested || out.Document != nil {
		t.Errorf("response = %+v", out)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.NewDocumentValidationError("title", "taken", nil), http.StatusUnprocessableEntity},
		{errors.NewStorageIOError("copy", "docs/x", fmt.Errorf("disk full")), http.StatusBadGateway},
		{errors.NewUnsupportedPayloadTypeError(42), http.StatusUnsupportedMediaType},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := newTestServer(&fakeImporter{err: tt.err}, &fakeDocs{})
		req := httptest.NewRequest(http.MethodPost, "/api/documents/upload?name=a.pdf", bytes.NewReader([]byte("x")))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeImporter{}, &fakeDocs{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	h = newTestServer(&fakeImporter{}, &fakeDocs{pingErr: fmt.Errorf("db gone")})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
