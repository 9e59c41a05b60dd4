/**
 * HTTP entry points
 *
 * Web form uploads (WEB) and raw REST uploads (REST_API) feed the ingestion
 * chain. Authentication happens upstream; the caller is named by the
 * X-Username header.
 */

package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/importer"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/pipeline"
	"github.com/adverant/nexus/docingest/internal/store"
)

// UsernameHeader names the authenticated caller
const UsernameHeader = "X-Username"

// Importer runs one ingestion
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*models.Document, error)
}

// Documents resolves existing documents for re-upload
type Documents interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Ping(ctx context.Context) error
}

// Server serves the upload endpoints
type Server struct {
	importer    Importer
	docs        Documents
	maxFileSize int64
	logger      *logging.Logger
}

// NewServer creates the HTTP server. maxFileSize bounds every request body.
func NewServer(imp Importer, docs Documents, maxFileSize int64, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger("API")
	}
	return &Server{importer: imp, docs: docs, maxFileSize: maxFileSize, logger: logger}
}

// Routes returns the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/upload", s.handleWebUpload)
	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/upload", s.handleRESTUpload)
		r.Put("/{id}/upload", s.handleRESTReupload)
	})
	return r
}

type documentResponse struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	FileName  string     `json:"file_name"`
	Version   int        `json:"version"`
	PageCount int        `json:"page_count"`
	Lang      string     `json:"lang"`
	ParentID  *uuid.UUID `json:"parent_id"`
}

type uploadResponse struct {
	Ingested bool              `json:"ingested"`
	Document *documentResponse `json:"document"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.docs.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// handleWebUpload accepts the upload form: file, parent_id, lang, notes,
// skip_ocr and async_per_page.
func (s *Server) handleWebUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.badRequest(w, fmt.Sprintf("invalid upload form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.badRequest(w, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.badRequest(w, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	req, err := requestFromValues(r.FormValue)
	if err != nil {
		s.badRequest(w, err.Error())
		return
	}
	req.Source = data
	req.Processor = pipeline.ProcessorWeb
	req.Name = filepath.Base(header.Filename)
	req.Username = r.Header.Get(UsernameHeader)

	s.ingest(w, r, req)
}

// handleRESTUpload takes the file as the raw request body. New documents
// always land in the caller's inbox.
func (s *Server) handleRESTUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := s.restRequest(w, r)
	if !ok {
		return
	}
	req.ParentID = nil
	s.ingest(w, r, req)
}

// handleRESTReupload stores the body as a new version of an existing document
func (s *Server) handleRESTReupload(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.badRequest(w, "invalid document id")
		return
	}
	doc, err := s.docs.GetDocument(r.Context(), id)
	if stderrors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "document not found"})
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	req, ok := s.restRequest(w, r)
	if !ok {
		return
	}
	req.Document = doc
	if req.Name == "" {
		req.Name = doc.FileName
	}
	s.ingest(w, r, req)
}

func (s *Server) restRequest(w http.ResponseWriter, r *http.Request) (importer.Request, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxFileSize))
	if err != nil {
		s.badRequest(w, fmt.Sprintf("failed to read body: %v", err))
		return importer.Request{}, false
	}
	if len(data) == 0 {
		s.badRequest(w, "empty body")
		return importer.Request{}, false
	}

	q := r.URL.Query()
	req, err := requestFromValues(q.Get)
	if err != nil {
		s.badRequest(w, err.Error())
		return importer.Request{}, false
	}
	req.Source = data
	req.Processor = pipeline.ProcessorREST
	req.Name = dispositionFilename(r.Header.Get("Content-Disposition"))
	if req.Name == "" {
		req.Name = filepath.Base(q.Get("name"))
	}
	if req.Name == "." || req.Name == "/" {
		req.Name = ""
	}
	req.Username = r.Header.Get(UsernameHeader)
	return req, true
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, req importer.Request) {
	doc, err := s.importer.Import(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusAccepted, uploadResponse{Ingested: false})
		return
	}

	status := http.StatusCreated
	if req.Document != nil {
		status = http.StatusOK
	}
	writeJSON(w, status, uploadResponse{Ingested: true, Document: &documentResponse{
		ID:        doc.ID,
		Title:     doc.Title,
		FileName:  doc.FileName,
		Version:   doc.Version,
		PageCount: doc.PageCount,
		Lang:      doc.Lang,
		ParentID:  doc.ParentID,
	}})
}

func requestFromValues(get func(string) string) (importer.Request, error) {
	var req importer.Request
	if v := get("parent_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return req, fmt.Errorf("invalid parent_id %q", v)
		}
		req.ParentID = &id
	}
	req.Lang = get("lang")
	req.Notes = get("notes")

	var err error
	if req.SkipOCR, err = parseFlag(get("skip_ocr")); err != nil {
		return req, fmt.Errorf("invalid skip_ocr: %w", err)
	}
	if req.AsyncPerPage, err = parseFlag(get("async_per_page")); err != nil {
		return req, fmt.Errorf("invalid async_per_page: %w", err)
	}
	return req, nil
}

func parseFlag(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "no":
		return false, nil
	case "on", "yes":
		return true, nil
	}
	return strconv.ParseBool(v)
}

func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": msg})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.ErrorUnsupportedPayloadType:
		status = http.StatusUnsupportedMediaType
	case errors.ErrorDocumentValidation:
		status = http.StatusUnprocessableEntity
	case errors.ErrorStorageIO:
		status = http.StatusBadGateway
	}

	var ie *errors.IngestError
	if stderrors.As(err, &ie) {
		writeJSON(w, status, map[string]interface{}{"error": ie.ToMap()})
		return
	}
	s.logger.Error("Request failed", "error", err)
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
