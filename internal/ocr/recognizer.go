package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/mimetype"
	"github.com/adverant/nexus/docingest/internal/models"
	"github.com/adverant/nexus/docingest/internal/pagecount"
)

// Opener reads a file back from an OCR namespace
type Opener interface {
	Open(ctx context.Context, namespace string) (io.ReadCloser, error)
}

// PageTextStore persists recognized page text
type PageTextStore interface {
	SavePageText(ctx context.Context, docID uuid.UUID, version, number int, text string) error
}

// pageImagesFunc returns the encoded images of one PDF page
type pageImagesFunc func(path string, page int, workDir string) ([][]byte, error)

// Recognizer handles OCR task messages: it fetches the canonical file from
// its namespace, recognizes the requested pages and stores their text under
// the message's target version.
type Recognizer struct {
	opener     Opener
	store      PageTextStore
	engine     Engine
	classifier mimetype.Classifier
	counter    pagecount.Counter
	pdfImages  pageImagesFunc
	tempDir    string
	logger     *logging.Logger
}

// NewRecognizer wires a recognizer
func NewRecognizer(opener Opener, store PageTextStore, engine Engine, tempDir string, logger *logging.Logger) *Recognizer {
	return &Recognizer{
		opener:     opener,
		store:      store,
		engine:     engine,
		classifier: mimetype.NewMagicClassifier(),
		counter:    pagecount.Count,
		pdfImages:  extractPDFPageImages,
		tempDir:    tempDir,
		logger:     logger,
	}
}

// HandleOCR implements queue.OCRHandler
func (r *Recognizer) HandleOCR(ctx context.Context, msg *models.OCRTaskMessage) error {
	start := time.Now()
	log := r.logger.With("document", msg.DocumentID, "version", msg.StoredVersion)

	workDir, err := os.MkdirTemp(r.tempDir, "ocr-*")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	path, err := r.fetch(ctx, msg, workDir)
	if err != nil {
		return err
	}

	mime, err := r.classifier.Classify(path)
	if err != nil {
		return errors.NewOCRFailedError(msg.DocumentID.String(), pageOf(msg), err)
	}

	pages, err := r.pages(msg, path, mime)
	if err != nil {
		return errors.NewOCRFailedError(msg.DocumentID.String(), pageOf(msg), err)
	}

	for _, page := range pages {
		text, err := r.recognizePage(ctx, path, mime, page, msg.Lang, workDir)
		if err != nil {
			return errors.NewOCRFailedError(msg.DocumentID.String(), page, err)
		}
		if err := r.store.SavePageText(ctx, msg.DocumentID, msg.StoredVersion, page, text); err != nil {
			return err
		}
		log.Debug("Page recognized", "page", page, "chars", len(text))
	}

	log.Info("OCR completed", "mime", mime, "pages", len(pages), "duration", time.Since(start))
	return nil
}

// fetch copies the namespace content into workDir under the message file name
func (r *Recognizer) fetch(ctx context.Context, msg *models.OCRTaskMessage, workDir string) (string, error) {
	rc, err := r.opener.Open(ctx, msg.Namespace)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	path := filepath.Join(workDir, filepath.Base(msg.FileName))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create local copy: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", errors.NewStorageIOError("open", msg.Namespace, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write local copy: %w", err)
	}
	return path, nil
}

// pages lists the page numbers a message asks for
func (r *Recognizer) pages(msg *models.OCRTaskMessage, path, mime string) ([]int, error) {
	if msg.Page != nil {
		return []int{*msg.Page}, nil
	}
	if mime != "application/pdf" {
		return []int{1}, nil
	}
	n, err := r.counter(path)
	if err != nil {
		return nil, err
	}
	pages := make([]int, n)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages, nil
}

func (r *Recognizer) recognizePage(ctx context.Context, path, mime string, page int, lang, workDir string) (string, error) {
	if !strings.HasPrefix(mime, "image/") && mime != "application/pdf" {
		return "", fmt.Errorf("cannot OCR %s", mime)
	}

	var images [][]byte
	if mime == "application/pdf" {
		var err error
		images, err = r.pdfImages(path, page, workDir)
		if err != nil {
			return "", err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		images = [][]byte{data}
	}

	texts := make([]string, 0, len(images))
	for _, img := range images {
		text, err := r.engine.Recognize(ctx, img, lang)
		if err != nil {
			return "", err
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// extractPDFPageImages extracts the images embedded in one page. Scanned PDFs
// carry one image per page; born-digital pages may carry none.
func extractPDFPageImages(path string, page int, workDir string) ([][]byte, error) {
	outDir := filepath.Join(workDir, "page-"+strconv.Itoa(page))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if err := api.ExtractImagesFile(path, outDir, []string{strconv.Itoa(page)}, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images of page %d: %w", page, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	images := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

func pageOf(msg *models.OCRTaskMessage) int {
	if msg.Page != nil {
		return *msg.Page
	}
	return 0
}
