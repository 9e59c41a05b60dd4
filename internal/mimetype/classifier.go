/**
 * MIME classification for ingested payloads
 *
 * Detects the MIME type from magic bytes first and falls back to
 * net/http content sniffing for anything the magic table does not know.
 */

package mimetype

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const sniffLen = 512

// Classifier returns the MIME type of the file at path
type Classifier interface {
	Classify(path string) (string, error)
}

// MagicClassifier classifies files by their leading bytes
type MagicClassifier struct{}

// NewMagicClassifier creates a magic-byte classifier
func NewMagicClassifier() *MagicClassifier {
	return &MagicClassifier{}
}

// Classify reads the head of the file and detects its MIME type
func (c *MagicClassifier) Classify(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for classification: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read %s for classification: %w", path, err)
	}
	return Detect(head[:n]), nil
}

// Detect returns the MIME type of data without parameters
func Detect(data []byte) string {
	if mime := detectFromMagicBytes(data); mime != "" {
		return mime
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

// detectFromMagicBytes detects the actual MIME type from file content magic bytes
func detectFromMagicBytes(data []byte) string {
	if len(data) < 4 {
		return ""
	}

	// PDF: %PDF-
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}

	// PNG: 0x89 'P' 'N' 'G' 0x0D 0x0A 0x1A 0x0A
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png"
	}

	// JPEG: 0xFF 0xD8 0xFF
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}) {
		return "image/jpeg"
	}

	// GIF: 'G' 'I' 'F' '8' ('7' or '9') 'a'
	if bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")) {
		return "image/gif"
	}

	// TIFF: 'I' 'I' 0x2A 0x00 (little-endian) or 'M' 'M' 0x00 0x2A (big-endian)
	if bytes.HasPrefix(data, []byte{0x49, 0x49, 0x2A, 0x00}) || bytes.HasPrefix(data, []byte{0x4D, 0x4D, 0x00, 0x2A}) {
		return "image/tiff"
	}

	// WebP: 'R' 'I' 'F' 'F' .... 'W' 'E' 'B' 'P'
	if len(data) > 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP" {
		return "image/webp"
	}

	// ZIP (and Office documents, EPUB): 'P' 'K' 0x03 0x04
	if bytes.HasPrefix(data, []byte{0x50, 0x4B, 0x03, 0x04}) {
		if bytes.Contains(data[:min(100, len(data))], []byte("mimetypeapplication/epub+zip")) {
			return "application/epub+zip"
		}
		return "application/zip"
	}

	return ""
}

// Allowed reports whether mime is present in allowList
func Allowed(mime string, allowList []string) bool {
	for _, m := range allowList {
		if strings.EqualFold(m, mime) {
			return true
		}
	}
	return false
}
