/**
 * Tesseract OCR engine
 *
 * Free, offline OCR using Tesseract through gosseract. One client per call,
 * since gosseract clients are not safe for concurrent use.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine recognizes the text of one page image
type Engine interface {
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
}

// Tesseract runs gosseract with a fixed set of installed languages
type Tesseract struct {
	languages []string
}

// NewTesseract creates an engine restricted to the installed languages.
// The first language is the fallback for unknown codes.
func NewTesseract(languages []string) (*Tesseract, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("at least one tesseract language is required")
	}
	return &Tesseract{languages: languages}, nil
}

// Language maps a requested code to an installed one, falling back to the first
func (t *Tesseract) Language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, l := range t.languages {
		if l == lang {
			return l
		}
	}
	return t.languages[0]
}

// Recognize performs OCR on an encoded image
func (t *Tesseract) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language(lang)); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}
