package pagecount

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/adverant/nexus/docingest/internal/mimetype"
)

// maxTIFFPages bounds the IFD walk against cyclic or corrupt offset chains
const maxTIFFPages = 10000

// Counter returns the number of pages of the file at path
type Counter func(path string) (int, error)

// Count detects the file type and returns its page count.
// PDFs are counted with pdfcpu, multi-page TIFFs by walking their IFD chain,
// every other file counts as a single page.
func Count(path string) (int, error) {
	mime, err := mimetype.NewMagicClassifier().Classify(path)
	if err != nil {
		return 0, err
	}

	switch mime {
	case "application/pdf":
		n, err := api.PageCountFile(path)
		if err != nil {
			return 0, fmt.Errorf("failed to count PDF pages of %s: %w", path, err)
		}
		return n, nil
	case "image/tiff":
		return countTIFF(path)
	default:
		return 1, nil
	}
}

func countTIFF(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open TIFF %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return 0, fmt.Errorf("failed to read TIFF header: %w", err)
	}

	var order binary.ByteOrder
	switch string(header[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("invalid TIFF byte order marker %q", header[:2])
	}

	offset := int64(order.Uint32(header[4:8]))
	seen := make(map[int64]bool)
	pages := 0
	buf := make([]byte, 4)

	for offset != 0 {
		if seen[offset] || pages >= maxTIFFPages {
			return 0, fmt.Errorf("corrupt TIFF IFD chain at offset %d", offset)
		}
		seen[offset] = true

		if _, err := f.ReadAt(buf[:2], offset); err != nil {
			return 0, fmt.Errorf("failed to read IFD entry count at %d: %w", offset, err)
		}
		entries := int64(order.Uint16(buf[:2]))
		pages++

		if _, err := f.ReadAt(buf, offset+2+entries*12); err != nil {
			return 0, fmt.Errorf("failed to read next IFD offset: %w", err)
		}
		offset = int64(order.Uint32(buf))
	}

	if pages == 0 {
		return 0, fmt.Errorf("TIFF %s has no image directories", path)
	}
	return pages, nil
}
