/**
 * Storage gateway for ingested documents
 *
 * Copies payloads into their canonical document path and publishes the
 * canonical file into a namespace the OCR worker can read from.
 * Backends:
 * - local: media root on a shared filesystem
 * - gcs: media root plus a Google Cloud Storage bucket
 * - artifact: media root plus the FileProcess artifact API
 */

package storage

import (
	"context"
	"fmt"
	"io"
)

// Gateway is the physical file storage collaborator of the pipeline
type Gateway interface {
	// Copy places the file at srcPath under the canonical key
	Copy(ctx context.Context, srcPath, key string) error
	// Upload makes the canonical file visible to the OCR worker and returns
	// the namespace that locates it
	Upload(ctx context.Context, key string) (string, error)
	// Open reads a file back from a namespace returned by Upload
	Open(ctx context.Context, namespace string) (io.ReadCloser, error)
}

// Options selects and configures a backend
type Options struct {
	Backend        string
	MediaRoot      string
	GCSBucket      string
	ArtifactAPIURL string
}

// New builds the configured backend
func New(ctx context.Context, opts Options) (Gateway, error) {
	local, err := NewLocal(opts.MediaRoot)
	if err != nil {
		return nil, err
	}

	switch opts.Backend {
	case "", "local":
		return local, nil
	case "gcs":
		return NewGCS(ctx, local, opts.GCSBucket)
	case "artifact":
		return NewArtifact(local, NewArtifactClient(opts.ArtifactAPIURL)), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
