package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/adverant/nexus/docingest/internal/errors"
)

const (
	gcsScheme         = "gs://"
	gcsMaxRetries     = 4
	gcsInitialBackoff = 1 * time.Second
	gcsWriteTimeout   = 50 * time.Second
)

// GCS keeps the canonical copy on the media root and publishes it to a bucket
// for OCR workers that do not share the filesystem
type GCS struct {
	*Local
	client *storage.Client
	bucket string
}

// NewGCS creates a storage client using application default credentials
func NewGCS(ctx context.Context, local *Local, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCS{Local: local, client: client, bucket: bucket}, nil
}

// Upload writes the canonical file to gs://<bucket>/<key>. An object that
// already exists is left untouched.
func (g *GCS) Upload(ctx context.Context, key string) (string, error) {
	localPath, err := g.Resolve(key)
	if err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}

	if err := g.uploadFile(ctx, localPath, key); err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}
	return gcsScheme + g.bucket + "/" + key, nil
}

func (g *GCS) uploadFile(ctx context.Context, localPath, object string) error {
	backoff := gcsInitialBackoff
	var lastErr error

	for i := 0; i < gcsMaxRetries; i++ {
		err := func() error {
			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer f.Close()

			writeCtx, cancel := context.WithTimeout(ctx, gcsWriteTimeout)
			defer cancel()

			w := g.client.Bucket(g.bucket).Object(object).
				If(storage.Conditions{DoesNotExist: true}).
				NewWriter(writeCtx)

			if _, err := io.Copy(w, f); err != nil {
				_ = w.Close()
				return fmt.Errorf("copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to finalize GCS upload: %w", err)
			}
			return nil
		}()

		if err == nil || isPreconditionFailed(err) {
			return nil
		}

		lastErr = err
		log.Printf("[Storage] GCS upload failed, will retry: object=%s, attempt=%d/%d, backoff=%s, error=%v",
			object, i+1, gcsMaxRetries, backoff, err)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", object, lastErr)
}

// Open reads gs:// namespaces from the bucket and anything else from the media root
func (g *GCS) Open(ctx context.Context, namespace string) (io.ReadCloser, error) {
	bucket, object, ok := parseGSURL(namespace)
	if !ok {
		return g.Local.Open(ctx, namespace)
	}
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, errors.NewStorageIOError("open", namespace, err)
	}
	return r, nil
}

// Close releases the storage client
func (g *GCS) Close() error {
	return g.client.Close()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return stderrors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// parseGSURL splits gs://bucket/object
func parseGSURL(namespace string) (bucket, object string, ok bool) {
	if !strings.HasPrefix(namespace, gcsScheme) {
		return "", "", false
	}
	bucket, object, found := strings.Cut(strings.TrimPrefix(namespace, gcsScheme), "/")
	if !found || bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}
