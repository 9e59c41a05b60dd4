/**
 * Artifact backend
 *
 * Publishes canonical document files through the FileProcess API
 * /fileprocess/api/files endpoints. The API picks the physical backend
 * (PostgreSQL buffer, MinIO, Google Drive) by size and returns an artifact
 * ID plus a download URL. The OCR worker resolves the artifact ID back to
 * the download URL.
 */

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/mimetype"
)

const (
	artifactScheme        = "artifact:"
	artifactSourceService = "docingest"
)

// ArtifactClient handles communication with the FileProcess API for artifact storage
type ArtifactClient struct {
	baseURL    string
	httpClient *http.Client
}

// ArtifactUploadRequest represents a file upload request
type ArtifactUploadRequest struct {
	FileBuffer []byte
	Filename   string
	SourceID   string                 // canonical storage key
	TTLDays    int                    // 0 = ~100 years
	Metadata   map[string]interface{} // optional
}

// ArtifactResponse is returned by upload and lookup
type ArtifactResponse struct {
	Success  bool `json:"success"`
	Artifact struct {
		ID             string `json:"id"`
		Filename       string `json:"filename"`
		FileSize       int64  `json:"file_size"`
		MimeType       string `json:"mime_type"`
		StorageBackend string `json:"storage_backend"`
		DownloadURL    string `json:"download_url"`
	} `json:"artifact,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewArtifactClient creates a new artifact client
func NewArtifactClient(baseURL string) *ArtifactClient {
	return &ArtifactClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // 5 minutes for large file uploads
		},
	}
}

// UploadArtifact uploads a file and returns the stored artifact
func (c *ArtifactClient) UploadArtifact(ctx context.Context, req *ArtifactUploadRequest) (*ArtifactResponse, error) {
	if len(req.FileBuffer) == 0 {
		return nil, fmt.Errorf("file buffer is required: received empty buffer")
	}
	if req.Filename == "" {
		return nil, fmt.Errorf("filename is required: received empty string")
	}
	if req.SourceID == "" {
		return nil, fmt.Errorf("source_id is required: identifies the document version")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file part: %w", err)
	}
	if _, err := part.Write(req.FileBuffer); err != nil {
		return nil, fmt.Errorf("failed to write file data to form: %w", err)
	}

	ttlDays := req.TTLDays
	if ttlDays <= 0 {
		ttlDays = 36500
	}
	fields := map[string]string{
		"source_service": artifactSourceService,
		"source_id":      req.SourceID,
		"mime_type":      mimetype.Detect(req.FileBuffer),
		"ttl_days":       fmt.Sprintf("%d", ttlDays),
	}
	if len(req.Metadata) > 0 {
		metadataJSON, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
		}
		fields["metadata"] = string(metadataJSON)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fileprocess/api/files/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	startTime := time.Now()
	result, err := c.do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("artifact upload failed after %v: %w", time.Since(startTime), err)
	}
	if result.Artifact.ID == "" {
		return nil, fmt.Errorf("artifact upload succeeded but returned empty artifact ID")
	}

	log.Printf("[ArtifactClient] Artifact uploaded: id=%s, storage=%s, size=%d, duration=%v",
		result.Artifact.ID, result.Artifact.StorageBackend, len(req.FileBuffer), time.Since(startTime))

	return result, nil
}

// GetArtifactByID retrieves artifact metadata by ID
func (c *ArtifactClient) GetArtifactByID(ctx context.Context, artifactID string) (*ArtifactResponse, error) {
	if artifactID == "" {
		return nil, fmt.Errorf("artifact ID is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fileprocess/api/files/"+artifactID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create get artifact request: %w", err)
	}
	return c.do(req)
}

// Download streams the content behind a download URL
func (c *ArtifactClient) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifact download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("artifact download returned HTTP %d: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}

func (c *ArtifactClient) do(req *http.Request) (*ArtifactResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result ArtifactResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse artifact response: %w (raw response: %s)", err, string(respBody))
	}
	if !result.Success {
		return nil, fmt.Errorf("artifact API returned success=false: %s", result.Error)
	}
	return &result, nil
}

// Artifact keeps the canonical copy on the media root and publishes it as an artifact
type Artifact struct {
	*Local
	client *ArtifactClient
}

// NewArtifact wires the artifact backend
func NewArtifact(local *Local, client *ArtifactClient) *Artifact {
	return &Artifact{Local: local, client: client}
}

// Upload publishes the canonical file and returns artifact:<id>
func (a *Artifact) Upload(ctx context.Context, key string) (string, error) {
	localPath, err := a.Resolve(key)
	if err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}

	resp, err := a.client.UploadArtifact(ctx, &ArtifactUploadRequest{
		FileBuffer: data,
		Filename:   path.Base(key),
		SourceID:   key,
	})
	if err != nil {
		return "", errors.NewStorageIOError("upload", key, err)
	}
	return artifactScheme + resp.Artifact.ID, nil
}

// Open downloads artifact:<id> namespaces and reads anything else from the media root
func (a *Artifact) Open(ctx context.Context, namespace string) (io.ReadCloser, error) {
	id, ok := strings.CutPrefix(namespace, artifactScheme)
	if !ok {
		return a.Local.Open(ctx, namespace)
	}

	meta, err := a.client.GetArtifactByID(ctx, id)
	if err != nil {
		return nil, errors.NewStorageIOError("open", namespace, err)
	}
	r, err := a.client.Download(ctx, meta.Artifact.DownloadURL)
	if err != nil {
		return nil, errors.NewStorageIOError("open", namespace, err)
	}
	return r, nil
}
