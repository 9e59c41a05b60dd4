package importer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/docingest/internal/logging"
	"github.com/adverant/nexus/docingest/internal/pipeline"
)

// RejectedDir is the subdirectory that holds files no stage accepted
const RejectedDir = ".rejected"

// LocalImporter picks up files dropped into a directory. Each regular file is
// imported and then removed. Files that fail to import stay for the next scan
// and files no stage turned into a document move to RejectedDir.
type LocalImporter struct {
	importer *Importer
	dir      string
	interval time.Duration
	username string
	logger   *logging.Logger
}

// NewLocalImporter watches dir every interval. Documents are owned by
// username, or by the first superuser when it is empty.
func NewLocalImporter(imp *Importer, dir string, interval time.Duration, username string, logger *logging.Logger) *LocalImporter {
	if logger == nil {
		logger = logging.NewLogger("LocalImporter")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LocalImporter{importer: imp, dir: dir, interval: interval, username: username, logger: logger}
}

// Run scans until ctx is done
func (l *LocalImporter) Run(ctx context.Context) error {
	l.logger.Info("Watching directory", "dir", l.dir, "interval", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if _, err := l.Scan(ctx); err != nil {
			l.logger.Error("Directory scan failed", "dir", l.dir, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scan imports every file currently in the directory and returns how many
// were consumed.
func (l *LocalImporter) Scan(ctx context.Context) (int, error) {
	var files []string
	err := filepath.WalkDir(l.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != l.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", l.dir, err)
	}

	consumed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return consumed, ctx.Err()
		}
		imported, err := l.importFile(ctx, path)
		if err != nil {
			l.logger.Error("Failed to import file", "path", path, "error", err)
			continue
		}
		if imported {
			consumed++
		}
	}
	return consumed, nil
}

// importFile reports whether the file became a document
func (l *LocalImporter) importFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	doc, err := l.importer.Import(ctx, Request{
		Source:    data,
		Processor: pipeline.ProcessorLocal,
		Name:      filepath.Base(path),
		Username:  l.username,
	})
	if err != nil {
		return false, err
	}

	if doc == nil {
		dst, err := l.reject(path)
		if err != nil {
			return false, err
		}
		l.logger.Warn("File not ingested, moved aside", "path", path, "rejected", dst)
		return false, nil
	}

	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("imported but could not remove %s: %w", path, err)
	}
	l.logger.Info("File imported", "path", path, "document", doc.ID, "version", doc.Version)
	return true, nil
}

// reject moves path into RejectedDir without overwriting an earlier rejection
func (l *LocalImporter) reject(path string) (string, error) {
	dir := filepath.Join(l.dir, RejectedDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(dir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(path)))
	}
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("failed to move %s aside: %w", path, err)
	}
	return dst, nil
}
