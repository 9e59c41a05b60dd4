package payload

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adverant/nexus/docingest/internal/errors"
	"github.com/adverant/nexus/docingest/internal/pagecount"
)

// TempPayload is a uniform handle over an inbound file. It exposes a stable
// filesystem path for the duration of one ingestion and releases the
// underlying temporary resource exactly once.
type TempPayload struct {
	path    string
	tempDir string
	file    *os.File
	owned   bool
	counter pagecount.Counter

	once     sync.Once
	closeErr error
}

// Option configures a TempPayload
type Option func(*TempPayload)

// WithPageCounter overrides the page-counting utility
func WithPageCounter(c pagecount.Counter) Option {
	return func(p *TempPayload) {
		p.counter = c
	}
}

// WithTempDir sets the directory raw buffers are materialized into
func WithTempDir(dir string) Option {
	return func(p *TempPayload) {
		p.tempDir = dir
	}
}

// New wraps src, which must be a raw byte buffer, an already-materialized
// temporary *os.File, or an existing *TempPayload.
func New(src interface{}, opts ...Option) (*TempPayload, error) {
	switch v := src.(type) {
	case *TempPayload:
		if v == nil {
			return nil, errors.NewUnsupportedPayloadTypeError(src)
		}
		return v, nil
	case []byte:
		return FromBytes(v, opts...)
	case *os.File:
		if v == nil {
			return nil, errors.NewUnsupportedPayloadTypeError(src)
		}
		return FromFile(v, opts...)
	default:
		return nil, errors.NewUnsupportedPayloadTypeError(src)
	}
}

// FromBytes writes data to a new process-unique temporary file and flushes it
// before returning. The file is removed on Close.
func FromBytes(data []byte, opts ...Option) (*TempPayload, error) {
	p := newPayload(opts...)

	f, err := os.CreateTemp(p.tempDir, fmt.Sprintf("docingest-%d-*", os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to flush temporary file: %w", err)
	}

	p.file = f
	p.path = f.Name()
	p.owned = true
	return p, nil
}

// FromFile reuses the path of an already-materialized temporary file without
// copying. Close closes the handle and removes the file.
func FromFile(f *os.File, opts ...Option) (*TempPayload, error) {
	p := newPayload(opts...)
	abs, err := filepath.Abs(f.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temporary file path: %w", err)
	}
	p.file = f
	p.path = abs
	p.owned = true
	return p, nil
}

func newPayload(opts ...Option) *TempPayload {
	p := &TempPayload{counter: pagecount.Count}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path returns the filesystem path of the payload
func (p *TempPayload) Path() string {
	return p.path
}

// Name returns the base filename of the payload
func (p *TempPayload) Name() string {
	return filepath.Base(p.path)
}

// Size returns the payload size in bytes
func (p *TempPayload) Size() (int64, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat payload: %w", err)
	}
	return info.Size(), nil
}

// PageCount delegates to the page-counting utility keyed by path
func (p *TempPayload) PageCount() (int, error) {
	return p.counter(p.path)
}

// Close releases the temporary resource. Calling it more than once is a no-op
// that returns the first result.
func (p *TempPayload) Close() error {
	p.once.Do(func() {
		if p.file != nil {
			if err := p.file.Close(); err != nil && !isAlreadyClosed(err) {
				p.closeErr = err
			}
		}
		if p.owned {
			if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) && p.closeErr == nil {
				p.closeErr = err
			}
		}
	})
	return p.closeErr
}

func isAlreadyClosed(err error) bool {
	return stderrors.Is(err, os.ErrClosed)
}
