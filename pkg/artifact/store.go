package artifact

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Store loads and atomically saves named datasets.
type Store interface {
	// Load returns the dataset called name, or ErrNotFound.
	Load(ctx context.Context, name string) (*Matrix, error)
	// Save replaces the dataset m.Name. A failed Save leaves the previous
	// version intact.
	Save(ctx context.Context, m *Matrix) error
	Close() error
}

// Options configures Open.
type Options struct {
	Compression Compression
	Logger      *slog.Logger
}

// Open returns the store for backend rooted at path.
func Open(backend, path string, opts Options) (Store, error) {
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch backend {
	case BackendFile, "":
		return NewFileStore(path, opts.Compression), nil
	case BackendBadger:
		return OpenBadger(BadgerConfig{Path: path, Compression: opts.Compression, Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
