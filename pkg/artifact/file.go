package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Sumatoshi-tech/hostload/pkg/persist"
)

// filePerm is the mode of artifact files.
const filePerm = 0o644

// FileStore keeps a single dataset in one checksummed file.
type FileStore struct {
	path        string
	compression Compression
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string, compression Compression) *FileStore {
	return &FileStore{path: path, compression: compression}
}

// Path is the artifact file location.
func (s *FileStore) Path() string { return s.path }

// Load reads and verifies the file.
func (s *FileStore) Load(ctx context.Context, name string) (*Matrix, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}

	if err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}

	m, err := Decode(data)
	if err != nil {
		return nil, &IOError{Op: "decode", Path: s.path, Err: err}
	}

	if m.Name != name {
		return nil, fmt.Errorf("%w: %s holds %q, not %q", ErrNotFound, s.path, m.Name, name)
	}

	return m, nil
}

// Save atomically replaces the file with m.
func (s *FileStore) Save(ctx context.Context, m *Matrix) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	data, err := Encode(m, s.compression)
	if err != nil {
		return err
	}

	err = persist.WriteFileAtomic(s.path, filePerm, func(w io.Writer) error {
		_, writeErr := w.Write(data)

		return writeErr
	})
	if err != nil {
		return &IOError{Op: "write", Path: s.path, Err: err}
	}

	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
