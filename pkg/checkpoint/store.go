// Package checkpoint records which shards have been fully applied so that an
// interrupted run can resume without applying any shard twice.
//
// The log is a plain text file with one shard identifier per line. Lines are
// only ever appended, each followed by an fsync. A crash during an append can
// leave a final line without its newline; such a torn tail is ignored when
// the log is read and truncated before the next append.
package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// logPerm is the mode of newly created checkpoint logs.
const logPerm = 0o644

// tailBlock is the read size used when scanning a log backwards for its last newline.
const tailBlock = 4096

// Sentinel errors.
var (
	// ErrCheckpointIO is matched by every checkpoint read or write failure.
	ErrCheckpointIO = errors.New("checkpoint I/O")
	// ErrInvalidID indicates an empty identifier or one containing a line break.
	ErrInvalidID = errors.New("invalid shard identifier")
	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("checkpoint store closed")
)

// IOError is a failed operation on a checkpoint log.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is matches ErrCheckpointIO.
func (e *IOError) Is(target error) bool { return target == ErrCheckpointIO }

// Options configures a Store.
type Options struct {
	// ImportPath seeds the set of applied shards.
	ImportPath string
	// ExportPath receives every newly applied shard.
	ExportPath string
	// Logger receives torn-tail warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// Store is the set of applied shards backed by an append-only log. When
// only one of the paths is set it serves as both import and export. With
// neither set the store keeps the set in memory only.
type Store struct {
	importPath string
	exportPath string
	logger     *slog.Logger

	applied  map[string]struct{}
	imported int
	export   *os.File
	closed   bool
}

// Open reads the import log and returns a store ready for appends.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	importPath, exportPath := opts.ImportPath, opts.ExportPath

	switch {
	case importPath == "":
		importPath = exportPath
	case exportPath == "":
		exportPath = importPath
	}

	s := &Store{
		importPath: importPath,
		exportPath: exportPath,
		logger:     logger,
		applied:    make(map[string]struct{}),
	}

	if importPath == "" {
		return s, nil
	}

	applied, torn, err := ReadLog(importPath)
	if err != nil {
		return nil, err
	}

	if torn {
		logger.Warn("ignoring torn checkpoint tail", "path", importPath)
	}

	s.applied = applied
	s.imported = len(applied)

	return s, nil
}

// ReadLog returns the identifiers recorded in the log at path. A missing
// file is an empty log. torn reports a final line without a newline, which
// is not included in the set.
func ReadLog(path string) (applied map[string]struct{}, torn bool, err error) {
	applied = make(map[string]struct{})

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return applied, false, nil
	}

	if err != nil {
		return nil, false, &IOError{Op: "read", Path: path, Err: err}
	}

	complete := data
	if idx := bytes.LastIndexByte(data, '\n'); idx < len(data)-1 {
		complete = data[:idx+1]
		torn = true
	}

	for _, line := range strings.Split(string(complete), "\n") {
		id := strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(id) == "" {
			continue
		}

		applied[id] = struct{}{}
	}

	return applied, torn, nil
}

// IsApplied reports whether id was imported or marked during this run.
func (s *Store) IsApplied(id string) bool {
	_, ok := s.applied[id]

	return ok
}

// Len is the number of applied shards.
func (s *Store) Len() int {
	return len(s.applied)
}

// Imported is the number of shards loaded from the import log.
func (s *Store) Imported() int {
	return s.imported
}

// Applied returns the applied identifiers in sorted order.
func (s *Store) Applied() []string {
	ids := make([]string, 0, len(s.applied))
	for id := range s.applied {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// MarkApplied durably appends id to the export log. Identifiers already in
// the set are not appended again.
func (s *Store) MarkApplied(id string) error {
	if s.closed {
		return ErrClosed
	}

	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	if s.IsApplied(id) {
		return nil
	}

	if s.exportPath != "" {
		err := s.append(id)
		if err != nil {
			return err
		}
	}

	s.applied[id] = struct{}{}

	return nil
}

// Close releases the export log.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	if s.export == nil {
		return nil
	}

	err := s.export.Close()
	if err != nil {
		return &IOError{Op: "close", Path: s.exportPath, Err: err}
	}

	return nil
}

func (s *Store) append(id string) error {
	if s.export == nil {
		f, err := s.openExport()
		if err != nil {
			return err
		}

		s.export = f
	}

	_, err := s.export.WriteString(id + "\n")
	if err != nil {
		return &IOError{Op: "append", Path: s.exportPath, Err: err}
	}

	err = s.export.Sync()
	if err != nil {
		return &IOError{Op: "sync", Path: s.exportPath, Err: err}
	}

	return nil
}

func (s *Store) openExport() (*os.File, error) {
	f, err := os.OpenFile(s.exportPath, os.O_RDWR|os.O_CREATE, logPerm)
	if err != nil {
		return nil, &IOError{Op: "open", Path: s.exportPath, Err: err}
	}

	end, err := completeLength(f)
	if err == nil {
		err = s.truncateTail(f, end)
	}

	if err == nil {
		_, err = f.Seek(end, io.SeekStart)
	}

	if err != nil {
		f.Close()

		return nil, &IOError{Op: "open", Path: s.exportPath, Err: err}
	}

	return f, nil
}

func (s *Store) truncateTail(f *os.File, end int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}

	if info.Size() == end {
		return nil
	}

	s.logger.Warn("truncating torn checkpoint tail",
		"path", s.exportPath, "bytes", info.Size()-end)

	err = f.Truncate(end)
	if err != nil {
		return err
	}

	return f.Sync()
}

// completeLength returns the length of f up to and including its last newline.
func completeLength(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	buf := make([]byte, tailBlock)

	for end := info.Size(); end > 0; {
		start := max(end-tailBlock, 0)
		chunk := buf[:end-start]

		_, err = f.ReadAt(chunk, start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}

		if idx := bytes.LastIndexByte(chunk, '\n'); idx >= 0 {
			return start + int64(idx) + 1, nil
		}

		end = start
	}

	return 0, nil
}
