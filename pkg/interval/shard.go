package interval

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/hostload/pkg/schema"
)

// Shard row errors.
var (
	// ErrEmptyField indicates an interval column with no content.
	ErrEmptyField = errors.New("empty interval field")
	// ErrNoShards indicates a glob that matched nothing.
	ErrNoShards = errors.New("no shards match pattern")
)

// ShardSource reads one delimited, optionally compressed file per chunk.
// Every shard is checkpointable.
type ShardSource struct {
	paths   []string
	mapping schema.Mapping
	pos     int
}

// NewShardSource iterates paths in sorted order, extracting records with mapping.
func NewShardSource(paths []string, mapping schema.Mapping) *ShardSource {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)

	return &ShardSource{paths: sorted, mapping: mapping}
}

// GlobShards resolves pattern to a sorted list of shard paths.
func GlobShards(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob shards: %w", err)
	}

	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoShards, pattern)
	}

	slices.Sort(paths)

	return paths, nil
}

// Next reads and parses the next shard. A shard with no rows yields an empty chunk.
func (s *ShardSource) Next(ctx context.Context) (Chunk, bool, error) {
	if s.pos >= len(s.paths) {
		return Chunk{}, false, nil
	}

	err := ctx.Err()
	if err != nil {
		return Chunk{}, false, err
	}

	path := s.paths[s.pos]
	s.pos++

	records, err := s.readShard(path)
	if err != nil {
		return Chunk{}, false, err
	}

	return Chunk{ID: path, Records: records, Checkpointable: true}, true, nil
}

// PeekID returns the identifier of the next shard without reading it.
func (s *ShardSource) PeekID() (string, bool) {
	if s.pos >= len(s.paths) {
		return "", false
	}

	return s.paths[s.pos], true
}

// SkipNext advances past the next shard.
func (s *ShardSource) SkipNext() {
	if s.pos < len(s.paths) {
		s.pos++
	}
}

// Remaining is the number of shards not yet read or skipped.
func (s *ShardSource) Remaining() (int, bool) {
	return len(s.paths) - s.pos, true
}

// Close is a no-op; each shard is closed after it is read.
func (s *ShardSource) Close() error { return nil }

func (s *ShardSource) readShard(path string) (records []Record, err error) {
	rc, err := openShard(path)
	if err != nil {
		return nil, &SourceError{ID: path, Err: err}
	}

	defer func() {
		closeErr := rc.Close()
		if err == nil && closeErr != nil {
			err = &SourceError{ID: path, Err: closeErr}
		}
	}()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = s.mapping.Width
	reader.ReuseRecord = true

	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			return records, nil
		}

		if readErr != nil {
			return nil, &SourceError{ID: path, Err: readErr}
		}

		rec, ok, parseErr := s.parseRow(row)
		if parseErr != nil {
			line, _ := reader.FieldPos(0)

			return nil, &SourceError{ID: path, Line: line, Err: parseErr}
		}

		if ok {
			records = append(records, rec)
		}
	}
}

// parseRow extracts the interval of one row. ok is false for a row whose
// optional value field is empty; such a row contributes nothing.
func (s *ShardSource) parseRow(row []string) (rec Record, ok bool, err error) {
	if s.mapping.OptionalValue && strings.TrimSpace(row[s.mapping.Value]) == "" {
		return Record{}, false, nil
	}

	value, err := parseField(row[s.mapping.Value], "value", func(f string) (float64, error) {
		return strconv.ParseFloat(f, 64)
	})
	if err != nil {
		return Record{}, false, err
	}

	start, err := parseField(row[s.mapping.Start], "start", parseInt)
	if err != nil {
		return Record{}, false, err
	}

	end, err := parseField(row[s.mapping.End], "end", parseInt)
	if err != nil {
		return Record{}, false, err
	}

	return Record{Value: value, Start: start, End: end}, true, nil
}

func parseInt(f string) (int64, error) {
	return strconv.ParseInt(f, 10, 64)
}

func parseField[T any](field, role string, parse func(string) (T, error)) (T, error) {
	var zero T

	field = strings.TrimSpace(field)
	if field == "" {
		return zero, fmt.Errorf("%w: %s", ErrEmptyField, role)
	}

	v, err := parse(field)
	if err != nil {
		return zero, fmt.Errorf("parse %s: %w", role, err)
	}

	return v, nil
}

type stackedCloser struct {
	io.Reader

	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error

	for _, c := range slices.Backward(s.closers) {
		errs = append(errs, c.Close())
	}

	return errors.Join(errs...)
}

func openShard(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, zErr := gzip.NewReader(f)
		if zErr != nil {
			f.Close()

			return nil, fmt.Errorf("open gzip: %w", zErr)
		}

		return &stackedCloser{Reader: zr, closers: []io.Closer{f, zr}}, nil
	case ".lz4":
		return &stackedCloser{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}
