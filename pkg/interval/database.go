package interval

import (
	"context"
	"errors"
	"strconv"

	"github.com/Sumatoshi-tech/hostload/pkg/alg/stats"
	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
)

// ErrPageSize is returned for a non-positive page size.
var ErrPageSize = errors.New("page size must be positive")

// PageQuerier returns up to limit records overlapping w, ordered by
// (start, end), skipping the first offset matches.
type PageQuerier interface {
	QueryPage(ctx context.Context, w bucket.Window, limit, offset int) ([]Record, error)
}

// Counter is implemented by queriers that can count the records overlapping w.
type Counter interface {
	Count(ctx context.Context, w bucket.Window) (int, error)
}

// DatabaseSource pages through a PageQuerier. Pages are not checkpointable.
type DatabaseSource struct {
	querier  PageQuerier
	window   bucket.Window
	pageSize int
	offset   int
	total    int
	counted  bool
	lastSeen int64
	done     bool
}

// NewDatabaseSource creates a paginated source. When querier implements
// Counter the total is fetched once for ETA estimates.
func NewDatabaseSource(ctx context.Context, querier PageQuerier, w bucket.Window, pageSize int) (*DatabaseSource, error) {
	if pageSize <= 0 {
		return nil, ErrPageSize
	}

	src := &DatabaseSource{querier: querier, window: w, pageSize: pageSize, lastSeen: w.Start}

	if counter, ok := querier.(Counter); ok {
		total, err := counter.Count(ctx, w)
		if err != nil {
			return nil, &SourceError{ID: "count", Err: err}
		}

		src.total = total
		src.counted = true
	}

	return src, nil
}

// Next fetches the page at the current offset. An empty page ends the source.
func (s *DatabaseSource) Next(ctx context.Context) (Chunk, bool, error) {
	if s.done {
		return Chunk{}, false, nil
	}

	id := "page@" + strconv.Itoa(s.offset)

	records, err := s.querier.QueryPage(ctx, s.window, s.pageSize, s.offset)
	if err != nil {
		return Chunk{}, false, &SourceError{ID: id, Err: err}
	}

	if len(records) == 0 {
		s.done = true

		return Chunk{}, false, nil
	}

	s.offset += len(records)
	s.lastSeen = records[len(records)-1].Start

	return Chunk{ID: id, Records: records}, true, nil
}

// Remaining estimates the pages left from the row count, when known.
func (s *DatabaseSource) Remaining() (int, bool) {
	if !s.counted {
		return 0, false
	}

	if s.done {
		return 0, true
	}

	left := max(int64(s.total-s.offset), 0)

	return int(stats.CeilDiv(left, int64(s.pageSize))), true
}

// Fraction is the position of the last record's start within the window.
func (s *DatabaseSource) Fraction() float64 {
	if s.done {
		return 1
	}

	span := float64(s.window.End - s.window.Start)

	return stats.Clamp(float64(s.lastSeen-s.window.Start)/span, 0, 1)
}

// Offset is the number of records consumed so far.
func (s *DatabaseSource) Offset() int { return s.offset }

// Close is a no-op; the querier is owned by the caller.
func (s *DatabaseSource) Close() error { return nil }
