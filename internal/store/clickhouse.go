package store

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
	"github.com/Sumatoshi-tech/hostload/pkg/interval"
)

// ClickHouse queries intervals over the native protocol.
type ClickHouse struct {
	conn      driver.Conn
	pageQuery string
	countSQL  string
}

// OpenClickHouse parses dsn, connects and pings.
func OpenClickHouse(ctx context.Context, dsn string, cols Columns) (*ClickHouse, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	q, err := NewClickHouse(conn, cols)
	if err != nil {
		conn.Close()

		return nil, err
	}

	pingErr := conn.Ping(ctx)
	if pingErr != nil {
		conn.Close()

		return nil, fmt.Errorf("clickhouse ping: %w", pingErr)
	}

	return q, nil
}

// NewClickHouse wraps an open connection.
func NewClickHouse(conn driver.Conn, cols Columns) (*ClickHouse, error) {
	err := cols.Validate()
	if err != nil {
		return nil, err
	}

	where := overlapClause(cols, "?", "?")

	return &ClickHouse{
		conn: conn,
		pageQuery: fmt.Sprintf(
			"SELECT toFloat64(%s), toInt64(%s), toInt64(%s) FROM %s WHERE %s ORDER BY %s, %s LIMIT ? OFFSET ?",
			cols.Value, cols.Start, cols.End, cols.Table, where, cols.Start, cols.End),
		countSQL: fmt.Sprintf("SELECT count() FROM %s WHERE %s", cols.Table, where),
	}, nil
}

// QueryPage implements interval.PageQuerier.
func (q *ClickHouse) QueryPage(ctx context.Context, w bucket.Window, limit, offset int) ([]interval.Record, error) {
	rows, err := q.conn.Query(ctx, q.pageQuery, w.Start, w.End, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	defer rows.Close()

	records := make([]interval.Record, 0, limit)

	for rows.Next() {
		var rec interval.Record

		scanErr := rows.Scan(&rec.Value, &rec.Start, &rec.End)
		if scanErr != nil {
			return nil, fmt.Errorf("scan row: %w", scanErr)
		}

		records = append(records, rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// Count implements interval.Counter.
func (q *ClickHouse) Count(ctx context.Context, w bucket.Window) (int, error) {
	var n uint64

	err := q.conn.QueryRow(ctx, q.countSQL, w.Start, w.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}

	return int(n), nil
}

// Close closes the connection.
func (q *ClickHouse) Close() error {
	return q.conn.Close()
}
