package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/Sumatoshi-tech/hostload/pkg/bucket"
	"github.com/Sumatoshi-tech/hostload/pkg/interval"
)

// SQL queries intervals through database/sql.
type SQL struct {
	db        *sql.DB
	pageQuery string
	countSQL  string
}

// OpenSQL opens and pings a database/sql connection.
func OpenSQL(ctx context.Context, driver, dsn string, cols Columns) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	q, err := NewSQL(db, driver, cols)
	if err != nil {
		db.Close()

		return nil, err
	}

	pingErr := db.PingContext(ctx)
	if pingErr != nil {
		db.Close()

		return nil, fmt.Errorf("ping %s: %w", driver, pingErr)
	}

	return q, nil
}

// NewSQL wraps an open handle. driver selects the placeholder style.
func NewSQL(db *sql.DB, driver string, cols Columns) (*SQL, error) {
	err := cols.Validate()
	if err != nil {
		return nil, err
	}

	var ph func(int) string

	switch driver {
	case DriverPostgres:
		ph = func(n int) string { return "$" + strconv.Itoa(n) }
	case DriverSQLite:
		ph = func(int) string { return "?" }
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriver, driver)
	}

	where := overlapClause(cols, ph(1), ph(2))

	return &SQL{
		db: db,
		pageQuery: fmt.Sprintf(
			"SELECT %s, %s, %s FROM %s WHERE %s ORDER BY %s, %s LIMIT %s OFFSET %s",
			cols.Value, cols.Start, cols.End, cols.Table, where, cols.Start, cols.End, ph(3), ph(4)),
		countSQL: fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", cols.Table, where),
	}, nil
}

// QueryPage implements interval.PageQuerier.
func (q *SQL) QueryPage(ctx context.Context, w bucket.Window, limit, offset int) ([]interval.Record, error) {
	rows, err := q.db.QueryContext(ctx, q.pageQuery, w.Start, w.End, limit, offset)
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
func (q *SQL) Count(ctx context.Context, w bucket.Window) (int, error) {
	var n int

	err := q.db.QueryRowContext(ctx, q.countSQL, w.Start, w.End).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}

	return n, nil
}

// Close closes the underlying handle.
func (q *SQL) Close() error {
	return q.db.Close()
}
