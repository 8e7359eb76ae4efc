// Package store implements interval page queries over relational and
// columnar databases.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/Sumatoshi-tech/hostload/pkg/interval"
)

// Supported drivers.
const (
	DriverPostgres   = "postgres"
	DriverSQLite     = "sqlite3"
	DriverClickHouse = "clickhouse"
)

// Sentinel errors for querier construction.
var (
	// ErrIdentifier indicates a table or column name that is not a plain identifier.
	ErrIdentifier = errors.New("invalid identifier")
	// ErrDriver indicates an unsupported database driver.
	ErrDriver = errors.New("unsupported database driver")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Columns names the table and the interval columns to query.
type Columns struct {
	Table string
	Value string
	Start string
	End   string
}

// DefaultColumns matches the task_usage table loaded by the cluster-data tooling.
var DefaultColumns = Columns{
	Table: "task_usage",
	Value: "cpu_rate",
	Start: "start_time",
	End:   "end_time",
}

// Validate checks every name against a plain identifier pattern. Names are
// interpolated into SQL, so nothing else is accepted.
func (c Columns) Validate() error {
	for _, name := range []string{c.Table, c.Value, c.Start, c.End} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%w: %q", ErrIdentifier, name)
		}
	}

	return nil
}

// Querier is a page querier that can count its rows and must be closed.
type Querier interface {
	interval.PageQuerier
	interval.Counter
	io.Closer
}

// Open connects to dsn with driver and returns a validated querier.
func Open(ctx context.Context, driver, dsn string, cols Columns) (Querier, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return OpenSQL(ctx, driver, dsn, cols)
	case DriverClickHouse:
		return OpenClickHouse(ctx, dsn, cols)
	default:
		return nil, fmt.Errorf("%w: %q", ErrDriver, driver)
	}
}

// overlapClause selects rows whose [start,end) intersects the window and
// whose value is not NULL. The window start placeholder precedes the window
// end in the text.
func overlapClause(cols Columns, startArg, endArg string) string {
	return fmt.Sprintf("%s > %s AND %s < %s AND %s IS NOT NULL", cols.End, startArg, cols.Start, endArg, cols.Value)
}
