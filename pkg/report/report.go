// Package report renders aggregation artifacts for humans and tools.
package report

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
)

// Output formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatPlot  = "plot"
)

// DefaultLimit caps table rows when Options.Limit is zero.
const DefaultLimit = 50

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported formats.
func Formats() []string {
	return []string{FormatTable, FormatCSV, FormatJSON, FormatPlot}
}

// Options configures Write.
type Options struct {
	Format string
	// Limit caps table rows. Negative prints every row.
	Limit int
	// Title overrides the matrix name in plot output.
	Title string
}

// Write renders m to w in the requested format.
func Write(w io.Writer, m *artifact.Matrix, opts Options) error {
	if !slices.Contains(Formats(), opts.Format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	err := m.Validate()
	if err != nil {
		return err
	}

	switch opts.Format {
	case FormatCSV:
		return writeCSV(w, m)
	case FormatJSON:
		return writeJSON(w, m)
	case FormatPlot:
		return writePlot(w, m, opts.Title)
	default:
		return writeTable(w, m, opts.Limit)
	}
}

// ColumnNames names the matrix columns. Series columns are "start" and
// "value"; any other shape gets positional names.
func ColumnNames(m *artifact.Matrix) []string {
	if m.Cols == artifact.SeriesCols {
		return []string{"start", "value"}
	}

	names := make([]string, m.Cols)
	for i := range names {
		names[i] = fmt.Sprintf("c%d", i)
	}

	return names
}
