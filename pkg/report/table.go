package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
)

func writeTable(w io.Writer, m *artifact.Matrix, limit int) error {
	if limit == 0 {
		limit = DefaultLimit
	}

	rows := m.Rows
	if limit > 0 && rows > limit {
		rows = limit
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	header := table.Row{"#"}
	for _, name := range ColumnNames(m) {
		header = append(header, name)
	}

	tbl.AppendHeader(header)

	for r := range rows {
		row := table.Row{r}
		for c := range m.Cols {
			row = append(row, formatCell(m, c, m.At(r, c)))
		}

		tbl.AppendRow(row)
	}

	footer := fmt.Sprintf("%s: %s rows", m.Name, humanize.Comma(int64(m.Rows)))
	if rows < m.Rows {
		footer += fmt.Sprintf(" (showing %d)", rows)
	}

	tbl.AppendFooter(table.Row{footer})

	_, err := fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

// formatCell prints series start times as integers and everything else
// in the shortest exact form.
func formatCell(m *artifact.Matrix, c int, v float64) string {
	if m.Cols == artifact.SeriesCols && c == artifact.TimeColumn {
		return strconv.FormatInt(int64(v), 10)
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}
