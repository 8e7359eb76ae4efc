package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
)

func writeCSV(w io.Writer, m *artifact.Matrix) error {
	cw := csv.NewWriter(w)

	err := cw.Write(ColumnNames(m))
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	record := make([]string, m.Cols)

	for r := range m.Rows {
		for c := range m.Cols {
			record[c] = formatCell(m, c, m.At(r, c))
		}

		err = cw.Write(record)
		if err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	cw.Flush()

	err = cw.Error()
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	return nil
}
