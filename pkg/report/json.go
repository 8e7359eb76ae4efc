package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
)

type jsonMatrix struct {
	Name    string      `json:"name"`
	Rows    int         `json:"rows"`
	Columns []string    `json:"columns"`
	Summary *Summary    `json:"summary,omitempty"`
	Data    [][]float64 `json:"data"`
}

func writeJSON(w io.Writer, m *artifact.Matrix) error {
	doc := jsonMatrix{
		Name:    m.Name,
		Rows:    m.Rows,
		Columns: ColumnNames(m),
		Data:    make([][]float64, m.Rows),
	}

	if m.Cols == artifact.SeriesCols {
		sum := Summarize(m)
		doc.Summary = &sum
	}

	for r := range m.Rows {
		doc.Data[r] = m.Data[r*m.Cols : (r+1)*m.Cols]
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(doc)
	if err != nil {
		return fmt.Errorf("write json: %w", err)
	}

	return nil
}
