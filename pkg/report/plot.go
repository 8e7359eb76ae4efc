package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
)

const (
	chartHeight        = "600px"
	lineWidth          = 1
	dataZoomEndPercent = 100

	chartBackground = "#1a1b26"
	chartText       = "#c0caf5"
	chartTextMuted  = "#a9b1d6"
	chartAxis       = "#565f89"
	chartGrid       = "#292e42"
	seriesColor     = "#7aa2f7"
)

func writePlot(w io.Writer, m *artifact.Matrix, title string) error {
	if m.Cols != artifact.SeriesCols {
		return fmt.Errorf("%w: plot needs %d columns, got %d", artifact.ErrShapeMismatch, artifact.SeriesCols, m.Cols)
	}

	if title == "" {
		title = m.Name
	}

	line := buildLine(m, title)

	err := line.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

func buildLine(m *artifact.Matrix, title string) *charts.Line {
	labels := make([]string, m.Rows)
	data := make([]opts.LineData, m.Rows)

	for i := range m.Rows {
		labels[i] = strconv.FormatInt(int64(m.At(i, artifact.TimeColumn)), 10)
		data[i] = opts.LineData{Value: m.At(i, artifact.ValueColumn)}
	}

	sum := Summarize(m)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			Width:           "100%",
			Height:          chartHeight,
			BackgroundColor: chartBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         title,
			Subtitle:      fmt.Sprintf("%d buckets, mean %.6g, peak %.6g", sum.Buckets, sum.Mean, sum.Peak),
			Left:          "center",
			TitleStyle:    &opts.TextStyle{Color: chartText},
			SubtitleStyle: &opts.TextStyle{Color: chartTextMuted},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: dataZoomEndPercent},
			opts.DataZoom{Type: "inside"},
		),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Bucket start",
			AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
			AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: chartAxis}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "Rate",
			AxisLabel: &opts.AxisLabel{Color: chartTextMuted},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: chartGrid}},
		}),
		charts.WithGridOpts(opts.Grid{Top: "15%", Bottom: "15%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}),
	)
	line.SetXAxis(labels)
	line.AddSeries("value", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: seriesColor}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}),
	)

	return line
}
