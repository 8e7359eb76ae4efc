package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/hostload/pkg/runner"
)

func stateColor(state runner.State) *color.Color {
	switch state {
	case runner.StateCompleted:
		return color.New(color.FgGreen, color.Bold)
	case runner.StateStoppedDebug:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func printSummary(w io.Writer, output string, res *runner.Result) {
	stateColor(res.State).Fprintf(w, "%s", res.State)
	fmt.Fprintf(w, " run %s -> %s\n", res.RunID, output)

	fmt.Fprintf(w, "  chunks:  %d applied, %d skipped\n", res.Applied, res.Skipped)
	fmt.Fprintf(w, "  records: %s\n", humanize.Comma(int64(res.Records)))
	fmt.Fprintf(w, "  buckets: %s\n", humanize.Comma(int64(res.Buckets)))
	fmt.Fprintf(w, "  elapsed: %s\n", res.Finished.Sub(res.Started).Round(time.Millisecond))

	if res.Resumed {
		color.New(color.FgCyan).Fprintf(w, "  resumed from existing snapshot\n")
	}

	if res.Error != "" {
		color.New(color.FgRed).Fprintf(w, "  error: %s\n", res.Error)
	}
}
