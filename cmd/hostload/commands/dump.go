package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hostload/pkg/artifact"
	"github.com/Sumatoshi-tech/hostload/pkg/config"
	"github.com/Sumatoshi-tech/hostload/pkg/persist"
	"github.com/Sumatoshi-tech/hostload/pkg/report"
)

const dumpFilePerm = 0o644

// DumpCommand renders a stored artifact.
type DumpCommand struct {
	format  string
	dataset string
	backend string
	title   string
	output  string
	limit   int
}

// NewDumpCommand creates the dump command.
func NewDumpCommand() *cobra.Command {
	dc := &DumpCommand{}

	cmd := &cobra.Command{
		Use:   "dump <artifact>",
		Short: "Render a stored artifact",
		Args:  cobra.ExactArgs(1),
		RunE:  dc.run,
	}

	cmd.Flags().StringVarP(&dc.format, "format", "f", report.FormatTable,
		"Output format: "+strings.Join(report.Formats(), ", "))
	cmd.Flags().StringVar(&dc.dataset, "dataset", config.DefaultDataset, "Dataset name")
	cmd.Flags().StringVar(&dc.backend, "backend", config.DefaultBackend, "Artifact backend: file or badger")
	cmd.Flags().StringVar(&dc.title, "title", "", "Plot title (default: dataset name)")
	cmd.Flags().StringVarP(&dc.output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().IntVar(&dc.limit, "limit", report.DefaultLimit, "Table rows to print (-1 = all)")

	return cmd
}

func (dc *DumpCommand) run(cmd *cobra.Command, args []string) (err error) {
	store, err := artifact.Open(dc.backend, args[0], artifact.Options{})
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, store.Close())
	}()

	m, err := store.Load(cmd.Context(), dc.dataset)
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	opts := report.Options{Format: dc.format, Limit: dc.limit, Title: dc.title}

	if dc.output == "" {
		return report.Write(cmd.OutOrStdout(), m, opts)
	}

	return persist.WriteFileAtomic(dc.output, dumpFilePerm, func(w io.Writer) error {
		return report.Write(w, m, opts)
	})
}
