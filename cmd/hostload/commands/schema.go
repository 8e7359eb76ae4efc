package commands

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/hostload/pkg/config"
	"github.com/Sumatoshi-tech/hostload/pkg/schema"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	var (
		tableName string
		root      string
	)

	cmd := &cobra.Command{
		Use:   "schema <descriptor>",
		Short: "Validate a schema descriptor and print the interval mapping",
		Long: `Validate a YAML schema descriptor or a cluster-data schema.csv and print
its columns, the resolved interval mapping and the shard glob.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, err := schema.LoadFile(args[0], tableName)
			if err != nil {
				return err
			}

			mapping, err := desc.Mapping()
			if err != nil {
				return err
			}

			printDescriptor(cmd, desc, mapping, root)

			return nil
		},
	}

	cmd.Flags().StringVar(&tableName, "table", config.DefaultTable, "Table within schema.csv")
	cmd.Flags().StringVar(&root, "root", config.DefaultSourceRoot, "Directory the shard pattern is relative to")

	return cmd
}

func printDescriptor(cmd *cobra.Command, desc *schema.Descriptor, mapping schema.Mapping, root string) {
	roles := map[int]string{
		mapping.Value: "value",
		mapping.Start: "start",
		mapping.End:   "end",
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "column", "type", "mandatory", "role"})

	for _, col := range desc.Columns {
		tbl.AppendRow(table.Row{col.Index, col.Name, string(col.Type), strconv.FormatBool(col.Mandatory), roles[col.Index]})
	}

	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "table %s\n%s\n", desc.Table, tbl.Render())
	fmt.Fprintf(out, "mapping: value=%d start=%d end=%d width=%d\n", mapping.Value, mapping.Start, mapping.End, mapping.Width)
	fmt.Fprintf(out, "shards: %s\n", desc.Glob(root))
}
