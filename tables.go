package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cantart/kruxsync/schema"
)

func newTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables kruxsync maintains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tQUERY\tCOLUMNS")
			for _, t := range schema.All() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Name, t.Query, len(t.Columns))
			}
			return tw.Flush()
		},
	}
}
