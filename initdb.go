package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cantart/kruxsync/schema"
)

func newInitDBCommand(root *rootOptions) *cobra.Command {
	var tables []string

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the destination tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			selected, err := schema.Select(tables)
			if err != nil {
				return err
			}

			db, err := openDB(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := schema.NewProvisioner(db, logger).EnsureAll(ctx, selected); err != nil {
				return err
			}
			for _, t := range selected {
				fmt.Fprintf(cmd.OutOrStdout(), "table %s is ready\n", t.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&tables, "table", "t", nil, "table or query name to create (repeatable; default all)")
	return cmd
}
