package main

import (
	"fmt"

	"github.com/aschepis/backscratcher/llmcore/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			version, dirty, err := migrations.Version(a.store.DB(), a.store.Dialect())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
}
