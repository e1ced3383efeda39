package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <tech-id> <cache-key>",
		Short: "Delete one cached response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			deleted, err := a.cache.Invalidate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no cache entry for %s/%s", args[0], args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(invalidateCmd)
	return cmd
}
