package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aschepis/backscratcher/llmcore/pricing"
	"github.com/aschepis/backscratcher/llmcore/quota"
	"github.com/spf13/cobra"
)

func newQuotaCmd(opts *globalOptions) *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Manage user quota grants",
	}

	var validFor time.Duration
	grantCmd := &cobra.Command{
		Use:   "grant <user-id> <amount-in-cents>",
		Short: "Grant quota to a user starting now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[1], 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive number of cents: %q", args[1])
			}

			a, err := loadBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			now := time.Now()
			id, err := a.ledger.Grant(cmd.Context(), quota.Grant{
				UserID:   args[0],
				Resource: resource,
				Amount:   amount,
				StartsAt: now,
				EndsAt:   now.Add(validFor),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %.2f cents of %s to %s until %s (grant %d)\n",
				amount, resource, args[0], now.Add(validFor).Format(time.RFC3339), id)
			return nil
		},
	}
	grantCmd.Flags().DurationVar(&validFor, "valid-for", 30*24*time.Hour, "how long the grant stays active")

	showCmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's quota position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			state, err := a.ledger.State(cmd.Context(), args[0], resource)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !state.HasGrant {
				fmt.Fprintf(out, "%s has no active %s grant\n", args[0], resource)
				return nil
			}
			fmt.Fprintf(out, "User:      %s\nResource:  %s\nTotal:     %.2f\nUsed:      %.2f\nRemaining: %.2f\nWindow:    %s - %s\n",
				state.UserID, state.Resource, state.TotalQuota, state.UsedAmount, state.Remaining(),
				state.WindowStart.Format(time.RFC3339), state.WindowEnd.Format(time.RFC3339))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&resource, "resource", pricing.ResourceChat, "billable resource")
	cmd.AddCommand(grantCmd, showCmd)
	return cmd
}
