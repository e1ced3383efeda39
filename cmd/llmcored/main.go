package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logFile    string
	pretty     bool
}

func main() {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "llmcored",
		Short:         "llmcored - cost-bounded, cached, rate-limited LLM requests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logFile != "" && opts.pretty {
				return fmt.Errorf("--logfile and --pretty are mutually exclusive")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file (default $LLMCORE_CONFIG_PATH or ~/.llmcore/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logFile, "logfile", "", "path to log file; logs go to stderr when unset")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "use pretty console log output (only valid when logfile is not set)")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newCacheCmd(opts),
		newQuotaCmd(opts),
		newMigrateCmd(opts),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
