package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aschepis/backscratcher/llmcore/mcp"
	"github.com/spf13/cobra"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve LLM requests as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.startJanitor(ctx); err != nil {
				return err
			}
			return mcp.NewServer(a.orchestrator, a.ledger, a.cache, a.logger).ServeStdio(ctx, os.Stdin, os.Stdout)
		},
	}
}
