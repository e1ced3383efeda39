package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/aschepis/backscratcher/llmcore/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve LLM requests over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			if listen == "" {
				listen = a.cfg.Server.Listen
			}
			if err := a.startJanitor(ctx); err != nil {
				return err
			}

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(server.Config{Logger: a.logger}, a.orchestrator, a.ledger, a.cache)

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- srv.ServeTCP(listen)
			}()

			select {
			case <-ctx.Done():
				a.logger.Info().Msg("Received shutdown signal")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}

			a.logger.Info().Msg("llmcored shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on (overrides server.listen)")
	return cmd
}
