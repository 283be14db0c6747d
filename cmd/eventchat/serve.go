package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/eventchat/internal/app"
	"github.com/vovakirdan/eventchat/internal/config"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var overrides config.Config
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("addr", cfg.Addr).Msg("starting eventchat server")
			if err := app.New(&cfg, logger).Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.IntVar(&overrides.HistorySize, "history-size", 0, "messages kept per room")
	flags.StringVar(&overrides.JWTSecret, "jwt-secret", "", "HMAC secret for hello tokens")
	flags.BoolVar(&overrides.JWTRequired, "jwt-required", false, "reject hello without a valid token")
	return cmd
}
