package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/eventchat/internal/config"
	"github.com/vovakirdan/eventchat/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "eventchat",
		Short:         "Room-based realtime chat server and client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd(opts), newChatCmd(opts), newSmokeCmd(opts), newTokenCmd(opts))
	return cmd
}

// load resolves configuration and builds the logger. The log level flag
// wins over the config file.
func (o *rootOptions) load() (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New(o.levelOr("info"))
	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	logger := log.New(o.levelOr(cfg.LogLevel))
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func (o *rootOptions) levelOr(fallback string) string {
	if o.logLevel != "" {
		return o.logLevel
	}
	return fallback
}
