package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aatumaykin/shuttlewatch/internal/app"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/spf13/cobra"
)

var serveLogLevel string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the watcher (main command)",
	Long: `Start the watcher with the given configuration.
This resumes every active job, listens for Telegram commands and runs the
maintenance tasks until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := validConfig()
	if err != nil {
		return err
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	log.Info("🚀 starting shuttlewatch",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "storage", Value: cfg.Storage.Path},
		logger.Field{Key: "browser_engine", Value: cfg.Browser.Engine},
		logger.Field{Key: "telegram", Value: cfg.Telegram.Enabled},
		logger.Field{Key: "message_bus_capacity", Value: cfg.MessageBus.Capacity})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, log).Run(ctx); err != nil {
		log.Error("shuttlewatch stopped with error", err)
		return err
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
