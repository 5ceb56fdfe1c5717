package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/felo/mail-extractor/internal/config"
	"github.com/felo/mail-extractor/internal/db"
	"github.com/felo/mail-extractor/internal/handlers"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mail-extractor [paths...]",
		Short: "Extract metadata and attachments from .msg and .eml files",
		Long: `mail-extractor reads Outlook .msg and RFC 822 .eml files, saves their
attachments into one output directory without overwriting existing files,
and exports the collected metadata as JSON and CSV.`,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, args)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel)
			_, err = runExtract(cfg, logger)
			return err
		},
	}
	config.RegisterFlags(rootCmd)
	config.RegisterExtractFlags(rootCmd)

	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve a message index over HTTP",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServeConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cfg, setupLogger(cfg.LogLevel))
		},
	}
	config.RegisterServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}

func setupLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func runServe(cfg *config.Config, logger zerolog.Logger) error {
	if _, err := os.Stat(cfg.IndexPath); err != nil {
		return fmt.Errorf("index not found: %w", err)
	}

	database, err := db.Open(cfg.IndexPath)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handlers.New(database, logger).Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("url", cfg.URL()).Str("index", cfg.IndexPath).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}
	logger.Info().Msg("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}
