package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/felo/mail-extractor/internal/config"
	"github.com/felo/mail-extractor/internal/db"
	"github.com/felo/mail-extractor/internal/export"
	"github.com/felo/mail-extractor/internal/extractor"
	"github.com/felo/mail-extractor/internal/model"
	"github.com/felo/mail-extractor/internal/parser"
	"github.com/felo/mail-extractor/internal/scanner"
)

// runExtract performs one extraction run followed by the configured exports
// and the deferred deletion pass.
func runExtract(cfg *config.Config, logger zerolog.Logger) (*extractor.Result, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create output directory: %w", model.ErrAccess, err)
	}

	src, err := scanner.New(scanner.Mode(cfg.Mode), cfg.InputPath, cfg.Paths)
	if err != nil {
		return nil, err
	}

	ext := extractor.New(extractor.Options{
		OutputDir: cfg.OutputDir,
		Overwrite: cfg.Overwrite,
		Delete:    cfg.Delete,
	}, src, parser.NewDispatcher(logger), logger)

	if cfg.Progress {
		var bar *progressbar.ProgressBar
		ext.WithProgress(func(current, total int, path string) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "extracting")
			}
			bar.Add(1)
		})
	}

	if cfg.IndexPath != "" {
		database, err := db.Open(cfg.IndexPath)
		if err != nil {
			return nil, err
		}
		defer database.Close()

		if err := database.SetSetting("output_dir", cfg.OutputDir); err != nil {
			return nil, err
		}
		ext.WithIndex(database)
	}

	result, err := ext.Run()
	if err != nil {
		return nil, err
	}

	if cfg.JSONPath != "" {
		if err := export.WriteJSON(cfg.JSONPath, result.Collection, cfg.Indent); err != nil {
			return result, err
		}
		logger.Info().Str("path", cfg.JSONPath).Int("records", result.Collection.Len()).Msg("Saved JSON export")
	}
	if cfg.CSVPath != "" {
		if err := export.WriteCSV(cfg.CSVPath, result.Collection, cfg.Separator); err != nil {
			return result, err
		}
		logger.Info().Str("path", cfg.CSVPath).Int("records", result.Collection.Len()).Msg("Saved CSV export")
	}

	if cfg.DeleteAfter {
		result.Deleted = append(result.Deleted, result.Sources.DeleteProcessed()...)
	}

	result.LogSummary(logger)
	return result, nil
}
