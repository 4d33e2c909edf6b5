package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/config"
	"github.com/stockvault/backup/restore"
)

func restoreCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Restore.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Restore.Config)
	if err != nil {
		return err
	}

	startTime := time.Now()
	logger.Info().Str("backup", args.Restore.ID).Str("mode", args.Restore.Mode).Msg("starting restore")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("restore cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("restore done")
		}
	}()

	store, err := openStore(ctx, args.Restore.Database, cfg, logger, args.Restore.DryRun)
	if err != nil {
		return err
	}

	pipeline := newRestorePipeline(newBackupPipeline(store, cfg, logger, args.Restore.DryRun))

	// The CLI runs with the operator's identity; the surrounding application
	// performs real authentication before calling into the pipeline.
	summary, err := pipeline.Run(ctx, args.Restore.ID,
		restore.Options{
			Mode:     restore.Mode(args.Restore.Mode),
			Password: config.MasterPassword(),
		},
		restore.Actor{ID: args.Restore.Actor, Admin: true},
	)
	if err != nil {
		return err
	}

	event := logger.Info().
		Int("added", summary.ItemsAdded).
		Int("updated", summary.ItemsUpdated).
		Int("skipped", summary.ItemsSkipped).
		Float64("seconds", summary.Duration.Seconds())
	if len(summary.Errors) > 0 {
		event = event.Strs("errors", summary.Errors)
	}
	event.Msg("restore summary")
	return nil
}
