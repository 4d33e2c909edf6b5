package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/config"
)

func deleteCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Delete.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Delete.Config)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, args.Delete.Database, cfg, logger, args.Delete.DryRun)
	if err != nil {
		return err
	}

	pipeline := newBackupPipeline(store, cfg, logger, args.Delete.DryRun)

	if err := pipeline.Delete(ctx, args.Delete.ID, args.Delete.Actor); err != nil {
		return err
	}

	logger.Info().Str("id", args.Delete.ID).Msg("backup deleted")
	return nil
}
