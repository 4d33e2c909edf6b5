package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/config"
)

func validateCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	cfg, err := config.LoadFromFile(args.Validate.Config)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, args.Validate.Database, cfg, logger, false)
	if err != nil {
		return err
	}

	pipeline := newBackupPipeline(store, cfg, logger, false)

	record, err := pipeline.Validate(ctx, args.Validate.ID, args.Validate.Actor)
	if err != nil {
		return err
	}

	logger.Info().
		Str("id", record.ID).
		Str("status", string(record.Status)).
		Time("validated_at", *record.ValidatedAt).
		Msg("backup checksum verified")
	return nil
}
