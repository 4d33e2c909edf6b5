package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/config"
	"github.com/stockvault/backup/retention"
)

func cleanCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Clean.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Clean.Config)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, args.Clean.Database, cfg, logger, args.Clean.DryRun)
	if err != nil {
		return err
	}

	return retention.Apply(ctx, store, logger)
}
