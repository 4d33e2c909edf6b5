package main

import (
	"context"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stockvault/backup/database"
)

func listCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	db, err := newSQLite(args.List.Database, logger)
	if err != nil {
		return err
	}
	store := &database.Store{Cli: db, Logger: logger}

	opts := []database.ListOption{}
	if args.List.Type != "" {
		opts = append(opts, database.WithListType(database.BackupType(args.List.Type)))
	}
	if args.List.Status != "" {
		opts = append(opts, database.WithListStatus(database.BackupStatus(args.List.Status)))
	}
	if args.List.Limit > 0 {
		opts = append(opts, database.WithListLimit(args.List.Limit))
	}

	backups, err := store.ListBackups(ctx, opts...)
	if err != nil {
		return err
	}

	if len(backups) == 0 {
		logger.Info().Msg("no backups found")
		return nil
	}

	for _, b := range backups {
		logger.Info().
			Str("id", b.ID).
			Str("filename", b.Filename).
			Str("type", string(b.Type)).
			Str("format", string(b.Format)).
			Str("status", string(b.Status)).
			Str("size", units.HumanSize(float64(b.SizeBytes))).
			Int64("records", b.RecordCount).
			Bool("encrypted", b.Encrypted).
			Bool("validated", b.Validated).
			Time("created_at", b.CreatedAt).
			Msg("backup")
	}

	logger.Info().Int("count", len(backups)).Msg("listed backups")
	return nil
}
