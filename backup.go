package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/backup"
	"github.com/stockvault/backup/config"
	"github.com/stockvault/backup/database"
)

func backupCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Backup.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	cfg, err := config.LoadFromFile(args.Backup.Config)
	if err != nil {
		return err
	}

	from, err := parseTimeFlag(args.Backup.From, "from")
	if err != nil {
		return err
	}
	to, err := parseTimeFlag(args.Backup.To, "to")
	if err != nil {
		return err
	}

	startTime := time.Now()
	logger.Info().Str("name", args.Backup.Name).Str("format", args.Backup.Format).Msg("starting backup")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("backup cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("backup done")
		}
	}()

	store, err := openStore(ctx, args.Backup.Database, cfg, logger, args.Backup.DryRun)
	if err != nil {
		return err
	}

	pipeline := newBackupPipeline(store, cfg, logger, args.Backup.DryRun)

	record, err := pipeline.Create(ctx, backup.Params{
		Name:   args.Backup.Name,
		Format: database.BackupFormat(args.Backup.Format),
		Type:   database.TypeManual,
		Include: database.Inclusions{
			AuditLogs: args.Backup.IncludeAuditLogs,
			Users:     args.Backup.IncludeUsers,
			Settings:  args.Backup.IncludeSettings,
		},
		RangeFrom: from,
		RangeTo:   to,
		Encrypt:   args.Backup.Encrypt,
		Password:  config.MasterPassword(),
		Notes:     args.Backup.Notes,
		CreatedBy: args.Backup.Actor,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("id", record.ID).
		Str("filename", record.Filename).
		Int64("records", record.RecordCount).
		Msg("backup created")
	return nil
}
