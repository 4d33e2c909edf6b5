package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/audit"
	"github.com/stockvault/backup/backup"
	"github.com/stockvault/backup/config"
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/notify"
	"github.com/stockvault/backup/restore"
)

// openStore opens the database and syncs the settings singleton from the
// config file, which is the deployment's source of truth.
func openStore(ctx context.Context, dbPath string, cfg *config.Config, logger zerolog.Logger, dryRun bool) (*database.Store, error) {
	db, err := newSQLite(dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	store := &database.Store{Cli: db, Logger: logger, DryRun: dryRun}

	if cfg != nil {
		if err := store.SaveSettings(ctx, cfg.ToSettings()); err != nil {
			return nil, fmt.Errorf("could not sync backup settings: %w", err)
		}
	}

	return store, nil
}

func newBackupPipeline(store *database.Store, cfg *config.Config, logger zerolog.Logger, dryRun bool) *backup.Pipeline {
	var sink audit.Sink = &audit.DBSink{Cli: store.Cli, Logger: logger, DryRun: dryRun}
	if dryRun {
		sink = audit.Nop{}
	}

	return &backup.Pipeline{
		Store:           store,
		StorageDir:      cfg.StorageDir,
		MaxStorageBytes: cfg.MaxStorage.Size,
		Audit:           sink,
		Notifier:        notify.LogNotifier{Logger: logger},
		Logger:          logger,
		DryRun:          dryRun,
	}
}

func newRestorePipeline(backups *backup.Pipeline) *restore.Pipeline {
	return &restore.Pipeline{
		Store:      backups.Store,
		Backups:    backups,
		StorageDir: backups.StorageDir,
		Audit:      backups.Audit,
		Notifier:   backups.Notifier,
		Logger:     backups.Logger,
		DryRun:     backups.DryRun,
	}
}

func parseTimeFlag(value string, name string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s time %q: %w", name, value, err)
	}
	return &t, nil
}
