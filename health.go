package main

import (
	"context"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/stockvault/backup/config"
	"github.com/stockvault/backup/health"
)

func healthCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	cfg, err := config.LoadFromFile(args.Health.Config)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, args.Health.Database, cfg, logger, false)
	if err != nil {
		return err
	}

	metrics, err := health.Metrics(ctx, store, time.Now().UTC())
	if err != nil {
		return err
	}

	event := logger.Info().
		Int("streak", metrics.Streak).
		Int("failed_30d", metrics.FailedLast30Days).
		Str("avg_size", units.HumanSize(metrics.AvgSizeMB*1024*1024)).
		Float64("storage_used_gb", metrics.StorageUsedGB).
		Float64("storage_total_gb", metrics.StorageTotalGB)
	if metrics.LastBackupAt != nil {
		event = event.Time("last_backup_at", *metrics.LastBackupAt)
	}
	if metrics.NextScheduledAt != nil {
		event = event.Time("next_scheduled_at", *metrics.NextScheduledAt)
	}
	event.Msg("backup health")

	for _, alert := range metrics.Alerts {
		switch alert.Level {
		case health.LevelError:
			logger.Error().Msg(alert.Message)
		default:
			logger.Warn().Msg(alert.Message)
		}
	}

	return nil
}
