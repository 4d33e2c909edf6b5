package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/backup"
	"github.com/stockvault/backup/database"
)

// Apply deletes AUTOMATIC, COMPLETED backups older than the daily retention
// cutoff, files and metadata both. Disabled or missing settings make it a
// no-op. Weekly/monthly retention fields exist in the settings for a tiered
// policy; only the daily cutoff is enforced for now.
func Apply(ctx context.Context, store *database.Store, logger zerolog.Logger) error {
	settings, err := store.Settings(ctx)
	if err != nil {
		return err
	}
	if settings == nil || !settings.Enabled || settings.DailyRetentionDays <= 0 {
		logger.Debug().Msg("retention disabled, nothing to do")
		return nil
	}

	startTime := time.Now()
	cutoff := startTime.UTC().AddDate(0, 0, -settings.DailyRetentionDays)
	logger.Info().Time("cutoff", cutoff).Msg("starting retention cleanup")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("retention cleanup cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("retention cleanup done")
		}
	}()

	expired, err := store.ListBackups(ctx,
		database.WithListType(database.TypeAutomatic),
		database.WithListStatus(database.StatusCompleted),
		database.WithListOlderThan(cutoff))
	if err != nil {
		return err
	}

	if len(expired) == 0 {
		logger.Info().Msg("no expired backups found")
		return nil
	}

	totalSizeFreed := int64(0)
	filesDeleted := 0
	for i := range expired {
		record := &expired[i]
		if ctx.Err() != nil {
			break
		}

		logger.Info().
			Str("id", record.ID).
			Str("filename", record.Filename).
			Time("created_at", record.CreatedAt).
			Int64("size", record.SizeBytes).
			Msg("found expired backup")

		if store.DryRun {
			logger.Info().Str("id", record.ID).Msg("would delete expired backup (dry run)")
			continue
		}

		backup.RemoveBackupFiles(settings.StorageDir, record, logger)

		if err := store.DeleteBackup(ctx, record.ID); err != nil {
			logger.Error().Err(err).Str("id", record.ID).Msg("could not delete expired backup record")
			continue
		}

		totalSizeFreed += record.SizeBytes
		filesDeleted++
	}

	if filesDeleted > 0 {
		logger.Info().
			Int("backups_deleted", filesDeleted).
			Int64("total_freed", totalSizeFreed).
			Msg("deleted expired backups")
	}

	return nil
}
