package backup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/audit"
	"github.com/stockvault/backup/checksum"
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
	"github.com/stockvault/backup/filecrypt"
)

// Validate re-verifies the stored checksum of a backup. A mismatch downgrades
// a COMPLETED record to FAILED and returns a Corrupted fault; the record is
// stamped Validated/ValidatedAt either way.
func (p *Pipeline) Validate(ctx context.Context, id string, actorID string) (*database.Backup, error) {
	record, err := p.Store.GetBackup(ctx, id)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(p.StorageDir, record.StoredFilename(filecrypt.Suffix))
	ok := checksum.Verify(path, record.Checksum)

	now := time.Now().UTC()
	record.Validated = true
	record.ValidatedAt = &now

	if !ok && record.Status == database.StatusCompleted {
		record.Status = database.StatusFailed
	}
	if err := p.Store.UpdateBackup(ctx, record); err != nil {
		return nil, err
	}

	p.Audit.LogAction(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     "backup.validate",
		EntityType: "backup",
		EntityID:   record.ID,
		Changes:    map[string]interface{}{"valid": ok},
	})

	if !ok {
		p.Logger.Warn().Str("id", record.ID).Str("path", path).Msg("backup checksum mismatch")
		return record, fault.Newf(fault.Corrupted, "checksum mismatch for backup %s", record.ID)
	}

	p.Logger.Info().Str("id", record.ID).Msg("backup validated")
	return record, nil
}

// Delete removes a backup's metadata record and its on-disk file(s). An
// AUTOMATIC backup still inside the daily retention window is protected.
func (p *Pipeline) Delete(ctx context.Context, id string, actorID string) error {
	record, err := p.Store.GetBackup(ctx, id)
	if err != nil {
		return err
	}

	if record.Type == database.TypeAutomatic {
		settings, err := p.Store.Settings(ctx)
		if err != nil {
			return err
		}
		if settings != nil && settings.DailyRetentionDays > 0 {
			cutoff := time.Now().UTC().AddDate(0, 0, -settings.DailyRetentionDays)
			if record.CreatedAt.After(cutoff) {
				return fault.Newf(fault.RetentionViolation,
					"automatic backup %s is inside its %d-day retention window", record.ID, settings.DailyRetentionDays)
			}
		}
	}

	if p.DryRun {
		p.Logger.Info().Str("id", record.ID).Msg("would delete backup (dry run)")
		return nil
	}

	RemoveBackupFiles(p.StorageDir, record, p.Logger)

	if err := p.Store.DeleteBackup(ctx, record.ID); err != nil {
		return err
	}

	p.Audit.LogAction(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     "backup.delete",
		EntityType: "backup",
		EntityID:   record.ID,
		Changes:    map[string]interface{}{"filename": record.Filename},
	})

	p.Logger.Info().Str("id", record.ID).Str("filename", record.Filename).Msg("backup deleted")
	return nil
}

// RemoveBackupFiles deletes the backup's primary file and any encrypted
// sibling. Missing files are tolerated: a record whose file is already gone
// must still be deletable.
func RemoveBackupFiles(storageDir string, record *database.Backup, logger zerolog.Logger) {
	for _, name := range []string{record.Filename, record.Filename + filecrypt.Suffix} {
		path := filepath.Join(storageDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("could not remove backup file")
		}
	}
}
