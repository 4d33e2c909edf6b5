package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stockvault/backup/audit"
	"github.com/stockvault/backup/backup"
	"github.com/stockvault/backup/checksum"
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
	"github.com/stockvault/backup/filecrypt"
	"github.com/stockvault/backup/notify"
	"github.com/stockvault/backup/serializer"
)

type Mode string

const (
	// ModeFull replaces the whole dataset with the backup's contents.
	ModeFull Mode = "full"
	// ModeMerge upserts backup records into the live dataset, best-effort.
	ModeMerge Mode = "merge"
	// ModePreview reports what a restore would do without writing anything.
	ModePreview Mode = "preview"
)

type Options struct {
	Mode     Mode
	Password string
}

// Actor identifies the already-authenticated caller. Admin is a pre-verified
// assertion; this core does not own authorization logic.
type Actor struct {
	ID    string
	Admin bool
}

// Summary reports the outcome of one restore. A return value, not an entity.
type Summary struct {
	ItemsAdded   int
	ItemsUpdated int
	ItemsSkipped int
	Errors       []string
	Duration     time.Duration
}

// Pipeline orchestrates file retrieval, checksum/decrypt, deserialization
// and the transactional apply against the live dataset.
type Pipeline struct {
	Store      *database.Store
	Backups    *backup.Pipeline
	StorageDir string
	Audit      audit.Sink
	Notifier   notify.Notifier
	Logger     zerolog.Logger
	DryRun     bool
}

// Run restores the backup identified by backupID.
func (p *Pipeline) Run(ctx context.Context, backupID string, opts Options, actor Actor) (*Summary, error) {
	startTime := time.Now()

	if opts.Mode == "" {
		opts.Mode = ModePreview
	}

	logger := p.Logger.With().
		Str("backup", backupID).
		Str("mode", string(opts.Mode)).
		Logger()

	summary, err := p.run(ctx, backupID, opts, actor, startTime, logger)
	if err != nil {
		logger.Error().Err(err).Float64("seconds", time.Since(startTime).Seconds()).Msg("restore failed")
		p.Notifier.NotifyFailure(ctx, "restore", backupID, err)
		return nil, err
	}

	logger.Info().
		Int("added", summary.ItemsAdded).
		Int("updated", summary.ItemsUpdated).
		Int("skipped", summary.ItemsSkipped).
		Float64("seconds", summary.Duration.Seconds()).
		Msg("restore done")
	return summary, nil
}

func (p *Pipeline) run(
	ctx context.Context,
	backupID string,
	opts Options,
	actor Actor,
	startTime time.Time,
	logger zerolog.Logger,
) (*Summary, error) {
	// Preconditions, in order, before any side effect.
	if !actor.Admin {
		return nil, fault.New(fault.Unauthorized, "restore requires administrator privilege")
	}

	if opts.Mode != ModeFull && opts.Mode != ModeMerge && opts.Mode != ModePreview {
		return nil, fault.Newf(fault.RestoreFailed, "unknown restore mode %q", opts.Mode)
	}

	record, err := p.Store.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}

	if record.Status != database.StatusCompleted {
		return nil, fault.Newf(fault.RestoreFailed, "cannot restore backup in status %s", record.Status)
	}

	path := filepath.Join(p.StorageDir, record.StoredFilename(filecrypt.Suffix))
	if _, err := os.Stat(path); err != nil {
		return nil, fault.Newf(fault.NotFound, "backup file %s missing", record.StoredFilename(filecrypt.Suffix))
	}

	if !record.Encrypted {
		if !checksum.Verify(path, record.Checksum) {
			record.Status = database.StatusCorrupted
			if updateErr := p.Store.UpdateBackup(ctx, record); updateErr != nil {
				logger.Warn().Err(updateErr).Msg("could not mark backup corrupted")
			}
			return nil, fault.Newf(fault.Corrupted, "checksum mismatch for backup %s", record.ID)
		}
	} else if opts.Password == "" {
		// For encrypted files the auth tag is the corruption check; it needs
		// the password.
		return nil, fault.New(fault.DecryptFailed, "backup is encrypted and no password was supplied")
	}

	payload, err := p.readPayload(record, path, opts.Password)
	if err != nil {
		return nil, err
	}

	codec, err := serializer.ForFormat(record.Format)
	if err != nil {
		return nil, err
	}
	snap, err := codec.Deserialize(payload)
	if err != nil {
		return nil, err
	}

	total := int(snap.RecordCount())

	if opts.Mode == ModePreview {
		return &Summary{ItemsAdded: total, Duration: time.Since(startTime)}, nil
	}

	if p.DryRun {
		logger.Info().Int("records", total).Msg("would apply restore (dry run)")
		return &Summary{ItemsAdded: total, Duration: time.Since(startTime)}, nil
	}

	// Safety net: a full restore is destructive, so the current state is
	// backed up first and a bad restore stays recoverable. Never skipped.
	if opts.Mode == ModeFull {
		safety, err := p.Backups.Create(ctx, backup.Params{
			Name:      "pre-restore",
			Format:    database.FormatJSON,
			Type:      database.TypePreRestore,
			Include:   database.AllInclusions(),
			CreatedBy: actor.ID,
			Notes:     fmt.Sprintf("safety backup before full restore of %s", record.ID),
		})
		if err != nil && !fault.IsCode(err, fault.NoData) {
			return nil, fault.Wrap(fault.RestoreFailed, "could not take pre-restore backup", err)
		}
		if safety != nil {
			logger.Info().Str("safety_backup", safety.ID).Msg("pre-restore backup taken")
		}
	}

	summary := &Summary{}
	switch opts.Mode {
	case ModeFull:
		err = p.applyFull(ctx, record, snap, summary)
	case ModeMerge:
		err = p.applyMerge(ctx, snap, summary)
	}
	if err != nil {
		return nil, err
	}

	p.Audit.LogAction(ctx, audit.Entry{
		ActorID:    actor.ID,
		Action:     "backup.restore",
		EntityType: "backup",
		EntityID:   record.ID,
		Changes: map[string]interface{}{
			"mode":    string(opts.Mode),
			"added":   summary.ItemsAdded,
			"updated": summary.ItemsUpdated,
			"skipped": summary.ItemsSkipped,
		},
	})

	summary.Duration = time.Since(startTime)
	return summary, nil
}

// readPayload returns the plaintext serialized snapshot. Encrypted backups
// are copied aside and decrypted on the copy so the stored file survives the
// cipher's remove-the-original contract.
func (p *Pipeline) readPayload(record *database.Backup, path string, password string) ([]byte, error) {
	if !record.Encrypted {
		return os.ReadFile(path)
	}

	tmpDir, err := os.MkdirTemp("", "stockvault-restore-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(tmpDir, record.Filename+filecrypt.Suffix)
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return nil, err
	}

	plainPath, err := filecrypt.Decrypt(tmpPath, password)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(plainPath)
}

// applyFull wipes the dataset and reinserts everything from the backup as
// one atomic unit: a failure rolls the prior state back untouched.
func (p *Pipeline) applyFull(ctx context.Context, record *database.Backup, snap *database.Snapshot, summary *Summary) error {
	added := 0
	err := p.Store.RunInTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&database.Item{}).Error; err != nil {
			return err
		}
		for i := range snap.Items {
			if err := tx.Create(&snap.Items[i]).Error; err != nil {
				return err
			}
			added++
		}

		if record.IncludeAuditLogs {
			if err := tx.Where("1 = 1").Delete(&database.AuditLog{}).Error; err != nil {
				return err
			}
			for i := range snap.AuditLogs {
				if err := tx.Create(&snap.AuditLogs[i]).Error; err != nil {
					return err
				}
				added++
			}
		}

		if record.IncludeUsers {
			if err := tx.Where("1 = 1").Delete(&database.User{}).Error; err != nil {
				return err
			}
			for i := range snap.Users {
				if err := tx.Create(&snap.Users[i]).Error; err != nil {
					return err
				}
				added++
			}
		}

		if record.IncludeSettings {
			if err := tx.Where("1 = 1").Delete(&database.Setting{}).Error; err != nil {
				return err
			}
			for i := range snap.Settings {
				if err := tx.Create(&snap.Settings[i]).Error; err != nil {
					return err
				}
				added++
			}
		}

		return nil
	})
	if err != nil {
		return fault.Wrap(fault.RestoreFailed, "full restore rolled back", err)
	}

	summary.ItemsAdded = added
	return nil
}

// applyMerge upserts each backup record by identity. Per-record failures are
// counted and collected instead of aborting: one bad record must not block
// the rest.
func (p *Pipeline) applyMerge(ctx context.Context, snap *database.Snapshot, summary *Summary) error {
	return p.Store.RunInTransaction(ctx, func(tx *gorm.DB) error {
		for i := range snap.Items {
			item := snap.Items[i]
			mergeOne(tx, summary, fmt.Sprintf("item %s", item.ID), &database.Item{}, "id = ?", item.ID, &item)
		}
		for i := range snap.AuditLogs {
			log := snap.AuditLogs[i]
			mergeOne(tx, summary, fmt.Sprintf("audit log %s", log.ID), &database.AuditLog{}, "id = ?", log.ID, &log)
		}
		for i := range snap.Users {
			user := snap.Users[i]
			mergeOne(tx, summary, fmt.Sprintf("user %s", user.ID), &database.User{}, "id = ?", user.ID, &user)
		}
		for i := range snap.Settings {
			setting := snap.Settings[i]
			mergeOne(tx, summary, fmt.Sprintf("setting %s", setting.Key), &database.Setting{}, "key = ?", setting.Key, &setting)
		}
		return nil
	})
}

func mergeOne(tx *gorm.DB, summary *Summary, label string, probe interface{}, cond string, key string, value interface{}) {
	err := tx.First(probe, cond, key).Error
	switch {
	case err == nil:
		if err := tx.Save(value).Error; err != nil {
			summary.ItemsSkipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", label, err))
			return
		}
		summary.ItemsUpdated++
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(value).Error; err != nil {
			summary.ItemsSkipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", label, err))
			return
		}
		summary.ItemsAdded++
	default:
		summary.ItemsSkipped++
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", label, err))
	}
}
