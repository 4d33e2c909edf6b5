package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stockvault/backup/audit"
	"github.com/stockvault/backup/checksum"
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
	"github.com/stockvault/backup/filecrypt"
	"github.com/stockvault/backup/fileutils"
	"github.com/stockvault/backup/notify"
	"github.com/stockvault/backup/serializer"
)

// Storage is considered full above this share of the configured quota.
const storageFullThreshold = 0.95

// Params describe one backup request.
type Params struct {
	Name      string
	Format    database.BackupFormat
	Type      database.BackupType
	Include   database.Inclusions
	RangeFrom *time.Time
	RangeTo   *time.Time
	Encrypt   bool
	Password  string
	Notes     string
	CreatedBy string
}

// Pipeline orchestrates snapshot retrieval, serialization, optional
// encryption, checksumming and metadata persistence.
type Pipeline struct {
	Store           *database.Store
	StorageDir      string
	MaxStorageBytes int64
	Audit           audit.Sink
	Notifier        notify.Notifier
	Logger          zerolog.Logger
	DryRun          bool
}

// Create runs the backup pipeline. With Format set to FormatAll every format
// is produced as an independent record and the first completed backup is
// returned; the rest are visible through ListBackups.
func (p *Pipeline) Create(ctx context.Context, params Params) (*database.Backup, error) {
	if params.Name == "" {
		params.Name = "backup"
	}
	if params.Type == "" {
		params.Type = database.TypeManual
	}
	if params.Encrypt && params.Password == "" {
		return nil, fault.New(fault.EncryptFailed, "encryption requested without a password")
	}

	codecs, err := serializer.Expand(params.Format)
	if err != nil {
		return nil, err
	}

	logger := p.Logger.With().
		Str("name", params.Name).
		Str("type", string(params.Type)).
		Logger()

	startTime := time.Now()
	logger.Info().Str("format", string(params.Format)).Msg("starting backup")
	defer func() {
		tookSeconds := time.Since(startTime).Seconds()
		if ctx.Err() != nil {
			logger.Info().Float64("seconds", tookSeconds).Msg("backup cancelled")
		} else {
			logger.Info().Float64("seconds", tookSeconds).Msg("backup done")
		}
	}()

	snap, err := p.Store.FetchSnapshot(ctx, params.Include, params.RangeFrom, params.RangeTo)
	if err != nil {
		return nil, err
	}
	if snap.IncludedCount(params.Include) == 0 {
		return nil, fault.New(fault.NoData, "dataset snapshot is empty")
	}

	if err := p.checkHeadroom(ctx); err != nil {
		return nil, err
	}

	if err := p.ensureStorageDir(); err != nil {
		return nil, err
	}

	fingerprint := datasetFingerprint(snap, params.Include)

	var first *database.Backup
	for _, codec := range codecs {
		if ctx.Err() != nil {
			break
		}

		record, err := p.createOne(ctx, snap, codec, params, fingerprint, logger)
		if err != nil {
			p.Notifier.NotifyFailure(ctx, "backup", params.Name, err)
			return nil, err
		}
		if first == nil {
			first = record
		}
	}

	return first, nil
}

// createOne produces a single backup file plus its metadata record. Each
// format is its own separately-recorded transaction: a failure here never
// touches records created for other formats.
func (p *Pipeline) createOne(
	ctx context.Context,
	snap *database.Snapshot,
	codec serializer.Format,
	params Params,
	fingerprint uint64,
	logger zerolog.Logger,
) (*database.Backup, error) {
	logger = logger.With().Str("format", string(codec.Name())).Logger()

	// Automatic runs skip formats whose dataset is identical to the previous
	// automatic backup. Manual backups always write.
	if params.Type == database.TypeAutomatic {
		previous, err := p.Store.LatestBackup(ctx,
			database.WithListType(database.TypeAutomatic),
			database.WithListStatus(database.StatusCompleted),
			database.WithListFormat(codec.Name()))
		if err != nil {
			return nil, err
		}
		if previous != nil && previous.Fingerprint == int64(fingerprint) {
			logger.Info().Str("previous", previous.ID).Msg("dataset unchanged since last automatic backup, skipping")
			return previous, nil
		}
	}

	payload, err := codec.Serialize(snap, params.Include)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidFormat, "could not serialize snapshot", err)
	}

	now := time.Now().UTC()
	record := &database.Backup{
		ID:               uuid.NewString(),
		Filename:         deriveFilename(params.Name, now, codec.Ext()),
		Type:             params.Type,
		Format:           codec.Name(),
		Status:           database.StatusInProgress,
		CreatedAt:        now,
		CreatedBy:        params.CreatedBy,
		IncludeAuditLogs: params.Include.AuditLogs,
		IncludeUsers:     params.Include.Users,
		IncludeSettings:  params.Include.Settings,
		RangeFrom:        params.RangeFrom,
		RangeTo:          params.RangeTo,
		Notes:            params.Notes,
		Encrypted:        params.Encrypt,
	}

	// The record exists in IN_PROGRESS before any file I/O so a crash never
	// leaves an unexplained file behind.
	if err := p.Store.CreateBackup(ctx, record); err != nil {
		return nil, err
	}

	if p.DryRun {
		logger.Info().Str("filename", record.Filename).Int("bytes", len(payload)).Msg("would write backup file (dry run)")
		record.Status = database.StatusCompleted
		record.SizeBytes = int64(len(payload))
		record.RecordCount = snap.IncludedCount(params.Include)
		record.Checksum = checksum.Digest(payload)
		record.Fingerprint = int64(fingerprint)
		return record, nil
	}

	path := filepath.Join(p.StorageDir, record.Filename)
	if err := os.WriteFile(path, payload, 0600); err != nil {
		return nil, p.markFailed(ctx, record, fmt.Errorf("could not write backup file: %w", err), logger)
	}

	if params.Encrypt {
		path, err = filecrypt.Encrypt(path, params.Password)
		if err != nil {
			return nil, p.markFailed(ctx, record, err, logger)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, p.markFailed(ctx, record, err, logger)
	}
	digest, err := checksum.DigestFile(path)
	if err != nil {
		return nil, p.markFailed(ctx, record, err, logger)
	}

	record.SizeBytes = info.Size()
	record.RecordCount = snap.IncludedCount(params.Include)
	record.Checksum = digest
	record.Fingerprint = int64(fingerprint)
	record.Status = database.StatusCompleted
	if err := p.Store.UpdateBackup(ctx, record); err != nil {
		return nil, p.markFailed(ctx, record, err, logger)
	}

	logger.Info().
		Str("id", record.ID).
		Str("path", path).
		Int64("bytes", record.SizeBytes).
		Int64("records", record.RecordCount).
		Bool("encrypted", record.Encrypted).
		Msg("backup file written")

	p.Audit.LogAction(ctx, audit.Entry{
		ActorID:    params.CreatedBy,
		Action:     "backup.create",
		EntityType: "backup",
		EntityID:   record.ID,
		Changes: map[string]interface{}{
			"format":    string(record.Format),
			"records":   record.RecordCount,
			"encrypted": record.Encrypted,
		},
	})

	return record, nil
}

// markFailed flips the in-flight record to FAILED before propagating, so the
// store never shows a phantom IN_PROGRESS record. The file, if any, is left
// on disk and treated as untrusted.
func (p *Pipeline) markFailed(ctx context.Context, record *database.Backup, cause error, logger zerolog.Logger) error {
	record.Status = database.StatusFailed
	if err := p.Store.UpdateBackup(ctx, record); err != nil {
		logger.Error().Err(err).Str("id", record.ID).Msg("could not mark backup record failed")
	}
	logger.Error().Err(cause).Str("id", record.ID).Msg("backup failed")
	return cause
}

func (p *Pipeline) checkHeadroom(ctx context.Context) error {
	if p.MaxStorageBytes <= 0 {
		return nil
	}
	used, err := p.Store.TotalBackupBytes(ctx)
	if err != nil {
		return err
	}
	if float64(used) >= float64(p.MaxStorageBytes)*storageFullThreshold {
		return fault.Newf(fault.StorageFull, "backup storage at %d of %d bytes", used, p.MaxStorageBytes)
	}
	return nil
}

func (p *Pipeline) ensureStorageDir() error {
	if p.DryRun {
		return nil
	}
	if err := os.MkdirAll(p.StorageDir, 0700); err != nil {
		return fmt.Errorf("could not create storage directory: %w", err)
	}
	if err := fileutils.VerifyWritable(p.StorageDir); err != nil {
		return fmt.Errorf("storage directory must be writable: %w", err)
	}
	return nil
}

// deriveFilename builds "<name>-<timestamp>.<ext>" with the characters that
// upset filesystems replaced.
func deriveFilename(name string, ts time.Time, ext string) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(ts.Format(time.RFC3339))
	return fmt.Sprintf("%s-%s.%s", name, stamp, ext)
}

// datasetFingerprint hashes the snapshot content a backup would contain.
// Serializer metadata such as the fetch timestamp is excluded, so an unchanged
// dataset always maps to the same fingerprint.
func datasetFingerprint(snap *database.Snapshot, inc database.Inclusions) uint64 {
	buf := &bytes.Buffer{}
	for _, it := range snap.Items {
		fmt.Fprintf(buf, "item|%s|%s|%s|%s|%s|%d|%d|%s|%d|%d\n",
			it.ID, it.SKU, it.Name, it.Category, it.Location,
			it.Quantity, it.UnitPriceCents, it.Notes,
			it.CreatedAt.UnixNano(), it.UpdatedAt.UnixNano())
	}
	if inc.AuditLogs {
		for _, l := range snap.AuditLogs {
			fmt.Fprintf(buf, "log|%s|%s|%s|%s|%s|%s|%d\n",
				l.ID, l.ActorID, l.Action, l.EntityType, l.EntityID, l.Changes, l.CreatedAt.UnixNano())
		}
	}
	if inc.Users {
		for _, u := range snap.Users {
			fmt.Fprintf(buf, "user|%s|%s|%s|%s|%d\n", u.ID, u.Email, u.Name, u.Role, u.CreatedAt.UnixNano())
		}
	}
	if inc.Settings {
		for _, s := range snap.Settings {
			fmt.Fprintf(buf, "setting|%s|%s|%d\n", s.Key, s.Value, s.UpdatedAt.UnixNano())
		}
	}
	return fileutils.Fingerprint(buf.Bytes())
}
