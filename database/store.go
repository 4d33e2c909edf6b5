package database

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stockvault/backup/fault"
)

// Store wraps the metadata and dataset database. The mutex serializes
// restore transactions against backup snapshot reads so a concurrent backup
// cannot capture a half-restored dataset.
type Store struct {
	Lock   sync.Mutex
	Cli    *gorm.DB
	Logger zerolog.Logger
	DryRun bool
}

func (s *Store) CreateBackup(ctx context.Context, b *Backup) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	if s.DryRun {
		s.Logger.Info().Str("id", b.ID).Str("filename", b.Filename).Msg("would create backup record (dry run)")
		return nil
	}
	return s.Cli.WithContext(ctx).Create(b).Error
}

func (s *Store) UpdateBackup(ctx context.Context, b *Backup) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	if s.DryRun {
		s.Logger.Info().Str("id", b.ID).Str("status", string(b.Status)).Msg("would update backup record (dry run)")
		return nil
	}
	return s.Cli.WithContext(ctx).Save(b).Error
}

func (s *Store) GetBackup(ctx context.Context, id string) (*Backup, error) {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	b := &Backup{}
	err := s.Cli.WithContext(ctx).First(b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fault.Newf(fault.NotFound, "backup %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) ListBackups(ctx context.Context, opts ...ListOption) ([]Backup, error) {
	o := listOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	s.Lock.Lock()
	defer s.Lock.Unlock()

	query := s.Cli.WithContext(ctx).Order("created_at DESC")
	if o.backupType != nil {
		query = query.Where("type = ?", *o.backupType)
	}
	if o.format != nil {
		query = query.Where("format = ?", *o.format)
	}
	if o.status != nil {
		query = query.Where("status = ?", *o.status)
	}
	if o.olderThan != nil {
		query = query.Where("created_at < ?", *o.olderThan)
	}
	if o.since != nil {
		query = query.Where("created_at >= ?", *o.since)
	}
	if o.limit > 0 {
		query = query.Limit(o.limit)
	}

	var backups []Backup
	if err := query.Find(&backups).Error; err != nil {
		return nil, err
	}
	return backups, nil
}

// LatestBackup returns the most recent backup matching the options, or nil
// when there is none.
func (s *Store) LatestBackup(ctx context.Context, opts ...ListOption) (*Backup, error) {
	backups, err := s.ListBackups(ctx, append(opts, WithListLimit(1))...)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, nil
	}
	return &backups[0], nil
}

func (s *Store) DeleteBackup(ctx context.Context, id string) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	if s.DryRun {
		s.Logger.Info().Str("id", id).Msg("would delete backup record (dry run)")
		return nil
	}
	return s.Cli.WithContext(ctx).Delete(&Backup{}, "id = ?", id).Error
}

// TotalBackupBytes sums the file sizes of all completed backups.
func (s *Store) TotalBackupBytes(ctx context.Context) (int64, error) {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	var total int64
	err := s.Cli.WithContext(ctx).Model(&Backup{}).
		Where("status = ?", StatusCompleted).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

// Settings returns the singleton settings row, or nil when none exists.
func (s *Store) Settings(ctx context.Context) (*BackupSettings, error) {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	settings := &BackupSettings{}
	err := s.Cli.WithContext(ctx).First(settings, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings *BackupSettings) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	settings.ID = 1
	settings.UpdatedAt = time.Now().UTC()
	if s.DryRun {
		s.Logger.Info().Msg("would save backup settings (dry run)")
		return nil
	}
	return s.Cli.WithContext(ctx).Save(settings).Error
}

// RunInTransaction executes fn as one atomic unit of work. A returned error
// rolls the whole transaction back. The store lock is held for the duration
// so no snapshot can be read mid-restore.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.Lock.Lock()
	defer s.Lock.Unlock()

	return s.Cli.WithContext(ctx).Transaction(fn)
}
