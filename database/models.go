package database

import (
	"strings"
	"time"
)

type BackupType string

const (
	TypeManual     BackupType = "manual"
	TypeAutomatic  BackupType = "automatic"
	TypePreRestore BackupType = "pre_restore"
)

type BackupFormat string

const (
	FormatCSV  BackupFormat = "csv"
	FormatJSON BackupFormat = "json"
	FormatSQL  BackupFormat = "sql"
	// FormatAll requests one backup per supported format.
	FormatAll BackupFormat = "all"
)

type BackupStatus string

const (
	StatusInProgress BackupStatus = "in_progress"
	StatusCompleted  BackupStatus = "completed"
	StatusFailed     BackupStatus = "failed"
	StatusCorrupted  BackupStatus = "corrupted"
)

// Backup is the persisted metadata record of a single backup file. Checksum
// is computed over the bytes as stored on disk, so over the ciphertext when
// Encrypted is set.
type Backup struct {
	ID               string `gorm:"primaryKey"`
	Filename         string `gorm:"uniqueIndex"`
	Type             BackupType   `gorm:"index"`
	Format           BackupFormat `gorm:"index"`
	Status           BackupStatus `gorm:"index"`
	SizeBytes        int64
	RecordCount      int64
	CreatedAt        time.Time `gorm:"index"`
	CreatedBy        string
	IncludeAuditLogs bool
	IncludeUsers     bool
	IncludeSettings  bool
	RangeFrom        *time.Time
	RangeTo          *time.Time
	Notes            string
	Encrypted        bool
	Checksum         string
	Fingerprint      int64
	Validated        bool
	ValidatedAt      *time.Time
}

// StoredFilename returns the on-disk name, including the encrypted suffix
// when applicable.
func (b *Backup) StoredFilename(encryptedSuffix string) string {
	if b.Encrypted {
		return b.Filename + encryptedSuffix
	}
	return b.Filename
}

// BackupSettings is a singleton row (ID is always 1) holding the automatic
// backup schedule and retention policy.
type BackupSettings struct {
	ID                     int `gorm:"primaryKey"`
	Enabled                bool
	DailyAt                string // "HH:MM", local time
	AutoFormats            string // comma separated list of formats
	IncludeAuditLogs       bool
	DailyRetentionDays     int
	WeeklyRetentionWeeks   int
	MonthlyRetentionMonths int
	StorageDir             string
	MaxStorageBytes        int64
	UpdatedAt              time.Time
}

// Formats parses AutoFormats into the format list for automatic runs.
func (s *BackupSettings) Formats() []BackupFormat {
	var out []BackupFormat
	for _, f := range splitComma(s.AutoFormats) {
		out = append(out, BackupFormat(f))
	}
	if len(out) == 0 {
		out = []BackupFormat{FormatJSON}
	}
	return out
}

// Item is an inventory record, the primary dataset of every backup.
type Item struct {
	ID             string `gorm:"primaryKey"`
	SKU            string `gorm:"index"`
	Name           string
	Category       string
	Location       string
	Quantity       int64 `gorm:"check:quantity >= 0"`
	UnitPriceCents int64
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuditLog records one action against the dataset. Append-only.
type AuditLog struct {
	ID         string `gorm:"primaryKey"`
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Changes    string // JSON blob
	CreatedAt  time.Time
}

type User struct {
	ID        string `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Name      string
	Role      string
	CreatedAt time.Time
}

type Setting struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
