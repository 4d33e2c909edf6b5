package config

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/database"
)

// PasswordEnv names the environment variable holding the encryption master
// password. Secrets never live in the config file.
const PasswordEnv = "STOCKVAULT_MASTER_PASSWORD"

type Config struct {
	StorageDir             string       `json:"storage_dir"`
	MaxStorage             SizeArgument `json:"max_storage,omitempty"`
	Enable                 bool         `json:"enable"`
	DailyAt                string       `json:"daily_at,omitempty"`
	Formats                []string     `json:"formats,omitempty"`
	IncludeAuditLogs       bool         `json:"include_audit_logs,omitempty"`
	DailyRetentionDays     int          `json:"daily_retention_days,omitempty"`
	WeeklyRetentionWeeks   int          `json:"weekly_retention_weeks,omitempty"`
	MonthlyRetentionMonths int          `json:"monthly_retention_months,omitempty"`
}

func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.Str("storage_dir", c.StorageDir)
	e.Bool("enable", c.Enable)

	if c.DailyAt != "" {
		e.Str("daily_at", c.DailyAt)
	}
	if len(c.Formats) > 0 {
		e.Strs("formats", c.Formats)
	}
	if c.MaxStorage.Size > 0 {
		e.Int64("max_storage", c.MaxStorage.Size)
	}
	if c.DailyRetentionDays > 0 {
		e.Int("daily_retention_days", c.DailyRetentionDays)
	}
}

// ToSettings maps the file config onto the persisted settings singleton.
func (c *Config) ToSettings() *database.BackupSettings {
	dailyAt := c.DailyAt
	if dailyAt == "" {
		dailyAt = "03:00"
	}

	return &database.BackupSettings{
		Enabled:                c.Enable,
		DailyAt:                dailyAt,
		AutoFormats:            strings.Join(c.Formats, ","),
		IncludeAuditLogs:       c.IncludeAuditLogs,
		DailyRetentionDays:     c.DailyRetentionDays,
		WeeklyRetentionWeeks:   c.WeeklyRetentionWeeks,
		MonthlyRetentionMonths: c.MonthlyRetentionMonths,
		StorageDir:             c.StorageDir,
		MaxStorageBytes:        c.MaxStorage.Size,
	}
}

// MasterPassword reads the encryption password from the environment. Empty
// when unset.
func MasterPassword() string {
	return os.Getenv(PasswordEnv)
}
