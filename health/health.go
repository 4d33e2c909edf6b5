package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
)

const (
	historyWindow    = 30 * 24 * time.Hour
	staleAfter       = 24 * time.Hour
	storageWarnShare = 0.8
)

type AlertLevel string

const (
	LevelWarning AlertLevel = "warning"
	LevelError   AlertLevel = "error"
)

type Alert struct {
	Level   AlertLevel
	Message string
}

// Health aggregates backup history into freshness, streak, storage and alert
// signals. Computed fresh on every call, never persisted.
type Health struct {
	LastBackupAt     *time.Time
	NextScheduledAt  *time.Time
	Streak           int
	FailedLast30Days int
	AvgSizeMB        float64
	StorageUsedGB    float64
	StorageTotalGB   float64
	Alerts           []Alert
}

func (h *Health) MarshalZerologObject(e *zerolog.Event) {
	if h.LastBackupAt != nil {
		e.Time("last_backup_at", *h.LastBackupAt)
	}
	if h.NextScheduledAt != nil {
		e.Time("next_scheduled_at", *h.NextScheduledAt)
	}
	e.Int("streak", h.Streak)
	e.Int("failed_30d", h.FailedLast30Days)
	e.Float64("avg_size_mb", h.AvgSizeMB)
	e.Float64("storage_used_gb", h.StorageUsedGB)
	e.Float64("storage_total_gb", h.StorageTotalGB)
	e.Int("alerts", len(h.Alerts))
}

// Metrics computes the health report as of now.
func Metrics(ctx context.Context, store *database.Store, now time.Time) (*Health, error) {
	h := &Health{}

	settings, err := store.Settings(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.HealthError, "could not read backup settings", err)
	}

	last, err := store.LatestBackup(ctx, database.WithListStatus(database.StatusCompleted))
	if err != nil {
		return nil, fault.Wrap(fault.HealthError, "could not read backup history", err)
	}
	if last != nil {
		t := last.CreatedAt
		h.LastBackupAt = &t
	}

	if settings != nil && settings.Enabled {
		if next, ok := nextRun(settings.DailyAt, now); ok {
			h.NextScheduledAt = &next
		}
	}

	since := now.Add(-historyWindow)

	automatic, err := store.ListBackups(ctx,
		database.WithListType(database.TypeAutomatic),
		database.WithListSince(since))
	if err != nil {
		return nil, fault.Wrap(fault.HealthError, "could not read automatic backup history", err)
	}
	// Newest first: the streak stops at the first non-completed run.
	for _, b := range automatic {
		if b.Status != database.StatusCompleted {
			break
		}
		h.Streak++
	}
	for _, b := range automatic {
		if b.Status == database.StatusFailed {
			h.FailedLast30Days++
		}
	}

	completed, err := store.ListBackups(ctx,
		database.WithListStatus(database.StatusCompleted),
		database.WithListSince(since))
	if err != nil {
		return nil, fault.Wrap(fault.HealthError, "could not read completed backup history", err)
	}
	if len(completed) > 0 {
		var total int64
		for _, b := range completed {
			total += b.SizeBytes
		}
		h.AvgSizeMB = float64(total) / float64(len(completed)) / (1024 * 1024)
	}

	used, err := store.TotalBackupBytes(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.HealthError, "could not sum backup storage", err)
	}
	h.StorageUsedGB = float64(used) / (1024 * 1024 * 1024)
	if settings != nil && settings.MaxStorageBytes > 0 {
		h.StorageTotalGB = float64(settings.MaxStorageBytes) / (1024 * 1024 * 1024)
	}

	h.Alerts = computeAlerts(h, settings, used, now)
	return h, nil
}

func computeAlerts(h *Health, settings *database.BackupSettings, usedBytes int64, now time.Time) []Alert {
	var alerts []Alert

	if h.LastBackupAt == nil {
		alerts = append(alerts, Alert{Level: LevelError, Message: "no backups have ever completed"})
	} else if now.Sub(*h.LastBackupAt) > staleAfter {
		alerts = append(alerts, Alert{
			Level:   LevelWarning,
			Message: fmt.Sprintf("last backup is %.0f hours old", now.Sub(*h.LastBackupAt).Hours()),
		})
	}

	if settings != nil && settings.MaxStorageBytes > 0 &&
		float64(usedBytes) > float64(settings.MaxStorageBytes)*storageWarnShare {
		alerts = append(alerts, Alert{
			Level:   LevelWarning,
			Message: fmt.Sprintf("backup storage at %.0f%% of quota", 100*float64(usedBytes)/float64(settings.MaxStorageBytes)),
		})
	}

	if h.FailedLast30Days > 0 {
		alerts = append(alerts, Alert{
			Level:   LevelError,
			Message: fmt.Sprintf("%d automatic backups failed in the last 30 days", h.FailedLast30Days),
		})
	}

	return alerts
}

// nextRun resolves a "HH:MM" schedule to the next occurrence after now,
// rolling to the next day when today's slot already passed.
func nextRun(dailyAt string, now time.Time) (time.Time, bool) {
	var hour, minute int
	if _, err := fmt.Sscanf(dailyAt, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, false
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}
