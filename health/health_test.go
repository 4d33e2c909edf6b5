package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/health"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&database.Backup{},
		&database.BackupSettings{},
		&database.Item{},
		&database.AuditLog{},
		&database.User{},
		&database.Setting{},
	))

	return &database.Store{
		Cli:    db,
		Logger: zerolog.New(zerolog.NewTestWriter(t)),
	}
}

func seedBackup(t *testing.T, store *database.Store, id string, typ database.BackupType, status database.BackupStatus, age time.Duration, size int64) {
	t.Helper()
	require.NoError(t, store.CreateBackup(context.Background(), &database.Backup{
		ID:        id,
		Filename:  id + ".json",
		Type:      typ,
		Format:    database.FormatJSON,
		Status:    status,
		SizeBytes: size,
		CreatedAt: time.Now().UTC().Add(-age),
	}))
}

func alertMessages(h *health.Health, level health.AlertLevel) []string {
	var msgs []string
	for _, a := range h.Alerts {
		if a.Level == level {
			msgs = append(msgs, a.Message)
		}
	}
	return msgs
}

func TestMetrics_NoBackups(t *testing.T) {
	store := newTestStore(t)

	h, err := health.Metrics(context.Background(), store, time.Now().UTC())
	require.NoError(t, err)

	assert.Nil(t, h.LastBackupAt)
	assert.Zero(t, h.Streak)
	assert.Zero(t, h.AvgSizeMB)

	errs := alertMessages(h, health.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no backups")
}

func TestMetrics_Healthy(t *testing.T) {
	store := newTestStore(t)
	seedBackup(t, store, "b1", database.TypeAutomatic, database.StatusCompleted, time.Hour, 10*1024*1024)
	seedBackup(t, store, "b2", database.TypeAutomatic, database.StatusCompleted, 25*time.Hour, 30*1024*1024)

	h, err := health.Metrics(context.Background(), store, time.Now().UTC())
	require.NoError(t, err)

	require.NotNil(t, h.LastBackupAt)
	assert.Equal(t, 2, h.Streak)
	assert.Zero(t, h.FailedLast30Days)
	assert.InDelta(t, 20.0, h.AvgSizeMB, 0.01)
	assert.Empty(t, h.Alerts)
}

func TestMetrics_StaleBackup(t *testing.T) {
	store := newTestStore(t)
	seedBackup(t, store, "b1", database.TypeManual, database.StatusCompleted, 30*time.Hour, 1024)

	h, err := health.Metrics(context.Background(), store, time.Now().UTC())
	require.NoError(t, err)

	warnings := alertMessages(h, health.LevelWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "hours old")
	assert.Empty(t, alertMessages(h, health.LevelError))
}

func TestMetrics_StreakStopsAtFailure(t *testing.T) {
	store := newTestStore(t)
	seedBackup(t, store, "newest", database.TypeAutomatic, database.StatusCompleted, 1*time.Hour, 1024)
	seedBackup(t, store, "next", database.TypeAutomatic, database.StatusCompleted, 2*time.Hour, 1024)
	seedBackup(t, store, "broken", database.TypeAutomatic, database.StatusFailed, 3*time.Hour, 0)
	seedBackup(t, store, "older", database.TypeAutomatic, database.StatusCompleted, 4*time.Hour, 1024)

	h, err := health.Metrics(context.Background(), store, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, 2, h.Streak, "streak counts newest-first up to the failure")
	assert.Equal(t, 1, h.FailedLast30Days)

	errs := alertMessages(h, health.LevelError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "1 automatic backups failed")
}

func TestMetrics_OldFailuresIgnored(t *testing.T) {
	store := newTestStore(t)
	seedBackup(t, store, "recent", database.TypeAutomatic, database.StatusCompleted, time.Hour, 1024)
	seedBackup(t, store, "ancient-failure", database.TypeAutomatic, database.StatusFailed, 40*24*time.Hour, 0)

	h, err := health.Metrics(context.Background(), store, time.Now().UTC())
	require.NoError(t, err)

	assert.Zero(t, h.FailedLast30Days, "failures outside the 30 day window do not count")
	assert.Empty(t, alertMessages(h, health.LevelError))
}

func TestMetrics_StorageWarning(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveSettings(ctx, &database.BackupSettings{
		Enabled:         true,
		DailyAt:         "03:00",
		MaxStorageBytes: 100 * 1024 * 1024,
	}))
	// 85 of 100 MB used, past the 80% threshold.
	seedBackup(t, store, "big", database.TypeAutomatic, database.StatusCompleted, time.Hour, 85*1024*1024)

	h, err := health.Metrics(ctx, store, time.Now().UTC())
	require.NoError(t, err)

	assert.InDelta(t, 85.0/1024, h.StorageUsedGB, 0.001)
	assert.InDelta(t, 100.0/1024, h.StorageTotalGB, 0.001)

	warnings := alertMessages(h, health.LevelWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "85% of quota")
}

func TestMetrics_NextScheduledRollsOver(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveSettings(ctx, &database.BackupSettings{
		Enabled: true,
		DailyAt: "03:00",
	}))
	seedBackup(t, store, "b1", database.TypeAutomatic, database.StatusCompleted, time.Hour, 1024)

	// 10:00 is past today's 03:00 slot, so the next run is tomorrow.
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	h, err := health.Metrics(ctx, store, now)
	require.NoError(t, err)

	require.NotNil(t, h.NextScheduledAt)
	assert.Equal(t, time.Date(2026, 5, 5, 3, 0, 0, 0, time.UTC), *h.NextScheduledAt)

	// 01:00 is before the slot, so it is still today.
	now = time.Date(2026, 5, 4, 1, 0, 0, 0, time.UTC)
	h, err = health.Metrics(ctx, store, now)
	require.NoError(t, err)
	require.NotNil(t, h.NextScheduledAt)
	assert.Equal(t, time.Date(2026, 5, 4, 3, 0, 0, 0, time.UTC), *h.NextScheduledAt)
}

func TestMetrics_DisabledScheduleHasNoNextRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveSettings(ctx, &database.BackupSettings{
		Enabled: false,
		DailyAt: "03:00",
	}))
	seedBackup(t, store, "b1", database.TypeManual, database.StatusCompleted, time.Hour, 1024)

	h, err := health.Metrics(ctx, store, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, h.NextScheduledAt)
}
