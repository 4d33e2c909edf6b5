package restore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/stockvault/backup/audit"
	"github.com/stockvault/backup/backup"
	"github.com/stockvault/backup/checksum"
	"github.com/stockvault/backup/database"
	"github.com/stockvault/backup/fault"
	"github.com/stockvault/backup/notify"
	"github.com/stockvault/backup/restore"
	"github.com/stockvault/backup/serializer"
)

var admin = restore.Actor{ID: "admin", Admin: true}

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

func newTestPipeline(t *testing.T, store *database.Store) *restore.Pipeline {
	t.Helper()
	storageDir := t.TempDir()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	backups := &backup.Pipeline{
		Store:      store,
		StorageDir: storageDir,
		Audit:      audit.Nop{},
		Notifier:   notify.Nop{},
		Logger:     logger,
	}
	return &restore.Pipeline{
		Store:      store,
		Backups:    backups,
		StorageDir: storageDir,
		Audit:      &audit.DBSink{Cli: store.Cli, Logger: logger},
		Notifier:   notify.Nop{},
		Logger:     logger,
	}
}

func seedItems(t *testing.T, store *database.Store, ids ...string) {
	t.Helper()
	now := time.Now().UTC()
	for i, id := range ids {
		require.NoError(t, store.Cli.Create(&database.Item{
			ID:        id,
			SKU:       "SKU-" + id,
			Name:      "item " + id,
			Quantity:  int64(i + 1),
			CreatedAt: now,
			UpdatedAt: now,
		}).Error)
	}
}

// makeBackup serializes the current dataset through the backup pipeline so
// the record, file and checksum are all consistent.
func makeBackup(t *testing.T, p *restore.Pipeline, params backup.Params) *database.Backup {
	t.Helper()
	if params.Format == "" {
		params.Format = database.FormatJSON
	}
	record, err := p.Backups.Create(context.Background(), params)
	require.NoError(t, err)
	return record
}

// writeBackupFixture persists an arbitrary snapshot as a completed backup,
// bypassing the pipeline. Used to plant records the live schema would reject.
func writeBackupFixture(t *testing.T, p *restore.Pipeline, snap *database.Snapshot) *database.Backup {
	t.Helper()
	ctx := context.Background()

	codec, err := serializer.ForFormat(database.FormatJSON)
	require.NoError(t, err)
	payload, err := codec.Serialize(snap, database.Inclusions{})
	require.NoError(t, err)

	filename := "fixture-" + uuid.NewString() + ".json"
	path := filepath.Join(p.StorageDir, filename)
	require.NoError(t, os.WriteFile(path, payload, 0600))
	sum, err := checksum.DigestFile(path)
	require.NoError(t, err)

	record := &database.Backup{
		ID:          uuid.NewString(),
		Filename:    filename,
		Type:        database.TypeManual,
		Format:      database.FormatJSON,
		Status:      database.StatusCompleted,
		SizeBytes:   int64(len(payload)),
		RecordCount: snap.RecordCount(),
		Checksum:    sum,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.Store.CreateBackup(ctx, record))
	return record
}

func countItems(t *testing.T, store *database.Store) int64 {
	t.Helper()
	var n int64
	require.NoError(t, store.Cli.Model(&database.Item{}).Count(&n).Error)
	return n
}

func TestRun_RequiresAdmin(t *testing.T) {
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)

	_, err := pipeline.Run(context.Background(), "whatever",
		restore.Options{Mode: restore.ModePreview}, restore.Actor{ID: "u1"})
	assert.True(t, fault.IsCode(err, fault.Unauthorized))
}

func TestRun_BackupNotFound(t *testing.T) {
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)

	_, err := pipeline.Run(context.Background(), "missing",
		restore.Options{Mode: restore.ModePreview}, admin)
	assert.True(t, fault.IsCode(err, fault.NotFound))
}

func TestRun_IncompleteBackup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)

	require.NoError(t, store.CreateBackup(ctx, &database.Backup{
		ID: "b1", Filename: "a.json", Format: database.FormatJSON,
		Status: database.StatusFailed, CreatedAt: time.Now().UTC(),
	}))

	_, err := pipeline.Run(ctx, "b1", restore.Options{Mode: restore.ModePreview}, admin)
	assert.True(t, fault.IsCode(err, fault.RestoreFailed))
}

func TestRun_FileMissing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a")

	record := makeBackup(t, pipeline, backup.Params{})
	require.NoError(t, os.Remove(filepath.Join(pipeline.StorageDir, record.Filename)))

	_, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModePreview}, admin)
	assert.True(t, fault.IsCode(err, fault.NotFound))
}

func TestRun_CorruptedFile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a")

	record := makeBackup(t, pipeline, backup.Params{})

	path := filepath.Join(pipeline.StorageDir, record.Filename)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-2] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0600))

	_, err = pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModePreview}, admin)
	require.Error(t, err)
	assert.True(t, fault.IsCode(err, fault.Corrupted))

	// The record is flagged so the UI can surface it.
	stored, err := store.GetBackup(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCorrupted, stored.Status)
}

func TestRun_Preview(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a", "b", "c")

	record := makeBackup(t, pipeline, backup.Params{})

	// Mutate the dataset after the backup; preview must not touch it.
	require.NoError(t, store.Cli.Where("id = ?", "c").Delete(&database.Item{}).Error)

	summary, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModePreview}, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ItemsAdded)
	assert.Zero(t, summary.ItemsUpdated)
	assert.Zero(t, summary.ItemsSkipped)
	assert.Equal(t, int64(2), countItems(t, store), "preview must not write")
}

func TestRun_EncryptedPreview(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a", "b")

	record := makeBackup(t, pipeline, backup.Params{Encrypt: true, Password: "hunter2"})
	require.True(t, record.Encrypted)

	summary, err := pipeline.Run(ctx, record.ID,
		restore.Options{Mode: restore.ModePreview, Password: "hunter2"}, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsAdded)

	_, err = pipeline.Run(ctx, record.ID,
		restore.Options{Mode: restore.ModePreview, Password: "wrong"}, admin)
	assert.True(t, fault.IsCode(err, fault.DecryptFailed))

	_, err = pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModePreview}, admin)
	assert.True(t, fault.IsCode(err, fault.DecryptFailed), "missing password cannot pass the tag check")

	// The stored file is untouched by any of the three attempts.
	assert.True(t, checksum.Verify(
		filepath.Join(pipeline.StorageDir, record.StoredFilename(".encrypted")), record.Checksum))
}

func TestRun_FullRestore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a", "b", "c")

	record := makeBackup(t, pipeline, backup.Params{})

	// Diverge the live dataset: drop one, add another.
	require.NoError(t, store.Cli.Where("id = ?", "c").Delete(&database.Item{}).Error)
	seedItems(t, store, "z")

	summary, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModeFull}, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ItemsAdded)

	assert.Equal(t, int64(3), countItems(t, store))
	var gone int64
	require.NoError(t, store.Cli.Model(&database.Item{}).Where("id = ?", "z").Count(&gone).Error)
	assert.Zero(t, gone, "records absent from the backup are removed")

	// The destructive path always leaves a safety backup behind.
	safety, err := store.ListBackups(ctx, database.WithListType(database.TypePreRestore))
	require.NoError(t, err)
	require.Len(t, safety, 1)
	assert.Equal(t, database.StatusCompleted, safety[0].Status)
}

func TestRun_FullRestoreAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a", "b")

	now := time.Now().UTC()
	record := writeBackupFixture(t, pipeline, &database.Snapshot{
		Items: []database.Item{
			{ID: "x1", SKU: "X1", Name: "fine", Quantity: 1, CreatedAt: now},
			{ID: "x2", SKU: "X2", Name: "violates check", Quantity: -7, CreatedAt: now},
		},
		FetchedAt: now,
	})

	_, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModeFull}, admin)
	require.Error(t, err)
	assert.True(t, fault.IsCode(err, fault.RestoreFailed))

	// Rolled back: the originals survive and nothing from the backup landed.
	assert.Equal(t, int64(2), countItems(t, store))
	var planted int64
	require.NoError(t, store.Cli.Model(&database.Item{}).Where("id = ?", "x1").Count(&planted).Error)
	assert.Zero(t, planted)
}

func TestRun_MergeBestEffort(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)

	now := time.Now().UTC()
	items := make([]database.Item, 0, 5)
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		items = append(items, database.Item{ID: id, SKU: "SKU-" + id, Name: id, Quantity: 1, CreatedAt: now})
	}
	items = append(items, database.Item{ID: "bad", SKU: "SKU-bad", Name: "bad", Quantity: -1, CreatedAt: now})
	record := writeBackupFixture(t, pipeline, &database.Snapshot{Items: items, FetchedAt: now})

	summary, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModeMerge}, admin)
	require.NoError(t, err, "merge reports per-record failures instead of failing")
	assert.Equal(t, 4, summary.ItemsAdded)
	assert.Equal(t, 1, summary.ItemsSkipped)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "bad")

	assert.Equal(t, int64(4), countItems(t, store))
}

func TestRun_MergeUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a", "b")

	record := makeBackup(t, pipeline, backup.Params{})

	// Drift after the backup: one record changed, one deleted.
	require.NoError(t, store.Cli.Model(&database.Item{}).Where("id = ?", "a").Update("quantity", 500).Error)
	require.NoError(t, store.Cli.Where("id = ?", "b").Delete(&database.Item{}).Error)

	summary, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModeMerge}, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsAdded)
	assert.Equal(t, 1, summary.ItemsUpdated)

	var item database.Item
	require.NoError(t, store.Cli.First(&item, "id = ?", "a").Error)
	assert.Equal(t, int64(1), item.Quantity, "merge restores the backed-up value")

	// Merge never takes a safety backup.
	safety, err := store.ListBackups(ctx, database.WithListType(database.TypePreRestore))
	require.NoError(t, err)
	assert.Empty(t, safety)
}

func TestRun_CSVNotRestorable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a")

	record := makeBackup(t, pipeline, backup.Params{Format: database.FormatCSV})

	_, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModePreview}, admin)
	assert.True(t, fault.IsCode(err, fault.InvalidFormat))
}

func TestRun_UnknownMode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	seedItems(t, store, "a")

	record := makeBackup(t, pipeline, backup.Params{})

	_, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: "sideways"}, admin)
	assert.True(t, fault.IsCode(err, fault.RestoreFailed))
}

func TestRun_DryRun(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store)
	pipeline.DryRun = true
	seedItems(t, store, "a", "b")

	record := makeBackup(t, pipeline, backup.Params{})
	require.NoError(t, store.Cli.Where("id = ?", "b").Delete(&database.Item{}).Error)

	summary, err := pipeline.Run(ctx, record.ID, restore.Options{Mode: restore.ModeFull}, admin)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsAdded)
	assert.Equal(t, int64(1), countItems(t, store), "dry run must not write")
}
