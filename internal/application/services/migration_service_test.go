package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/planner/internal/adapters/codec"
	"github.com/taskmaster/planner/internal/adapters/kvstore"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
)

const testVersion = "1.0.0"

func newTestMigrator(store *kvstore.MemoryStore) (*MigrationService, *StorageService) {
	storage := newTestStorage(store)
	migrator := NewMigrationService(storage, testVersion, 5, logger.NewNop(), metrics.New())
	return migrator, storage
}

// fixedClock pins the migrator's time source.
func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestFreshInstallInitializesMarkerWithoutBackup(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, _ := newTestMigrator(store)

	require.NoError(t, migrator.CheckAndMigrate(ctx))

	stored, err := migrator.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, testVersion, stored)

	backups, err := migrator.ListBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups, "fresh install must not create a backup")
}

func TestStaleVersionMigratesWithBackup(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, storage := newTestMigrator(store)

	require.NoError(t, storage.SaveYearSchedule(ctx, sampleYearSchedule(t)))
	require.NoError(t, store.Set(ctx, "planner_migration_version", "0.9.0"))

	require.NoError(t, migrator.CheckAndMigrate(ctx))

	stored, err := migrator.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, testVersion, stored)

	backups, err := migrator.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1, "exactly one backup per migration")
	assert.Equal(t, entities.BackupKindMigration, backups[0].Kind)
	assert.Contains(t, backups[0].Key, "_backup_0.9.0_")
}

func TestCheckAndMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, storage := newTestMigrator(store)

	require.NoError(t, storage.SaveYearSchedule(ctx, sampleYearSchedule(t)))
	require.NoError(t, store.Set(ctx, "planner_migration_version", "0.9.0"))

	require.NoError(t, migrator.CheckAndMigrate(ctx))
	require.NoError(t, migrator.CheckAndMigrate(ctx))

	backups, err := migrator.ListBackups(ctx)
	require.NoError(t, err)
	assert.Len(t, backups, 1, "second call must be a no-op")
}

func TestUnknownVersionAdvancesMarkerWithoutTransform(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, storage := newTestMigrator(store)

	require.NoError(t, storage.SaveYearSchedule(ctx, sampleYearSchedule(t)))
	before, err := storage.ExportData(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "planner_migration_version", "0.5.0-beta"))

	// No transform is registered for 0.5.0-beta: the marker advances and the
	// data is left as-is.
	require.NoError(t, migrator.CheckAndMigrate(ctx))

	stored, err := migrator.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, testVersion, stored)

	after, err := storage.ExportData(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFailingTransformLeavesMarkerUntouched(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, _ := newTestMigrator(store)

	require.NoError(t, store.Set(ctx, "planner_migration_version", "0.8.0"))
	migrator.RegisterTransform("0.8.0", func(ctx context.Context, storage *StorageService) error {
		return fmt.Errorf("transform exploded")
	})

	err := migrator.CheckAndMigrate(ctx)
	require.Error(t, err)

	appErr, ok := entities.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, entities.ErrorKindMigration, appErr.Kind)

	stored, err := migrator.StoredVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.8.0", stored, "failed migration must not bump the marker")
}

func TestTransformFrom090RecomputesTotals(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, storage := newTestMigrator(store)

	year := sampleYearSchedule(t)
	year.TotalYearPoints = 9999 // drifted aggregate, as 0.9.x could persist
	require.NoError(t, storage.SaveYearSchedule(ctx, year))
	require.NoError(t, store.Set(ctx, "planner_migration_version", "0.9.0"))

	require.NoError(t, migrator.CheckAndMigrate(ctx))

	got, err := storage.LoadYearSchedule(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 65, got.TotalYearPoints)
	assert.Equal(t, 40, got.TotalCompletedYearPoints)
}

func TestListBackupsOrdersByTimestampDescending(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, _ := newTestMigrator(store)

	for _, ms := range []int64{100, 300, 200} {
		migrator.WithClock(fixedClock(time.UnixMilli(ms)))
		_, err := migrator.CreateBackup(ctx, "ordered")
		require.NoError(t, err)
	}

	backups, err := migrator.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 3)

	timestamps := []int64{backups[0].Timestamp, backups[1].Timestamp, backups[2].Timestamp}
	assert.Equal(t, []int64{300, 200, 100}, timestamps)
	for _, rec := range backups {
		assert.Equal(t, entities.BackupKindManual, rec.Kind)
	}
}

func TestBackupTimestampsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, _ := newTestMigrator(store)

	// A frozen clock must still yield distinct, ordered keys.
	migrator.WithClock(fixedClock(time.UnixMilli(500)))
	first, err := migrator.CreateBackup(ctx, "same")
	require.NoError(t, err)
	second, err := migrator.CreateBackup(ctx, "same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	backups, err := migrator.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Greater(t, backups[0].Timestamp, backups[1].Timestamp)
}

func TestCleanOldBackupsKeepsFiveMostRecent(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, _ := newTestMigrator(store)

	for ms := int64(100); ms <= 800; ms += 100 {
		migrator.WithClock(fixedClock(time.UnixMilli(ms)))
		_, err := migrator.CreateBackup(ctx, "rotation")
		require.NoError(t, err)
	}

	deleted, err := migrator.CleanOldBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	backups, err := migrator.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 5)

	// Exactly the five most recent survive.
	var kept []int64
	for _, rec := range backups {
		kept = append(kept, rec.Timestamp)
	}
	assert.Equal(t, []int64{800, 700, 600, 500, 400}, kept)

	// A second rotation has nothing left to delete.
	deleted, err = migrator.CleanOldBackups(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRestoreFromBackupRewindsMutations(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore(0)
	migrator, storage := newTestMigrator(store)

	require.NoError(t, storage.SaveYearSchedule(ctx, sampleYearSchedule(t)))
	captured, err := storage.ExportData(ctx)
	require.NoError(t, err)

	key, err := migrator.CreateBackup(ctx, "manual")
	require.NoError(t, err)

	// Mutate the store after the backup.
	mutated := sampleYearSchedule(t)
	day, err := mutated.Day("2026-12-24")
	require.NoError(t, err)
	day.TodoItems = append(day.TodoItems, entities.NewTask("late addition", "", 8, time.Now().UTC()))
	mutated.RecalculateTotals()
	require.NoError(t, storage.SaveYearSchedule(ctx, mutated))

	require.NoError(t, migrator.RestoreFromBackup(ctx, key))

	after, err := storage.ExportData(ctx)
	require.NoError(t, err)
	assert.Equal(t, captured, after, "restore must return the store to the captured state")
}

func TestRestoreFromMissingBackup(t *testing.T) {
	ctx := context.Background()
	migrator, _ := newTestMigrator(kvstore.NewMemoryStore(0))

	err := migrator.RestoreFromBackup(ctx, "planner_manual_backup_nope_1")
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrBackupNotFound)
}

func TestValidateDataIntegrity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	encode := func(t *testing.T, raw string) string {
		t.Helper()
		encoded, err := codec.NewBase64().Encode(raw)
		require.NoError(t, err)
		return encoded
	}

	t.Run("absent year is valid", func(t *testing.T) {
		migrator, _ := newTestMigrator(kvstore.NewMemoryStore(0))
		migrator.WithClock(fixedClock(now))

		valid, messages, err := migrator.ValidateDataIntegrity(ctx)
		require.NoError(t, err)
		assert.True(t, valid)
		assert.Empty(t, messages)
	})

	t.Run("well-formed schedule is valid", func(t *testing.T) {
		store := kvstore.NewMemoryStore(0)
		migrator, storage := newTestMigrator(store)
		migrator.WithClock(fixedClock(now))

		require.NoError(t, storage.SaveYearSchedule(ctx, sampleYearSchedule(t)))

		valid, messages, err := migrator.ValidateDataIntegrity(ctx)
		require.NoError(t, err)
		assert.True(t, valid, "messages: %v", messages)
	})

	t.Run("monthSchedules stored as a non-mapping", func(t *testing.T) {
		store := kvstore.NewMemoryStore(0)
		migrator, _ := newTestMigrator(store)
		migrator.WithClock(fixedClock(now))

		raw := `{"year":2026,"monthSchedules":[["2026-01",{}]]}`
		require.NoError(t, store.Set(ctx, "planner_year_2026", encode(t, raw)))

		valid, messages, err := migrator.ValidateDataIntegrity(ctx)
		require.NoError(t, err)
		assert.False(t, valid)
		require.NotEmpty(t, messages)
		assert.True(t, strings.Contains(strings.Join(messages, "\n"), "monthSchedules"),
			"message must name the offending field: %v", messages)
	})

	t.Run("task problems are itemized", func(t *testing.T) {
		store := kvstore.NewMemoryStore(0)
		migrator, _ := newTestMigrator(store)
		migrator.WithClock(fixedClock(now))

		raw := `{
			"year": 2026,
			"monthSchedules": {
				"2026-08": {
					"date": "2026-08",
					"daySchedules": {
						"2026-08-23": {
							"date": "2026-08-23",
							"todoItems": [
								{"id": "", "title": "no id", "pointValue": 5},
								{"id": "t2", "title": "", "pointValue": 5},
								{"id": "t3", "title": "bad points", "pointValue": "five"}
							]
						}
					}
				}
			}
		}`
		require.NoError(t, store.Set(ctx, "planner_year_2026", encode(t, raw)))

		valid, messages, err := migrator.ValidateDataIntegrity(ctx)
		require.NoError(t, err)
		assert.False(t, valid)
		assert.Len(t, messages, 3)
	})

	t.Run("wrong year value", func(t *testing.T) {
		store := kvstore.NewMemoryStore(0)
		migrator, _ := newTestMigrator(store)
		migrator.WithClock(fixedClock(now))

		raw := `{"year":1999,"monthSchedules":{}}`
		require.NoError(t, store.Set(ctx, "planner_year_2026", encode(t, raw)))

		valid, messages, err := migrator.ValidateDataIntegrity(ctx)
		require.NoError(t, err)
		assert.False(t, valid)
		assert.Contains(t, strings.Join(messages, "\n"), "1999")
	})
}

func TestMigrateStorageMovesDatasetAcrossProviders(t *testing.T) {
	ctx := context.Background()
	sourceStore := kvstore.NewMemoryStore(0)
	migrator, sourceStorage := newTestMigrator(sourceStore)

	require.NoError(t, sourceStorage.SaveYearSchedule(ctx, sampleYearSchedule(t)))

	targetStorage := newTestStorage(kvstore.NewMemoryStore(0))
	require.NoError(t, migrator.MigrateStorage(ctx, targetStorage, true))

	got, err := targetStorage.LoadYearSchedule(ctx, 2026)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 65, got.TotalYearPoints)
}
