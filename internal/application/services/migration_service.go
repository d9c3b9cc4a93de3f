package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/ports"
)

// Key segments for migration state and backups.
const (
	versionKeySuffix    = "_migration_version"
	backupSegment       = "_backup_"
	manualBackupSegment = "_manual_backup_"
)

// TransformFunc rewrites the persisted dataset from one schema version to the
// current one. Transforms run after a backup has been taken and must not
// touch the version marker.
type TransformFunc func(ctx context.Context, storage *StorageService) error

// MigrationService keeps the persisted schema consistent with the version the
// running application expects. One instance holds the whole migration state
// for the application; there is no process-wide static state.
type MigrationService struct {
	storage        *StorageService
	store          ports.KeyValueStore
	prefix         string
	currentVersion string
	maxBackups     int
	transforms     map[string]TransformFunc
	now            func() time.Time
	lastStampMs    int64
	logger         *logger.Logger
	metrics        *metrics.Metrics
}

// NewMigrationService creates a migration service bound to the given storage
// service and its namespace.
func NewMigrationService(storage *StorageService, currentVersion string, maxBackups int, appLogger *logger.Logger, m *metrics.Metrics) *MigrationService {
	return &MigrationService{
		storage:        storage,
		store:          storage.Store(),
		prefix:         storage.Prefix(),
		currentVersion: currentVersion,
		maxBackups:     maxBackups,
		transforms:     defaultTransforms(),
		now:            time.Now,
		logger:         appLogger.WithComponent("migration"),
		metrics:        m,
	}
}

// WithClock overrides the time source, for tests.
func (s *MigrationService) WithClock(now func() time.Time) *MigrationService {
	s.now = now
	return s
}

// RegisterTransform installs the transform for migrating from the given
// schema version, replacing any existing one.
func (s *MigrationService) RegisterTransform(fromVersion string, fn TransformFunc) {
	s.transforms[fromVersion] = fn
}

// CurrentVersion returns the schema version the running application expects.
func (s *MigrationService) CurrentVersion() string {
	return s.currentVersion
}

func (s *MigrationService) versionKey() string {
	return s.prefix + versionKeySuffix
}

// StoredVersion returns the version marker currently persisted; empty string
// when no marker is present (fresh install).
func (s *MigrationService) StoredVersion(ctx context.Context) (string, error) {
	version, ok, err := s.store.Get(ctx, s.versionKey())
	if err != nil {
		return "", entities.NewMigrationError("read version marker", err)
	}
	if !ok {
		return "", nil
	}
	return version, nil
}

// CheckAndMigrate drives the per-install state machine:
//
//	no marker          -> write current version, no migration (fresh install)
//	marker == current  -> no-op
//	marker != current  -> backup, transform, then advance the marker
//
// On any failure the marker is left untouched so the next boot retries the
// same migration. Calling it again once current is a no-op.
func (s *MigrationService) CheckAndMigrate(ctx context.Context) error {
	stored, err := s.StoredVersion(ctx)
	if err != nil {
		return err
	}

	if stored == "" {
		if err := s.store.Set(ctx, s.versionKey(), s.currentVersion); err != nil {
			return entities.NewMigrationError("initialize version marker", err)
		}
		s.logger.Infow("Fresh install, version marker initialized", "version", s.currentVersion)
		return nil
	}

	if stored == s.currentVersion {
		s.logger.Debugw("Schema already current", "version", stored)
		return nil
	}

	s.logger.LogMigration(stored, s.currentVersion, "phase", "start")

	backupKey, err := s.writeBackup(ctx, entities.BackupKindMigration, stored)
	if err != nil {
		s.metrics.MigrationRuns.WithLabelValues(stored, "backup_failed").Inc()
		return entities.NewMigrationError(fmt.Sprintf("backup before migration from %s", stored), err)
	}

	transform, ok := s.transforms[stored]
	if !ok {
		// No transform defined for this source version: proceed as if the
		// migration succeeded, advancing the marker without changing data.
		s.logger.Warnw("No transform registered for stored version, skipping data transform",
			"from_version", stored, "to_version", s.currentVersion)
	} else {
		if err := transform(ctx, s.storage); err != nil {
			s.metrics.MigrationRuns.WithLabelValues(stored, "transform_failed").Inc()
			return entities.NewMigrationError(fmt.Sprintf("transform from %s", stored), err)
		}
	}

	if err := s.store.Set(ctx, s.versionKey(), s.currentVersion); err != nil {
		s.metrics.MigrationRuns.WithLabelValues(stored, "marker_failed").Inc()
		return entities.NewMigrationError("advance version marker", err)
	}

	s.metrics.MigrationRuns.WithLabelValues(stored, "ok").Inc()
	s.logger.LogMigration(stored, s.currentVersion, "phase", "done", "backup_key", backupKey)
	return nil
}

// timestampMillis returns the current epoch millis, strictly monotonic across
// calls so backup keys order and tie-break deterministically.
func (s *MigrationService) timestampMillis() int64 {
	ms := s.now().UnixMilli()
	if ms <= s.lastStampMs {
		ms = s.lastStampMs + 1
	}
	s.lastStampMs = ms
	return ms
}

func (s *MigrationService) writeBackup(ctx context.Context, kind entities.BackupKind, label string) (string, error) {
	document, err := s.storage.ExportData(ctx)
	if err != nil {
		return "", err
	}

	ms := s.timestampMillis()
	var key string
	if kind == entities.BackupKindMigration {
		key = fmt.Sprintf("%s%s%s_%d", s.prefix, backupSegment, label, ms)
	} else {
		key = fmt.Sprintf("%s%s%s_%d", s.prefix, manualBackupSegment, label, ms)
	}

	if err := s.store.Set(ctx, key, document); err != nil {
		return "", fmt.Errorf("write backup %s: %w", key, err)
	}

	s.metrics.BackupsCreated.WithLabelValues(string(kind)).Inc()
	s.logger.Infow("Backup created", "key", key, "kind", kind, "bytes", len(document))
	return key, nil
}

// CreateBackup exports the full dataset under a manual backup key and returns
// the key.
func (s *MigrationService) CreateBackup(ctx context.Context, label string) (string, error) {
	key, err := s.writeBackup(ctx, entities.BackupKindManual, label)
	if err != nil {
		return "", entities.NewMigrationError(fmt.Sprintf("create backup %q", label), err)
	}
	return key, nil
}

// ListBackups scans both backup namespaces and returns the records sorted by
// timestamp descending (most recent first). This ordering is load-bearing for
// rotation and for the UI.
func (s *MigrationService) ListBackups(ctx context.Context) ([]entities.BackupRecord, error) {
	records := []entities.BackupRecord{}

	manualKeys, err := s.store.Keys(ctx, s.prefix+manualBackupSegment)
	if err != nil {
		return nil, entities.NewMigrationError("enumerate manual backups", err)
	}
	for _, key := range manualKeys {
		if rec, ok := s.parseBackupKey(key, entities.BackupKindManual); ok {
			records = append(records, rec)
		}
	}

	migrationKeys, err := s.store.Keys(ctx, s.prefix+backupSegment)
	if err != nil {
		return nil, entities.NewMigrationError("enumerate migration backups", err)
	}
	for _, key := range migrationKeys {
		if rec, ok := s.parseBackupKey(key, entities.BackupKindMigration); ok {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp > records[j].Timestamp
		}
		return records[i].Key > records[j].Key
	})
	return records, nil
}

// parseBackupKey extracts the epoch-millis suffix embedded in a backup key.
// Keys without a parsable timestamp are skipped with a warning rather than
// failing the whole listing.
func (s *MigrationService) parseBackupKey(key string, kind entities.BackupKind) (entities.BackupRecord, bool) {
	idx := strings.LastIndex(key, "_")
	if idx < 0 || idx == len(key)-1 {
		s.logger.Warnw("Skipping backup key without timestamp", "key", key)
		return entities.BackupRecord{}, false
	}
	ms, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		s.logger.Warnw("Skipping backup key with invalid timestamp", "key", key, "error", err)
		return entities.BackupRecord{}, false
	}
	return entities.BackupRecord{Key: key, Timestamp: ms, Kind: kind}, true
}

// RestoreFromBackup feeds the backup's full-dataset document to ImportData
// verbatim: a restore is exactly an import of a prior export.
func (s *MigrationService) RestoreFromBackup(ctx context.Context, key string) error {
	document, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return entities.NewMigrationError(fmt.Sprintf("read backup %s", key), err)
	}
	if !ok {
		return entities.NewMigrationError(fmt.Sprintf("backup %s", key), entities.ErrBackupNotFound)
	}

	if err := s.storage.ImportData(ctx, document); err != nil {
		return entities.NewMigrationError(fmt.Sprintf("restore backup %s", key), err)
	}

	s.logger.Infow("Backup restored", "key", key)
	return nil
}

// CleanOldBackups keeps the configured number of most-recent backups (by the
// same descending-timestamp order ListBackups returns) and deletes the rest,
// returning how many were deleted.
func (s *MigrationService) CleanOldBackups(ctx context.Context) (int, error) {
	records, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}

	if len(records) <= s.maxBackups {
		return 0, nil
	}

	deleted := 0
	for _, rec := range records[s.maxBackups:] {
		if err := s.store.Delete(ctx, rec.Key); err != nil {
			return deleted, entities.NewMigrationError(fmt.Sprintf("delete backup %s", rec.Key), err)
		}
		deleted++
	}

	s.metrics.BackupsDeleted.Add(float64(deleted))
	s.logger.Infow("Backup rotation completed", "deleted", deleted, "kept", s.maxBackups)
	return deleted, nil
}

// MigrateStorage moves the whole dataset to another storage backend: export
// from this service's backend, import into the target, and optionally verify
// by diffing the two re-exports byte for byte.
func (s *MigrationService) MigrateStorage(ctx context.Context, target ports.ScheduleStorage, verify bool) error {
	document, err := s.storage.ExportData(ctx)
	if err != nil {
		return entities.NewMigrationError("export from source provider", err)
	}

	if err := target.ImportData(ctx, document); err != nil {
		return entities.NewMigrationError("import into target provider", err)
	}

	if verify {
		sourceDoc, err := s.storage.ExportData(ctx)
		if err != nil {
			return entities.NewMigrationError("re-export source for verification", err)
		}
		targetDoc, err := target.ExportData(ctx)
		if err != nil {
			return entities.NewMigrationError("re-export target for verification", err)
		}
		if sourceDoc != targetDoc {
			return entities.NewMigrationError("provider migration verification", fmt.Errorf("source and target exports differ"))
		}
	}

	s.logger.Infow("Provider migration completed", "verified", verify, "bytes", len(document))
	return nil
}
