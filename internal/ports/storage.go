package ports

import (
	"context"
	"errors"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// ErrCapacityExceeded is returned by KeyValueStore adapters when the backing
// store refuses a write for lack of space. Callers treat it as recoverable.
var ErrCapacityExceeded = errors.New("store capacity exceeded")

// KeyValueStore defines the interface for the host key-value store backing
// the schedule persistence layer. Values are flat strings; nested structures
// must be serialized by the caller.
type KeyValueStore interface {
	// Get returns the value for key. The second return is false when the key
	// is absent; absence is not an error.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Keys returns every stored key with the given prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Codec is the pluggable transform applied to serialized values before they
// reach the store. Implementations must be pure and invertible:
// Decode(Encode(s)) == s for every s.
type Codec interface {
	Encode(s string) (string, error)
	Decode(s string) (string, error)
	Name() string
}

// ScheduleStorage defines the interface for durable persistence of schedule
// entities. Absent records load as nil without error; malformed records are
// storage errors.
type ScheduleStorage interface {
	SaveYearSchedule(ctx context.Context, year *entities.YearSchedule) error
	LoadYearSchedule(ctx context.Context, year int) (*entities.YearSchedule, error)
	SaveDaySchedule(ctx context.Context, day *entities.DaySchedule) error
	LoadDaySchedule(ctx context.Context, date string) (*entities.DaySchedule, error)
	ExportData(ctx context.Context) (string, error)
	ImportData(ctx context.Context, document string) error
	ClearAllData(ctx context.Context) error
	IsStorageAvailable(ctx context.Context) bool
}

// Migrator defines the interface for schema-version management and backup
// handling above the storage layer.
type Migrator interface {
	CheckAndMigrate(ctx context.Context) error
	CurrentVersion() string
	StoredVersion(ctx context.Context) (string, error)
	CreateBackup(ctx context.Context, label string) (string, error)
	ListBackups(ctx context.Context) ([]entities.BackupRecord, error)
	RestoreFromBackup(ctx context.Context, key string) error
	CleanOldBackups(ctx context.Context) (int, error)
	ValidateDataIntegrity(ctx context.Context) (bool, []string, error)
}
