package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/ports"
)

// Key segments under the namespace prefix.
const (
	yearKeySegment = "_year_"
	dayKeySegment  = "_day_"
	probeKeySuffix = "_availability_probe"
)

// exportSchema constrains the full-dataset export document: one flat JSON
// object whose keys are year/day store keys and whose values are the
// reconstructed native entities. Import rejects anything else before
// touching the store.
const exportSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"patternProperties": {
		"_year_[0-9]{4}$": {
			"type": "object",
			"required": ["year", "monthSchedules"],
			"properties": {
				"year": {"type": "integer", "minimum": 1900, "maximum": 2100},
				"monthSchedules": {"type": "object"}
			}
		},
		"_day_[0-9]{4}-[0-9]{2}-[0-9]{2}$": {
			"type": "object",
			"required": ["date", "todoItems"],
			"properties": {
				"date": {"type": "string"},
				"todoItems": {"type": "array"}
			}
		}
	},
	"additionalProperties": false
}`

var compiledExportSchema = jsonschema.MustCompileString("export.schema.json", exportSchema)

// StorageService persists schedule entities into a flat, string-valued
// key-value store. It owns the key naming scheme and the serialization
// contract; it never runs business validation on the schedules it is given.
type StorageService struct {
	store   ports.KeyValueStore
	codec   ports.Codec
	prefix  string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewStorageService creates a new storage service.
func NewStorageService(store ports.KeyValueStore, codec ports.Codec, prefix string, appLogger *logger.Logger, m *metrics.Metrics) *StorageService {
	return &StorageService{
		store:   store,
		codec:   codec,
		prefix:  prefix,
		logger:  appLogger.WithComponent("storage"),
		metrics: m,
	}
}

// Store exposes the underlying key-value store for collaborators that manage
// their own keys under the same namespace (the migration service).
func (s *StorageService) Store() ports.KeyValueStore {
	return s.store
}

// Prefix returns the namespace prefix this service writes under.
func (s *StorageService) Prefix() string {
	return s.prefix
}

func (s *StorageService) yearKey(year int) string {
	return fmt.Sprintf("%s%s%04d", s.prefix, yearKeySegment, year)
}

func (s *StorageService) dayKey(date string) string {
	return s.prefix + dayKeySegment + date
}

// storageErr wraps err as a STORAGE AppError, marking capacity exhaustion as
// recoverable.
func (s *StorageService) storageErr(message string, err error) error {
	recoverable := errors.Is(err, ports.ErrCapacityExceeded)
	appErr := entities.NewStorageError(message, recoverable, err)
	s.metrics.StorageErrors.WithLabelValues(string(appErr.Kind), strconv.FormatBool(recoverable)).Inc()
	return appErr
}

// put serializes v, runs it through the codec and writes it under key.
func (s *StorageService) put(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return s.storageErr(fmt.Sprintf("serialize %s", key), err)
	}

	encoded, err := s.codec.Encode(string(raw))
	if err != nil {
		return s.storageErr(fmt.Sprintf("encode %s", key), err)
	}

	if err := s.store.Set(ctx, key, encoded); err != nil {
		return s.storageErr(fmt.Sprintf("write %s", key), err)
	}
	return nil
}

// get reads key, reverses the codec and deserializes into v. The bool return
// is false when the key is absent.
func (s *StorageService) get(ctx context.Context, key string, v interface{}) (bool, error) {
	stored, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, s.storageErr(fmt.Sprintf("read %s", key), err)
	}
	if !ok {
		return false, nil
	}

	decoded, err := s.codec.Decode(stored)
	if err != nil {
		return false, s.storageErr(fmt.Sprintf("decode %s: %v", key, entities.ErrMalformedRecord), err)
	}

	if err := json.Unmarshal([]byte(decoded), v); err != nil {
		return false, s.storageErr(fmt.Sprintf("deserialize %s: %v", key, entities.ErrMalformedRecord), err)
	}
	return true, nil
}

// SaveYearSchedule writes the year schedule under its year key. The write is
// a single key-value set and succeeds or fails atomically from the caller's
// perspective.
func (s *StorageService) SaveYearSchedule(ctx context.Context, year *entities.YearSchedule) error {
	err := s.put(ctx, s.yearKey(year.Year), year)
	s.metrics.ObserveOperation("save_year", err)
	s.logger.LogStorageOperation("save_year", s.yearKey(year.Year), err)
	return err
}

// LoadYearSchedule reads the year schedule for the given year. An absent key
// is not an error: it returns (nil, nil) and the caller synthesizes an empty
// schedule. A present but malformed value is a storage error.
func (s *StorageService) LoadYearSchedule(ctx context.Context, year int) (*entities.YearSchedule, error) {
	var schedule entities.YearSchedule
	ok, err := s.get(ctx, s.yearKey(year), &schedule)
	s.metrics.ObserveOperation("load_year", err)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	reviveYearSchedule(&schedule)
	return &schedule, nil
}

// SaveDaySchedule writes a single day schedule, used for incremental
// persistence without rewriting the whole year.
func (s *StorageService) SaveDaySchedule(ctx context.Context, day *entities.DaySchedule) error {
	err := s.put(ctx, s.dayKey(day.Date), day)
	s.metrics.ObserveOperation("save_day", err)
	s.logger.LogStorageOperation("save_day", s.dayKey(day.Date), err)
	return err
}

// LoadDaySchedule reads a single day schedule; absent keys return (nil, nil).
func (s *StorageService) LoadDaySchedule(ctx context.Context, date string) (*entities.DaySchedule, error) {
	var schedule entities.DaySchedule
	ok, err := s.get(ctx, s.dayKey(date), &schedule)
	s.metrics.ObserveOperation("load_day", err)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	reviveDaySchedule(&schedule)
	return &schedule, nil
}

// dataKeys enumerates every schedule data key under the namespace prefix.
// Backup keys and the version marker live under the same prefix but are not
// part of the dataset.
func (s *StorageService) dataKeys(ctx context.Context) ([]string, error) {
	yearKeys, err := s.store.Keys(ctx, s.prefix+yearKeySegment)
	if err != nil {
		return nil, s.storageErr("enumerate year keys", err)
	}
	dayKeys, err := s.store.Keys(ctx, s.prefix+dayKeySegment)
	if err != nil {
		return nil, s.storageErr("enumerate day keys", err)
	}

	keys := append(yearKeys, dayKeys...)
	sort.Strings(keys)
	return keys, nil
}

// ExportData serializes the whole dataset into one JSON document keyed by the
// store keys, with values normalized to their native entity form regardless
// of the internal codec. This is the portable backup/transfer format.
func (s *StorageService) ExportData(ctx context.Context) (string, error) {
	keys, err := s.dataKeys(ctx)
	if err != nil {
		return "", err
	}

	document := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		stored, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return "", s.storageErr(fmt.Sprintf("read %s", key), err)
		}
		if !ok {
			// Key disappeared between enumeration and read; skip it.
			continue
		}
		decoded, err := s.codec.Decode(stored)
		if err != nil {
			return "", s.storageErr(fmt.Sprintf("decode %s: %v", key, entities.ErrMalformedRecord), err)
		}
		if !json.Valid([]byte(decoded)) {
			return "", s.storageErr(fmt.Sprintf("deserialize %s: %v", key, entities.ErrMalformedRecord), errors.New("invalid JSON value"))
		}
		document[key] = json.RawMessage(decoded)
	}

	out, err := json.Marshal(document)
	if err != nil {
		return "", s.storageErr("serialize export document", err)
	}

	s.metrics.ExportBytes.Observe(float64(len(out)))
	s.logger.Infow("Dataset exported", "entries", len(document), "bytes", len(out))
	return string(out), nil
}

// importEntry is one parsed entry of an import document, already rebuilt as
// its native entity and re-keyed under this service's prefix.
type importEntry struct {
	key   string
	value interface{}
}

// parseImportDocument validates and fully parses the document before any
// mutation. Import is all-or-nothing at this step.
func (s *StorageService) parseImportDocument(document string) ([]importEntry, error) {
	var generic interface{}
	if err := json.Unmarshal([]byte(document), &generic); err != nil {
		return nil, entities.NewStorageError("parse import document", false, err)
	}
	if err := compiledExportSchema.Validate(generic); err != nil {
		return nil, entities.NewStorageError("import document failed schema validation", false, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(document), &raw); err != nil {
		return nil, entities.NewStorageError("parse import document", false, err)
	}

	entries := make([]importEntry, 0, len(raw))
	for key, value := range raw {
		switch {
		case strings.Contains(key, yearKeySegment):
			identifier := key[strings.Index(key, yearKeySegment)+len(yearKeySegment):]
			year, err := strconv.Atoi(identifier)
			if err != nil {
				return nil, entities.NewStorageError(fmt.Sprintf("invalid year key %q", key), false, err)
			}
			var schedule entities.YearSchedule
			if err := json.Unmarshal(value, &schedule); err != nil {
				return nil, entities.NewStorageError(fmt.Sprintf("parse year entry %q", key), false, err)
			}
			reviveYearSchedule(&schedule)
			entries = append(entries, importEntry{key: s.yearKey(year), value: &schedule})

		case strings.Contains(key, dayKeySegment):
			var schedule entities.DaySchedule
			if err := json.Unmarshal(value, &schedule); err != nil {
				return nil, entities.NewStorageError(fmt.Sprintf("parse day entry %q", key), false, err)
			}
			reviveDaySchedule(&schedule)
			entries = append(entries, importEntry{key: s.dayKey(schedule.Date), value: &schedule})

		default:
			return nil, entities.NewStorageError(fmt.Sprintf("unrecognized key %q in import document", key), false, nil)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries, nil
}

// ImportData replaces the current dataset with the given export document.
// Parsing is all-or-nothing; once writes begin, a failure partway through is
// not rolled back. Callers should run the integrity validator afterwards.
func (s *StorageService) ImportData(ctx context.Context, document string) error {
	entries, err := s.parseImportDocument(document)
	if err != nil {
		s.metrics.ObserveOperation("import", err)
		return err
	}

	if err := s.ClearAllData(ctx); err != nil {
		s.metrics.ObserveOperation("import", err)
		return err
	}

	for _, entry := range entries {
		if err := s.put(ctx, entry.key, entry.value); err != nil {
			s.metrics.ObserveOperation("import", err)
			s.logger.Errorw("Import aborted mid-write, dataset is partial", "failed_key", entry.key, "error", err)
			return err
		}
	}

	s.metrics.ObserveOperation("import", nil)
	s.logger.Infow("Dataset imported", "entries", len(entries))
	return nil
}

// ClearAllData deletes every schedule data key under the namespace prefix.
// Destructive and uncushioned: no backup is taken here. Backups and the
// version marker are left in place; backups are only ever deleted by
// rotation.
func (s *StorageService) ClearAllData(ctx context.Context) error {
	keys, err := s.dataKeys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			return s.storageErr(fmt.Sprintf("delete %s", key), err)
		}
	}

	s.logger.Infow("Dataset cleared", "deleted", len(keys))
	return nil
}

// IsStorageAvailable probes the store with a throwaway write and delete.
// This is a pre-flight check, not a guarantee: the store's state can change
// between the check and the next use.
func (s *StorageService) IsStorageAvailable(ctx context.Context) bool {
	probe := s.prefix + probeKeySuffix
	if err := s.store.Set(ctx, probe, "ok"); err != nil {
		return false
	}
	if err := s.store.Delete(ctx, probe); err != nil {
		return false
	}
	return true
}

// reviveYearSchedule rebuilds the mapping containers after deserialization.
// A serialized form may omit empty maps; downstream code relies on presence
// checks and iteration, so every level must come back as a usable map.
func reviveYearSchedule(y *entities.YearSchedule) {
	if y.MonthSchedules == nil {
		y.MonthSchedules = map[string]*entities.MonthSchedule{}
	}
	for _, m := range y.MonthSchedules {
		if m.DaySchedules == nil {
			m.DaySchedules = map[string]*entities.DaySchedule{}
		}
		for _, d := range m.DaySchedules {
			reviveDaySchedule(d)
		}
	}
}

func reviveDaySchedule(d *entities.DaySchedule) {
	if d.TodoItems == nil {
		d.TodoItems = []*entities.Task{}
	}
}
