package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Date layouts used across the persistence layer.
const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)

// Year bounds accepted by the schedule model.
const (
	MinYear = 1900
	MaxYear = 2100
)

// Task represents a single todo item owned by exactly one DaySchedule.
// Tasks are created by the upstream todo-management logic; this layer only
// persists and reconstructs them.
type Task struct {
	ID          string     `json:"id" validate:"required"`
	Title       string     `json:"title" validate:"required,max=100"`
	Description string     `json:"description" validate:"max=500"`
	PointValue  int        `json:"pointValue" validate:"min=1,max=100"`
	IsCompleted bool       `json:"isCompleted"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewTask creates a task with a fresh opaque ID.
func NewTask(title, description string, pointValue int, now time.Time) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		PointValue:  pointValue,
		CreatedAt:   now,
	}
}

// Complete marks the task completed at the given time.
// Invariant: CompletedAt is present iff IsCompleted is true.
func (t *Task) Complete(at time.Time) {
	t.IsCompleted = true
	t.CompletedAt = &at
}

// Reopen clears completion state.
func (t *Task) Reopen() {
	t.IsCompleted = false
	t.CompletedAt = nil
}

// DaySchedule groups the tasks of a single calendar day.
type DaySchedule struct {
	Date                     string  `json:"date" validate:"required"`
	TotalPointValue          int     `json:"totalPointValue" validate:"min=0"`
	TotalCompletedPointValue int     `json:"totalCompletedPointValue" validate:"min=0"`
	TodoItems                []*Task `json:"todoItems"`
}

// NewDaySchedule creates an empty day schedule for the given date ("YYYY-MM-DD").
func NewDaySchedule(date string) *DaySchedule {
	return &DaySchedule{
		Date:      date,
		TodoItems: []*Task{},
	}
}

// CompletedTodoItems returns the completed subset of TodoItems.
func (d *DaySchedule) CompletedTodoItems() []*Task {
	var out []*Task
	for _, t := range d.TodoItems {
		if t.IsCompleted {
			out = append(out, t)
		}
	}
	return out
}

// IncompleteTodoItems returns the not-yet-completed subset of TodoItems.
func (d *DaySchedule) IncompleteTodoItems() []*Task {
	var out []*Task
	for _, t := range d.TodoItems {
		if !t.IsCompleted {
			out = append(out, t)
		}
	}
	return out
}

// RecalculateTotals re-derives the point aggregates from TodoItems.
func (d *DaySchedule) RecalculateTotals() {
	total, completed := 0, 0
	for _, t := range d.TodoItems {
		total += t.PointValue
		if t.IsCompleted {
			completed += t.PointValue
		}
	}
	d.TotalPointValue = total
	d.TotalCompletedPointValue = completed
}

// MonthSchedule groups the day schedules of a single calendar month.
// DaySchedules is keyed by the day's "YYYY-MM-DD" date string. The map
// container type is load-bearing: downstream code relies on presence checks
// and iteration, so deserialization must rebuild it as a map.
type MonthSchedule struct {
	Date                      string                  `json:"date" validate:"required"`
	DaySchedules              map[string]*DaySchedule `json:"daySchedules"`
	TotalMonthPoints          int                     `json:"totalMonthPoints" validate:"min=0"`
	TotalCompletedMonthPoints int                     `json:"totalCompletedMonthPoints" validate:"min=0"`
}

// NewMonthSchedule creates an empty month schedule for the given month ("YYYY-MM").
func NewMonthSchedule(date string) *MonthSchedule {
	return &MonthSchedule{
		Date:         date,
		DaySchedules: map[string]*DaySchedule{},
	}
}

// RecalculateTotals re-derives the month aggregates from the contained days.
func (m *MonthSchedule) RecalculateTotals() {
	total, completed := 0, 0
	for _, d := range m.DaySchedules {
		d.RecalculateTotals()
		total += d.TotalPointValue
		completed += d.TotalCompletedPointValue
	}
	m.TotalMonthPoints = total
	m.TotalCompletedMonthPoints = completed
}

// YearSchedule is the root aggregate; one instance is loaded and persisted
// per calendar year. MonthSchedules is keyed by "YYYY-MM".
type YearSchedule struct {
	Year                     int                       `json:"year" validate:"min=1900,max=2100"`
	MonthSchedules           map[string]*MonthSchedule `json:"monthSchedules"`
	TotalYearPoints          int                       `json:"totalYearPoints" validate:"min=0"`
	TotalCompletedYearPoints int                       `json:"totalCompletedYearPoints" validate:"min=0"`
}

// NewYearSchedule creates an empty year schedule.
func NewYearSchedule(year int) *YearSchedule {
	return &YearSchedule{
		Year:           year,
		MonthSchedules: map[string]*MonthSchedule{},
	}
}

// Month returns the month schedule for the given "YYYY-MM" key, creating an
// empty one when absent.
func (y *YearSchedule) Month(date string) *MonthSchedule {
	if y.MonthSchedules == nil {
		y.MonthSchedules = map[string]*MonthSchedule{}
	}
	m, ok := y.MonthSchedules[date]
	if !ok {
		m = NewMonthSchedule(date)
		y.MonthSchedules[date] = m
	}
	return m
}

// Day returns the day schedule for the given "YYYY-MM-DD" date, creating the
// containing month and day when absent. The date must belong to this year.
func (y *YearSchedule) Day(date string) (*DaySchedule, error) {
	parsed, err := time.Parse(DayLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid day date %q: %w", date, err)
	}
	if parsed.Year() != y.Year {
		return nil, fmt.Errorf("date %q does not belong to year %d", date, y.Year)
	}

	month := y.Month(parsed.Format(MonthLayout))
	d, ok := month.DaySchedules[date]
	if !ok {
		d = NewDaySchedule(date)
		month.DaySchedules[date] = d
	}
	return d, nil
}

// RecalculateTotals re-derives the year aggregates from the contained months.
func (y *YearSchedule) RecalculateTotals() {
	total, completed := 0, 0
	for _, m := range y.MonthSchedules {
		m.RecalculateTotals()
		total += m.TotalMonthPoints
		completed += m.TotalCompletedMonthPoints
	}
	y.TotalYearPoints = total
	y.TotalCompletedYearPoints = completed
}

// BackupKind distinguishes user-requested backups from the automatic ones
// taken before a schema migration.
type BackupKind string

const (
	BackupKindManual    BackupKind = "manual"
	BackupKindMigration BackupKind = "migration"
)

// BackupRecord describes one stored full-dataset backup. Backups are never
// auto-deleted except by rotation.
type BackupRecord struct {
	Key       string     `json:"key"`
	Timestamp int64      `json:"timestamp"` // epoch millis, embedded in the key
	Kind      BackupKind `json:"kind"`
}
