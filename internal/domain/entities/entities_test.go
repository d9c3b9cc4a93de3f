package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskCompleteInvariant(t *testing.T) {
	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	task := NewTask("write report", "quarterly numbers", 10, now)

	require.NotEmpty(t, task.ID)
	assert.False(t, task.IsCompleted)
	assert.Nil(t, task.CompletedAt)

	completedAt := now.Add(2 * time.Hour)
	task.Complete(completedAt)
	assert.True(t, task.IsCompleted)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(completedAt))

	task.Reopen()
	assert.False(t, task.IsCompleted)
	assert.Nil(t, task.CompletedAt)
}

func TestNewTaskUniqueIDs(t *testing.T) {
	now := time.Now()
	a := NewTask("a", "", 1, now)
	b := NewTask("b", "", 1, now)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDayScheduleSubsetsAndTotals(t *testing.T) {
	now := time.Now()
	day := NewDaySchedule("2026-08-23")

	done := NewTask("done", "", 30, now)
	done.Complete(now)
	open := NewTask("open", "", 20, now)
	day.TodoItems = append(day.TodoItems, done, open)

	day.RecalculateTotals()
	assert.Equal(t, 50, day.TotalPointValue)
	assert.Equal(t, 30, day.TotalCompletedPointValue)

	completed := day.CompletedTodoItems()
	incomplete := day.IncompleteTodoItems()
	require.Len(t, completed, 1)
	require.Len(t, incomplete, 1)
	assert.Equal(t, done.ID, completed[0].ID)
	assert.Equal(t, open.ID, incomplete[0].ID)
	assert.Len(t, day.TodoItems, len(completed)+len(incomplete))
}

func TestYearScheduleDayCreatesHierarchy(t *testing.T) {
	year := NewYearSchedule(2026)

	day, err := year.Day("2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-23", day.Date)

	month, ok := year.MonthSchedules["2026-08"]
	require.True(t, ok, "month container should be created on demand")
	_, ok = month.DaySchedules["2026-08-23"]
	assert.True(t, ok, "day should be registered in its month")

	// Same date returns the same instance.
	again, err := year.Day("2026-08-23")
	require.NoError(t, err)
	assert.Same(t, day, again)
}

func TestYearScheduleDayRejectsWrongYear(t *testing.T) {
	year := NewYearSchedule(2026)

	_, err := year.Day("2025-12-31")
	assert.Error(t, err)

	_, err = year.Day("not-a-date")
	assert.Error(t, err)
}

func TestYearScheduleTotalsAggregateBottomUp(t *testing.T) {
	now := time.Now()
	year := NewYearSchedule(2026)

	jan, err := year.Day("2026-01-10")
	require.NoError(t, err)
	taskA := NewTask("a", "", 10, now)
	taskA.Complete(now)
	jan.TodoItems = append(jan.TodoItems, taskA)

	aug, err := year.Day("2026-08-23")
	require.NoError(t, err)
	aug.TodoItems = append(aug.TodoItems, NewTask("b", "", 25, now))

	year.RecalculateTotals()
	assert.Equal(t, 35, year.TotalYearPoints)
	assert.Equal(t, 10, year.TotalCompletedYearPoints)
	assert.Equal(t, 10, year.MonthSchedules["2026-01"].TotalMonthPoints)
	assert.Equal(t, 25, year.MonthSchedules["2026-08"].TotalMonthPoints)
	assert.Equal(t, 0, year.MonthSchedules["2026-08"].TotalCompletedMonthPoints)
}

func TestAppErrorWrapsCause(t *testing.T) {
	cause := ErrMalformedRecord
	err := NewStorageError("read planner_year_2026", false, cause)

	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, err.Error(), "STORAGE")
	assert.False(t, err.Recoverable)

	appErr, ok := AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorKindStorage, appErr.Kind)
	assert.False(t, appErr.Timestamp.IsZero())
}
