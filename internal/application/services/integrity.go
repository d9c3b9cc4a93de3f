package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// ValidateDataIntegrity runs a recursive structural check over the current
// year's stored schedule document. It never mutates data; it accumulates
// human-readable messages and reports whether the structure is sound. The
// check is advisory: callers log the messages but do not block startup.
//
// The error return covers store read failures only; a structurally invalid
// document is (false, messages, nil).
func (s *MigrationService) ValidateDataIntegrity(ctx context.Context) (bool, []string, error) {
	year := s.now().Year()
	key := fmt.Sprintf("%s%s%04d", s.prefix, yearKeySegment, year)

	stored, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return false, nil, entities.NewValidationError(fmt.Sprintf("read %s", key), err)
	}
	if !ok {
		// Nothing persisted for the current year yet; nothing to validate.
		return true, nil, nil
	}

	decoded, err := s.storage.codec.Decode(stored)
	if err != nil {
		return false, []string{fmt.Sprintf("year %d: stored value cannot be decoded: %v", year, err)}, nil
	}

	var document map[string]interface{}
	if err := json.Unmarshal([]byte(decoded), &document); err != nil {
		return false, []string{fmt.Sprintf("year %d: stored value is not a JSON object: %v", year, err)}, nil
	}

	messages := validateYearDocument(document, year)
	return len(messages) == 0, messages, nil
}

func validateYearDocument(document map[string]interface{}, expectedYear int) []string {
	var messages []string

	storedYear, ok := asInteger(document["year"])
	if !ok {
		messages = append(messages, "year is not an integer")
	} else if storedYear != expectedYear {
		messages = append(messages, fmt.Sprintf("year is %d, expected %d", storedYear, expectedYear))
	}

	months, ok := document["monthSchedules"].(map[string]interface{})
	if !ok {
		messages = append(messages, "monthSchedules is not a mapping container")
		return messages
	}

	for monthKey, monthValue := range months {
		month, ok := monthValue.(map[string]interface{})
		if !ok {
			messages = append(messages, fmt.Sprintf("month %s is not an object", monthKey))
			continue
		}

		days, ok := month["daySchedules"].(map[string]interface{})
		if !ok {
			messages = append(messages, fmt.Sprintf("month %s: daySchedules is not a mapping container", monthKey))
			continue
		}

		for dayKey, dayValue := range days {
			day, ok := dayValue.(map[string]interface{})
			if !ok {
				messages = append(messages, fmt.Sprintf("day %s is not an object", dayKey))
				continue
			}
			messages = append(messages, validateDayDocument(day, dayKey)...)
		}
	}

	return messages
}

func validateDayDocument(day map[string]interface{}, dayKey string) []string {
	var messages []string

	items, ok := day["todoItems"].([]interface{})
	if !ok {
		messages = append(messages, fmt.Sprintf("day %s: todoItems is not a list", dayKey))
		return messages
	}

	for i, itemValue := range items {
		task, ok := itemValue.(map[string]interface{})
		if !ok {
			messages = append(messages, fmt.Sprintf("day %s: task %d is not an object", dayKey, i))
			continue
		}

		if id, _ := task["id"].(string); id == "" {
			messages = append(messages, fmt.Sprintf("day %s: task %d has an empty id", dayKey, i))
		}
		if title, _ := task["title"].(string); title == "" {
			messages = append(messages, fmt.Sprintf("day %s: task %d has an empty title", dayKey, i))
		}
		if _, ok := task["pointValue"].(float64); !ok {
			messages = append(messages, fmt.Sprintf("day %s: task %d has a non-numeric point value", dayKey, i))
		}
	}

	return messages
}

// asInteger accepts a JSON number only when it is a whole value.
func asInteger(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
