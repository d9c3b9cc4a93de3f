package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// defaultTransforms returns the built-in version transform registry, keyed by
// the schema version the data is migrating FROM.
func defaultTransforms() map[string]TransformFunc {
	return map[string]TransformFunc{
		"0.9.0": transformFrom090,
	}
}

// transformFrom090 rewrites every stored year and day entry through the
// current serialization path and recomputes aggregate point totals. 0.9.x
// builds persisted totals directly from form input, so stored aggregates can
// disagree with the tasks they summarize.
func transformFrom090(ctx context.Context, storage *StorageService) error {
	yearKeys, err := storage.Store().Keys(ctx, storage.Prefix()+yearKeySegment)
	if err != nil {
		return fmt.Errorf("enumerate year entries: %w", err)
	}

	for _, key := range yearKeys {
		identifier := key[strings.Index(key, yearKeySegment)+len(yearKeySegment):]
		year, err := strconv.Atoi(identifier)
		if err != nil {
			return fmt.Errorf("invalid year key %q: %w", key, err)
		}

		schedule, err := storage.LoadYearSchedule(ctx, year)
		if err != nil {
			return err
		}
		if schedule == nil {
			continue
		}

		schedule.RecalculateTotals()
		if err := storage.SaveYearSchedule(ctx, schedule); err != nil {
			return err
		}
	}

	dayKeys, err := storage.Store().Keys(ctx, storage.Prefix()+dayKeySegment)
	if err != nil {
		return fmt.Errorf("enumerate day entries: %w", err)
	}

	for _, key := range dayKeys {
		date := key[strings.Index(key, dayKeySegment)+len(dayKeySegment):]

		schedule, err := storage.LoadDaySchedule(ctx, date)
		if err != nil {
			return err
		}
		if schedule == nil {
			continue
		}

		schedule.RecalculateTotals()
		if err := storage.SaveDaySchedule(ctx, schedule); err != nil {
			return err
		}
	}

	return nil
}
