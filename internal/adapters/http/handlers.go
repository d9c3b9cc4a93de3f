package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
)

// ScheduleHandler serves read access to persisted schedules.
type ScheduleHandler struct {
	storage *services.StorageService
	logger  *logger.Logger
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(storage *services.StorageService, appLogger *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{storage: storage, logger: appLogger}
}

// GetYearSchedule returns the persisted year schedule, synthesizing an empty
// one when nothing is stored yet.
func (h *ScheduleHandler) GetYearSchedule(c echo.Context) error {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < entities.MinYear || year > entities.MaxYear {
		return echo.NewHTTPError(http.StatusBadRequest, "year must be an integer between 1900 and 2100")
	}

	schedule, err := h.storage.LoadYearSchedule(c.Request().Context(), year)
	if err != nil {
		return appErrorToHTTP(err)
	}
	if schedule == nil {
		schedule = entities.NewYearSchedule(year)
	}

	return c.JSON(http.StatusOK, schedule)
}

// GetDaySchedule returns one persisted day schedule.
func (h *ScheduleHandler) GetDaySchedule(c echo.Context) error {
	date := c.Param("date")

	schedule, err := h.storage.LoadDaySchedule(c.Request().Context(), date)
	if err != nil {
		return appErrorToHTTP(err)
	}
	if schedule == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no schedule stored for this date")
	}

	return c.JSON(http.StatusOK, schedule)
}

// AdminHandler serves dataset export/import, backups and integrity reports.
type AdminHandler struct {
	storage  *services.StorageService
	migrator *services.MigrationService
	logger   *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(storage *services.StorageService, migrator *services.MigrationService, appLogger *logger.Logger) *AdminHandler {
	return &AdminHandler{storage: storage, migrator: migrator, logger: appLogger}
}

// ExportData streams the full-dataset export document.
func (h *AdminHandler) ExportData(c echo.Context) error {
	document, err := h.storage.ExportData(c.Request().Context())
	if err != nil {
		return appErrorToHTTP(err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(document))
}

// ImportData replaces the dataset with the posted export document, then runs
// the integrity validator and returns its report. Import is best-effort after
// the parse step; the report is how partial writes get detected.
func (h *AdminHandler) ImportData(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	if err := h.storage.ImportData(c.Request().Context(), string(body)); err != nil {
		return appErrorToHTTP(err)
	}

	valid, messages, err := h.migrator.ValidateDataIntegrity(c.Request().Context())
	if err != nil {
		return appErrorToHTTP(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"imported": true,
		"valid":    valid,
		"messages": messages,
	})
}

// CreateBackupRequest is the payload for manual backup creation.
type CreateBackupRequest struct {
	Label string `json:"label" validate:"required,max=50,alphanum"`
}

// CreateBackup takes a manual full-dataset backup.
func (h *AdminHandler) CreateBackup(c echo.Context) error {
	var req CreateBackupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	key, err := h.migrator.CreateBackup(c.Request().Context(), req.Label)
	if err != nil {
		return appErrorToHTTP(err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"key": key})
}

// ListBackups returns all backups, most recent first.
func (h *AdminHandler) ListBackups(c echo.Context) error {
	records, err := h.migrator.ListBackups(c.Request().Context())
	if err != nil {
		return appErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, records)
}

// RestoreBackupRequest is the payload for a restore.
type RestoreBackupRequest struct {
	Key string `json:"key" validate:"required"`
}

// RestoreBackup replaces the dataset with the named backup's contents.
func (h *AdminHandler) RestoreBackup(c echo.Context) error {
	var req RestoreBackupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.migrator.RestoreFromBackup(c.Request().Context(), req.Key); err != nil {
		if errors.Is(err, entities.ErrBackupNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "backup not found")
		}
		return appErrorToHTTP(err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"restored": true})
}

// CleanBackups rotates old backups and reports how many were deleted.
func (h *AdminHandler) CleanBackups(c echo.Context) error {
	deleted, err := h.migrator.CleanOldBackups(c.Request().Context())
	if err != nil {
		return appErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": deleted})
}

// GetIntegrityReport runs the structural integrity validator.
func (h *AdminHandler) GetIntegrityReport(c echo.Context) error {
	valid, messages, err := h.migrator.ValidateDataIntegrity(c.Request().Context())
	if err != nil {
		return appErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":    valid,
		"messages": messages,
	})
}

// GetMigrationStatus reports the stored and expected schema versions.
func (h *AdminHandler) GetMigrationStatus(c echo.Context) error {
	stored, err := h.migrator.StoredVersion(c.Request().Context())
	if err != nil {
		return appErrorToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"stored_version":  stored,
		"current_version": h.migrator.CurrentVersion(),
		"up_to_date":      stored == h.migrator.CurrentVersion(),
	})
}

// appErrorToHTTP maps structured persistence errors onto HTTP statuses.
// Recoverable storage errors (capacity exhaustion) get 507 so clients can
// prompt the user to free space and retry.
func appErrorToHTTP(err error) error {
	appErr, ok := entities.AsAppError(err)
	if !ok {
		return err
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case entities.ErrorKindStorage:
		if appErr.Recoverable {
			status = http.StatusInsufficientStorage
		}
	case entities.ErrorKindValidation:
		status = http.StatusUnprocessableEntity
	case entities.ErrorKindMigration:
		status = http.StatusConflict
	}

	return echo.NewHTTPError(status, map[string]interface{}{
		"kind":        appErr.Kind,
		"message":     appErr.Message,
		"recoverable": appErr.Recoverable,
	})
}
