package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpHandlers "github.com/taskmaster/planner/internal/adapters/http"
	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
)

// Server represents the admin HTTP server
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	logger   *logger.Logger
	storage  *services.StorageService
	migrator *services.MigrationService
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a new server instance
func New(cfg *config.Config, storage *services.StorageService, migrator *services.MigrationService, m *metrics.Metrics, appLogger *logger.Logger) (*Server, error) {
	e := echo.New()

	e.Validator = &CustomValidator{validator: validator.New()}
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	server := &Server{
		echo:     e,
		config:   cfg,
		logger:   appLogger,
		storage:  storage,
		migrator: migrator,
	}

	server.setupMiddleware()

	scheduleHandler := httpHandlers.NewScheduleHandler(storage, appLogger)
	adminHandler := httpHandlers.NewAdminHandler(storage, migrator, appLogger)
	server.setupRoutes(scheduleHandler, adminHandler)

	if cfg.Metrics.Enabled {
		metricsHandler := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
		e.GET("/metrics", echo.WrapHandler(metricsHandler))
	}

	return server, nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(scheduleHandler *httpHandlers.ScheduleHandler, adminHandler *httpHandlers.AdminHandler) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	scheduleGroup := v1.Group("/schedules")
	scheduleGroup.GET("/:year", scheduleHandler.GetYearSchedule)
	scheduleGroup.GET("/days/:date", scheduleHandler.GetDaySchedule)

	v1.GET("/export", adminHandler.ExportData)
	v1.POST("/import", adminHandler.ImportData)

	backupGroup := v1.Group("/backups")
	backupGroup.GET("", adminHandler.ListBackups)
	backupGroup.POST("", adminHandler.CreateBackup)
	backupGroup.POST("/restore", adminHandler.RestoreBackup)
	backupGroup.POST("/clean", adminHandler.CleanBackups)

	v1.GET("/integrity", adminHandler.GetIntegrityReport)
	v1.GET("/migration/status", adminHandler.GetMigrationStatus)
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessCheck(c echo.Context) error {
	if !s.storage.IsStorageAvailable(c.Request().Context()) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "storage_not_available",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.logger.Info("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler handles HTTP errors
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			msg  interface{}
		)

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = he.Message
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		} else if e, ok := err.(validator.ValidationErrors); ok {
			code = http.StatusBadRequest
			msg = map[string]string{"message": "validation failed", "details": e.Error()}
		} else {
			msg = map[string]string{"message": http.StatusText(code)}
		}

		if code == http.StatusInternalServerError {
			logger.Error("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		if !c.Response().Committed {
			if c.Request().Method == echo.HEAD {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, msg)
			}
			if err != nil {
				logger.Error("Error sending response", "error", err)
			}
		}
	}
}
