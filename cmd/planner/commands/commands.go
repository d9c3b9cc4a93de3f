package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskmaster/planner/internal/adapters/codec"
	"github.com/taskmaster/planner/internal/adapters/kvstore"
	"github.com/taskmaster/planner/internal/application/services"
	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/infrastructure/metrics"
	"github.com/taskmaster/planner/internal/infrastructure/server"
	"github.com/taskmaster/planner/internal/ports"
)

// app bundles the wired application services used by every command.
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
	store    ports.KeyValueStore
	storage  *services.StorageService
	migrator *services.MigrationService
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
	_ = a.logger.Close()
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	store, err := kvstore.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	cdc, err := codec.FromName(cfg.Storage.Codec)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	storage := services.NewStorageService(store, cdc, cfg.Storage.Prefix, appLogger, m)
	migrator := services.NewMigrationService(storage, cfg.App.SchemaVersion, cfg.Backup.MaxKept, appLogger, m)

	return &app{
		cfg:      cfg,
		logger:   appLogger,
		metrics:  m,
		store:    store,
		storage:  storage,
		migrator: migrator,
	}, nil
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Planner admin server",
		Long:  "Run schema migration, validate stored data, rotate backups, then serve the admin HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

func runServer() {
	a, err := newApp()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	ctx := context.Background()

	// Boot sequence: migrate, validate, rotate.
	if err := a.migrator.CheckAndMigrate(ctx); err != nil {
		a.logger.Fatal("Schema migration failed", "error", err)
	}

	valid, messages, err := a.migrator.ValidateDataIntegrity(ctx)
	if err != nil {
		a.logger.Error("Integrity validation failed to run", "error", err)
	} else if !valid {
		// Advisory: report but do not block startup.
		a.logger.Warn("Stored data failed integrity validation", "messages", messages)
	}

	if _, err := a.migrator.CleanOldBackups(ctx); err != nil {
		a.logger.Warn("Backup rotation failed", "error", err)
	}

	// Load the current year, synthesizing an empty schedule on first run.
	currentYear := time.Now().Year()
	schedule, err := a.storage.LoadYearSchedule(ctx, currentYear)
	if err != nil {
		a.logger.Error("Failed to load current year, starting empty", "year", currentYear, "error", err)
		schedule = entities.NewYearSchedule(currentYear)
	} else if schedule == nil {
		schedule = entities.NewYearSchedule(currentYear)
	}
	a.logger.Info("Schedule loaded",
		"year", schedule.Year,
		"months", len(schedule.MonthSchedules),
		"total_points", schedule.TotalYearPoints,
	)

	srv, err := server.New(a.cfg, a.storage, a.migrator, a.metrics, a.logger)
	if err != nil {
		a.logger.Fatal("Failed to initialize server", "error", err)
	}

	a.logger.Info("Starting Planner admin server",
		"port", a.cfg.Server.Port,
		"provider", a.cfg.Storage.Provider,
		"environment", a.cfg.App.Environment,
	)

	if err := srv.Start(fmt.Sprintf(":%d", a.cfg.Server.Port)); err != nil {
		a.logger.Fatal("Server failed to start", "error", err)
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Schema migration commands",
		Long:  "Check and run schema migrations, inspect the version marker, validate stored data",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Run the schema migration if the stored version is stale",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(a *app) error {
				if err := a.migrator.CheckAndMigrate(context.Background()); err != nil {
					return err
				}
				fmt.Printf("Schema is at version %s\n", a.migrator.CurrentVersion())
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the stored and expected schema versions",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(a *app) error {
				stored, err := a.migrator.StoredVersion(context.Background())
				if err != nil {
					return err
				}
				if stored == "" {
					stored = "(none)"
				}
				fmt.Printf("Stored version:  %s\n", stored)
				fmt.Printf("Current version: %s\n", a.migrator.CurrentVersion())
				return nil
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Run the structural integrity validator over the current year",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(a *app) error {
				valid, messages, err := a.migrator.ValidateDataIntegrity(context.Background())
				if err != nil {
					return err
				}
				if valid {
					fmt.Println("Stored data is structurally valid")
					return nil
				}
				fmt.Println("Stored data failed integrity validation:")
				for _, msg := range messages {
					fmt.Printf("  - %s\n", msg)
				}
				os.Exit(1)
				return nil
			})
		},
	})

	providerCmd := &cobra.Command{
		Use:   "provider",
		Short: "Move the whole dataset to another storage provider",
		Run: func(cmd *cobra.Command, args []string) {
			target, _ := cmd.Flags().GetString("target")
			verify, _ := cmd.Flags().GetBool("verify")
			if target == "" {
				log.Fatal("--target is required")
			}
			runProviderMigration(target, verify)
		},
	}
	providerCmd.Flags().String("target", "", "Target provider (memory, redis, postgres)")
	providerCmd.Flags().Bool("verify", true, "Diff source and target exports after the move")
	migrateCmd.AddCommand(providerCmd)

	return migrateCmd
}

func runProviderMigration(target string, verify bool) {
	a, err := newApp()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	targetStore, err := kvstore.NewProvider(a.cfg, target)
	if err != nil {
		a.logger.Fatal("Failed to initialize target store", "error", err)
	}
	defer targetStore.Close()

	cdc, err := codec.FromName(a.cfg.Storage.Codec)
	if err != nil {
		a.logger.Fatal("Failed to initialize codec", "error", err)
	}
	targetStorage := services.NewStorageService(targetStore, cdc, a.cfg.Storage.Prefix, a.logger, a.metrics)

	if err := a.migrator.MigrateStorage(context.Background(), targetStorage, verify); err != nil {
		a.logger.Fatal("Provider migration failed", "error", err)
	}

	fmt.Printf("Dataset moved to provider %s\n", target)
}

// NewBackupCommand creates the backup management command
func NewBackupCommand() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup management commands",
		Long:  "Create, list, restore and rotate full-dataset backups",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a manual backup",
		Run: func(cmd *cobra.Command, args []string) {
			label, _ := cmd.Flags().GetString("label")
			withApp(func(a *app) error {
				key, err := a.migrator.CreateBackup(context.Background(), label)
				if err != nil {
					return err
				}
				fmt.Printf("Backup created: %s\n", key)
				return nil
			})
		},
	}
	createCmd.Flags().String("label", "manual", "Label embedded in the backup key")
	backupCmd.AddCommand(createCmd)

	backupCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups, most recent first",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(a *app) error {
				records, err := a.migrator.ListBackups(context.Background())
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No backups found")
					return nil
				}
				for _, rec := range records {
					fmt.Printf("%-10s %13d  %s\n", rec.Kind, rec.Timestamp, rec.Key)
				}
				return nil
			})
		},
	})

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore the dataset from a backup key",
		Run: func(cmd *cobra.Command, args []string) {
			key, _ := cmd.Flags().GetString("key")
			if key == "" {
				log.Fatal("--key is required")
			}
			withApp(func(a *app) error {
				if err := a.migrator.RestoreFromBackup(context.Background(), key); err != nil {
					return err
				}
				fmt.Printf("Restored from %s\n", key)
				return nil
			})
		},
	}
	restoreCmd.Flags().String("key", "", "Backup key to restore (required)")
	backupCmd.AddCommand(restoreCmd)

	backupCmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Delete all but the most recent backups",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(a *app) error {
				deleted, err := a.migrator.CleanOldBackups(context.Background())
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d backups\n", deleted)
				return nil
			})
		},
	})

	return backupCmd
}

// NewExportCommand creates the export command
func NewExportCommand() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the full-dataset export document to a file or stdout",
		Run: func(cmd *cobra.Command, args []string) {
			out, _ := cmd.Flags().GetString("out")
			withApp(func(a *app) error {
				document, err := a.storage.ExportData(context.Background())
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Println(document)
					return nil
				}
				if err := os.WriteFile(out, []byte(document), 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				fmt.Printf("Exported %d bytes to %s\n", len(document), out)
				return nil
			})
		},
	}
	exportCmd.Flags().String("out", "", "Output file (stdout when omitted)")
	return exportCmd
}

// NewImportCommand creates the import command
func NewImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the dataset with an export document",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			document, err := os.ReadFile(args[0])
			if err != nil {
				log.Fatalf("Failed to read import file: %v", err)
			}
			withApp(func(a *app) error {
				if err := a.storage.ImportData(context.Background(), string(document)); err != nil {
					return err
				}
				valid, messages, err := a.migrator.ValidateDataIntegrity(context.Background())
				if err != nil {
					return err
				}
				if !valid {
					fmt.Println("Import completed but integrity validation reported problems:")
					for _, msg := range messages {
						fmt.Printf("  - %s\n", msg)
					}
					return nil
				}
				fmt.Println("Import completed")
				return nil
			})
		},
	}
	return importCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the expected schema version",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(a *app) error {
				fmt.Printf("Planner schema version %s\n", a.migrator.CurrentVersion())
				return nil
			})
		},
	}
}

// withApp wires the application, runs fn and tears down.
func withApp(fn func(a *app) error) {
	a, err := newApp()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.close()

	if err := fn(a); err != nil {
		a.logger.Fatal("Command failed", "error", err)
	}
}
