package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/infrastructure/config"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/infrastructure/migration"
	"github.com/leasehold/backend/internal/infrastructure/persistence"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
		scopeName      string
		tenantSlug     string
		allTenants     bool
	)

	flag.StringVar(&migrationsPath, "path", "", "Root migrations directory holding control/ and tenant/ (default: database.migrations_dir)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&scopeName, "scope", "control", "Migration scope: control or tenant")
	flag.StringVar(&tenantSlug, "tenant", "", "Tenant slug whose database to migrate (tenant scope)")
	flag.BoolVar(&allTenants, "all-tenants", false, "Migrate every active tenant database (tenant scope)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	scope, err := migration.ParseScope(scopeName)
	if err != nil {
		log.Fatal("Invalid scope", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if migrationsPath == "" {
		migrationsPath = cfg.Database.MigrationsDir
	}
	if migrationsPath, err = filepath.Abs(migrationsPath); err != nil {
		log.Fatal("Failed to get absolute path", zap.Error(err))
	}

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("scope", string(scope)),
		zap.String("migrations_path", migrationsPath),
	)

	// create and list work on files only
	switch command {
	case "create":
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate -scope <scope> create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(migrationsPath, scope, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created successfully",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return
	case "list":
		migrations, err := migration.ListMigrations(scope.Dir(migrationsPath))
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		if len(migrations) == 0 {
			log.Info("No migrations found")
			return
		}
		log.Info("Available migrations", zap.Int("count", len(migrations)))
		for _, m := range migrations {
			fmt.Println("  -", m)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	databases, err := targetDatabases(ctx, cfg, scope, tenantSlug, allTenants)
	if err != nil {
		log.Fatal("Failed to determine target databases", zap.Error(err))
	}

	failed := 0
	for _, databaseID := range databases {
		dbLog := log.With(zap.String("database_id", databaseID))
		if err := run(cfg, scope.Dir(migrationsPath), databaseID, command, args, dbLog); err != nil {
			dbLog.Error("Migration command failed", zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		log.Fatal("Migration finished with failures", zap.Int("failed", failed), zap.Int("databases", len(databases)))
	}
}

// targetDatabases returns the database ids a command applies to
func targetDatabases(ctx context.Context, cfg *config.Config, scope migration.Scope, slug string, all bool) ([]string, error) {
	controlID := tenant.ControlDatabaseID(cfg.Database.ControlDBName, cfg.Database.URL)
	if scope == migration.ScopeControl {
		if slug != "" || all {
			return nil, fmt.Errorf("-tenant and -all-tenants apply to the tenant scope only")
		}
		return []string{controlID}, nil
	}
	if (slug == "") == !all {
		return nil, fmt.Errorf("tenant scope needs exactly one of -tenant or -all-tenants")
	}

	controlDSN, err := tenant.BuildDSN(cfg.Database.URL, controlID)
	if err != nil {
		return nil, err
	}
	db, err := persistence.Open(ctx, postgres.Open(controlDSN), persistence.DialOptions{MaxOpenConns: 1})
	if err != nil {
		return nil, fmt.Errorf("connect to control database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	repo := persistence.NewGormTenantRepository(persistence.NewStaticDB(db))

	var tenants []identity.Tenant
	if slug != "" {
		t, err := repo.FindBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		tenants = []identity.Tenant{*t}
	} else if tenants, err = repo.FindActive(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(tenants))
	for i := range tenants {
		ids = append(ids, tenants[i].DatabaseName())
	}
	return ids, nil
}

// run executes command against one database
func run(cfg *config.Config, dir, databaseID, command string, args []string, log *zap.Logger) error {
	dsn, err := tenant.BuildDSN(cfg.Database.URL, databaseID)
	if err != nil {
		return err
	}
	m, err := migration.NewFromURL(dsn, dir, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		if len(args) < 2 {
			return fmt.Errorf("step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		return m.Steps(n)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		return m.Force(version)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Println(`Lease billing database migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  version               Show current migration version
  force <version>       Force set migration version (use with caution)
  create <name> [desc]  Create a new migration file pair in the scope
  list                  List the scope's migrations

Flags:
  -scope string         control or tenant (default: control)
  -tenant string        Tenant slug to migrate (tenant scope)
  -all-tenants          Migrate every active tenant (tenant scope)
  -path string          Root migrations directory (default: database.migrations_dir)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  LEASE_DATABASE_URL, LEASE_DATABASE_CONTROL_DB_NAME, LEASE_DATABASE_MIGRATIONS_DIR

Examples:
  # Migrate the control database
  migrate up

  # Migrate every tenant database
  migrate -scope tenant -all-tenants up

  # Roll back the last migration of one tenant
  migrate -scope tenant -tenant harbor-estates step -1

  # Create a tenant migration
  migrate -scope tenant create add_meter_notes "Add notes column to meters"`)
}
