package persistence

import (
	"context"
	"fmt"

	"github.com/leasehold/backend/internal/infrastructure/migration"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// SchemaManager creates tenant databases and brings their schema up to date.
// With a migrations root it applies the tenant SQL migrations; without one it
// falls back to GORM AutoMigrate, which is what local sqlite setups use.
type SchemaManager struct {
	control        DBProvider
	tenants        DBProvider
	migrationsRoot string
	logger         *zap.Logger
}

// NewSchemaManager creates a schema manager. tenants is usually TenantDB{}, so the
// tenant database is whatever the operation's tenant.Context points at.
func NewSchemaManager(control, tenants DBProvider, migrationsRoot string, logger *zap.Logger) *SchemaManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaManager{
		control:        control,
		tenants:        tenants,
		migrationsRoot: migrationsRoot,
		logger:         logger.Named("schema"),
	}
}

// CreateDatabase creates the logical database name on the control server if it
// does not exist yet. Only postgres has separate logical databases; on other
// dialects this is a no-op.
func (s *SchemaManager) CreateDatabase(ctx context.Context, name string) error {
	db, err := s.control.DB(ctx)
	if err != nil {
		return err
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}

	var exists bool
	if err := db.Raw("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = ?)", name).Scan(&exists).Error; err != nil {
		return fmt.Errorf("check database %q: %w", name, err)
	}
	if exists {
		s.logger.Info("Tenant database already exists", zap.String("database_id", name))
		return nil
	}

	// CREATE DATABASE takes no bind parameters and cannot run inside a transaction
	if err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(name)).Error; err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	s.logger.Info("Created tenant database", zap.String("database_id", name))
	return nil
}

// MigrateTenant brings the schema of the operation's tenant database up to date
func (s *SchemaManager) MigrateTenant(ctx context.Context) error {
	db, err := s.tenants.DB(ctx)
	if err != nil {
		return err
	}

	if s.migrationsRoot == "" || db.Dialector.Name() != "postgres" {
		if err := db.AutoMigrate(models.TenantModels()...); err != nil {
			return fmt.Errorf("auto-migrate tenant schema: %w", err)
		}
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("borrow connection for migrations: %w", err)
	}
	m, err := migration.NewWithConn(ctx, conn, migration.ScopeTenant.Dir(s.migrationsRoot), s.logger)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			s.logger.Warn("Failed to close migrator", zap.Error(cerr))
		}
	}()
	return m.Up()
}

// MigrateControl creates the control tables with GORM AutoMigrate.
// Production control databases are migrated by cmd/migrate instead.
func (s *SchemaManager) MigrateControl(ctx context.Context) error {
	db, err := s.control.DB(ctx)
	if err != nil {
		return err
	}
	return db.AutoMigrate(models.ControlModels()...)
}
