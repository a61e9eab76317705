package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/leasehold/backend/internal/infrastructure/config"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DialOptions holds the settings applied to every opened database handle
type DialOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Logger          gormlogger.Interface
}

// DialOptionsFromConfig converts the database configuration to dial options
func DialOptionsFromConfig(cfg *config.DatabaseConfig, log gormlogger.Interface) DialOptions {
	return DialOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.ConnMaxIdleTime) * time.Minute,
		Logger:          log,
	}
}

// Open opens a GORM handle with dialector, applies pool limits and pings the
// database within ctx. The handle is closed again if the ping fails.
func Open(ctx context.Context, dialector gorm.Dialector, opts DialOptions) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		DisableAutomaticPing:   true,
	}
	if opts.Logger != nil {
		gormCfg.Logger = opts.Logger
	} else {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewPostgresDialer returns the tenant.Dialer used in production
func NewPostgresDialer(opts DialOptions) tenant.Dialer {
	return func(ctx context.Context, dsn string) (*gorm.DB, error) {
		return Open(ctx, postgres.Open(dsn), opts)
	}
}
