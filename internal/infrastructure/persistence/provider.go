package persistence

import (
	"context"

	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// DBProvider supplies the connection an operation should use
type DBProvider interface {
	DB(ctx context.Context) (*gorm.DB, error)
}

// TenantDB resolves the connection from the tenant.Context attached to the operation
type TenantDB struct{}

// DB implements DBProvider
func (TenantDB) DB(ctx context.Context) (*gorm.DB, error) {
	return tenant.DB(ctx)
}

// PoolDB always uses one database of a pool, e.g. the control database
type PoolDB struct {
	pool       *tenant.Pool
	databaseID string
}

// NewPoolDB creates a provider for databaseID
func NewPoolDB(pool *tenant.Pool, databaseID string) *PoolDB {
	return &PoolDB{pool: pool, databaseID: databaseID}
}

// DB implements DBProvider
func (p *PoolDB) DB(ctx context.Context) (*gorm.DB, error) {
	db, err := p.pool.Acquire(ctx, p.databaseID)
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// StaticDB wraps a fixed connection or transaction
type StaticDB struct {
	db *gorm.DB
}

// NewStaticDB creates a provider for db
func NewStaticDB(db *gorm.DB) *StaticDB {
	return &StaticDB{db: db}
}

// DB implements DBProvider
func (s *StaticDB) DB(ctx context.Context) (*gorm.DB, error) {
	return s.db.WithContext(ctx), nil
}

// databaseKey names the database of the operation for in-process locking
func databaseKey(ctx context.Context) string {
	if tc, ok := tenant.FromContext(ctx); ok {
		return tc.DatabaseID(ctx)
	}
	return "static"
}
