package persistence

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestSchemaManager_CreateDatabase(t *testing.T) {
	existsQuery := regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`)

	t.Run("creates a missing database with a quoted identifier", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		mock.ExpectQuery(existsQuery).
			WithArgs("acme-corp").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE DATABASE "acme-corp"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		sm := NewSchemaManager(NewStaticDB(db), NewStaticDB(db), "", nil)
		require.NoError(t, sm.CreateDatabase(context.Background(), "acme-corp"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips an existing database", func(t *testing.T) {
		db, mock := newMockPostgres(t)
		mock.ExpectQuery(existsQuery).
			WithArgs("acme").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		sm := NewSchemaManager(NewStaticDB(db), NewStaticDB(db), "", nil)
		require.NoError(t, sm.CreateDatabase(context.Background(), "acme"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is a no-op on sqlite", func(t *testing.T) {
		db := setupTestDB(t)
		sm := NewSchemaManager(NewStaticDB(db), NewStaticDB(db), "", nil)
		assert.NoError(t, sm.CreateDatabase(context.Background(), "acme"))
	})
}

func TestSchemaManager_Migrate(t *testing.T) {
	control := setupTestDB(t)
	tenantDB := setupTestDB(t)
	sm := NewSchemaManager(NewStaticDB(control), NewStaticDB(tenantDB), "", nil)
	ctx := context.Background()

	require.NoError(t, sm.MigrateControl(ctx))
	require.NoError(t, sm.MigrateTenant(ctx))

	assert.True(t, control.Migrator().HasTable("tenants"))
	assert.False(t, control.Migrator().HasTable("invoices"))
	for _, table := range []string{"contracts", "services", "invoices", "invoice_lines", "meters", "meter_readings"} {
		assert.True(t, tenantDB.Migrator().HasTable(table), table)
	}
	assert.True(t, tenantDB.Migrator().HasIndex("invoices", "idx_invoices_contract_period"))
	assert.True(t, tenantDB.Migrator().HasIndex("meter_readings", "idx_meter_readings_meter_date"))
}
