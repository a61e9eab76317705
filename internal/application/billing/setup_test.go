package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/infrastructure/persistence"
	"github.com/leasehold/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockTenantLookup is a mock implementation of TenantLookup and ActiveTenantLister
type MockTenantLookup struct {
	mock.Mock
}

func (m *MockTenantLookup) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Tenant), args.Error(1)
}

func (m *MockTenantLookup) FindActive(ctx context.Context) ([]identity.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.Tenant), args.Error(1)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fixedNow is the clock of every service under test
var fixedNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

func setupTenantDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := persistence.Open(context.Background(), sqlite.Open(":memory:"), persistence.DialOptions{MaxOpenConns: 1})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.TenantModels()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type billingFixture struct {
	db        *gorm.DB
	invoices  *persistence.GormInvoiceRepository
	contracts *persistence.GormContractRepository
	services  *persistence.GormServiceRepository
	meters    *persistence.GormMeterRepository
	tenants   *MockTenantLookup
	tenant    *identity.Tenant

	invoiceService  *InvoiceService
	meterService    *MeterService
	contractService *ContractService
}

func setupBilling(t *testing.T, merge bool) *billingFixture {
	t.Helper()
	db := setupTenantDB(t)
	provider := persistence.NewStaticDB(db)

	tn, err := identity.NewTenant("Harbor Estates", "")
	require.NoError(t, err)
	tn.Settings.MergeServicesWithRent = merge
	tn.SetupCompleted = true

	f := &billingFixture{
		db:        db,
		invoices:  persistence.NewGormInvoiceRepository(provider),
		contracts: persistence.NewGormContractRepository(provider),
		services:  persistence.NewGormServiceRepository(provider),
		meters:    persistence.NewGormMeterRepository(provider, nil),
		tenants:   new(MockTenantLookup),
		tenant:    tn,
	}
	f.tenants.On("FindByID", mock.Anything, tn.ID).Return(tn, nil).Maybe()

	f.meterService = NewMeterService(f.meters, f.services, nil)
	f.contractService = NewContractService(f.contracts, f.services, nil)
	f.invoiceService = NewInvoiceService(f.invoices, f.contracts, f.services, f.tenants, f.meterService, nil,
		InvoiceServiceConfig{Now: func() time.Time { return fixedNow }})
	return f
}

func (f *billingFixture) contract(t *testing.T, rentType billing.RentType, rent int64, start, end time.Time) *billing.Contract {
	t.Helper()
	c, err := billing.NewContract(uuid.New(), uuid.New(), rentType, decimal.NewFromInt(rent), start, end)
	require.NoError(t, err)
	require.NoError(t, f.contracts.Save(context.Background(), c))
	return c
}

func (f *billingFixture) service(t *testing.T, name string, serviceType billing.ServiceType, price string) *billing.Service {
	t.Helper()
	s, err := billing.NewService(name, serviceType, decimal.RequireFromString(price))
	require.NoError(t, err)
	require.NoError(t, f.services.Save(context.Background(), s))
	return s
}

func (f *billingFixture) generate(ctx context.Context, contractID uuid.UUID, start, end time.Time) (*InvoiceDTO, error) {
	return f.invoiceService.GenerateInvoice(ctx, GenerateInvoiceInput{
		TenantID:    f.tenant.ID,
		ContractID:  contractID,
		PeriodStart: start,
		PeriodEnd:   end,
	})
}
