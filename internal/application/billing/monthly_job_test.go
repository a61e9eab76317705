package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMonthlyInvoiceJob_Run(t *testing.T) {
	f := setupBilling(t, false)
	ctx := context.Background()

	march := f.contract(t, billing.RentTypeMonthly, 1000, day(2024, 1, 1), day(2024, 12, 31))
	daily := f.contract(t, billing.RentTypeDaily, 50, day(2024, 3, 20), day(2024, 6, 1))
	f.contract(t, billing.RentTypeMonthly, 1000, day(2023, 1, 1), day(2024, 3, 1)) // ended before March
	terminated := f.contract(t, billing.RentTypeMonthly, 1000, day(2024, 1, 1), day(2024, 12, 31))
	require.NoError(t, terminated.Terminate())
	require.NoError(t, f.contracts.Save(ctx, terminated))

	pending, err := identity.NewTenant("Pending Co", "")
	require.NoError(t, err)
	f.tenants.On("FindActive", mock.Anything).Return([]identity.Tenant{*f.tenant, *pending}, nil)

	reg := prometheus.NewRegistry()
	metrics := NewJobMetrics(reg)
	var scoped []string
	scope := func(ctx context.Context, tn identity.Tenant) context.Context {
		scoped = append(scoped, tn.Slug)
		return ctx
	}
	job := NewMonthlyInvoiceJob(f.tenants, f.contracts, f.invoiceService, scope, metrics, nil,
		MonthlyInvoiceJobConfig{MaxConcurrentTenants: 2})

	result, err := job.Run(ctx, day(2024, 3, 17))
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 1), result.PeriodStart)
	assert.Equal(t, day(2024, 4, 1), result.PeriodEnd)
	assert.Equal(t, 1, result.Tenants)
	assert.Equal(t, 2, result.Generated)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Equal(t, []string{f.tenant.Slug}, scoped)

	for _, c := range []*billing.Contract{march, daily} {
		exists, err := f.invoices.ExistsForPeriod(ctx, c.ID, day(2024, 3, 1))
		require.NoError(t, err)
		assert.True(t, exists)
	}

	again, err := job.Run(ctx, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Zero(t, again.Generated)
	assert.Equal(t, 2, again.Skipped)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.invoices.WithLabelValues(outcomeGenerated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.invoices.WithLabelValues(outcomeSkipped)))
}

func TestMonthlyInvoiceJob_RunListFailure(t *testing.T) {
	f := setupBilling(t, false)
	f.tenants.On("FindActive", mock.Anything).Return(nil, errors.New("control database unavailable"))
	job := NewMonthlyInvoiceJob(f.tenants, f.contracts, f.invoiceService, nil, nil, nil, MonthlyInvoiceJobConfig{})

	_, err := job.Run(context.Background(), day(2024, 3, 1))
	assert.ErrorContains(t, err, "control database unavailable")
}

func TestMonthlyInvoiceJob_ContractFailuresDoNotStopTheRun(t *testing.T) {
	f := setupBilling(t, false)
	ctx := context.Background()
	f.contract(t, billing.RentTypeMonthly, 1000, day(2024, 1, 1), day(2024, 12, 31))
	f.contract(t, billing.RentTypeMonthly, 1000, day(2024, 1, 1), day(2024, 12, 31))
	f.tenants.On("FindActive", mock.Anything).Return([]identity.Tenant{*f.tenant}, nil)

	// Every create fails with a non-conflict error.
	repo := &failingCreateRepo{InvoiceRepository: f.invoices, err: errors.New("disk full")}
	svc := NewInvoiceService(repo, f.contracts, f.services, f.tenants, nil, nil, InvoiceServiceConfig{})
	job := NewMonthlyInvoiceJob(f.tenants, f.contracts, svc, nil, nil, nil, MonthlyInvoiceJobConfig{})

	result, err := job.Run(ctx, day(2024, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.ErrorContains(t, result.Errors[0], "disk full")
}

type failingCreateRepo struct {
	billing.InvoiceRepository
	err error
}

func (r *failingCreateRepo) Create(context.Context, *billing.Invoice) error {
	return r.err
}
