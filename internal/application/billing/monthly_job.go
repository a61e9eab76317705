package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ActiveTenantLister lists the tenants a monthly run bills
type ActiveTenantLister interface {
	FindActive(ctx context.Context) ([]identity.Tenant, error)
}

// TenantScope returns a context whose database operations run against t's database
type TenantScope func(ctx context.Context, t identity.Tenant) context.Context

// SystemTenantScope scopes each tenant with a system caller resolved through
// resolver and pool.
func SystemTenantScope(resolver *tenant.Resolver, pool *tenant.Pool) TenantScope {
	return func(ctx context.Context, t identity.Tenant) context.Context {
		caller := tenant.Caller{Role: identity.RoleSystem, TenantID: t.ID.String()}
		return tenant.WithContext(ctx, tenant.NewContext(caller, resolver, pool))
	}
}

// MonthlyInvoiceJobConfig contains configuration for MonthlyInvoiceJob
type MonthlyInvoiceJobConfig struct {
	MaxConcurrentTenants int
}

// MonthlyInvoiceJob generates the invoices of one calendar month for every
// active contract of every active tenant.
type MonthlyInvoiceJob struct {
	tenants   ActiveTenantLister
	contracts billing.ContractRepository
	invoices  *InvoiceService
	scope     TenantScope
	metrics   *JobMetrics
	logger    *zap.Logger

	maxConcurrent int
}

// NewMonthlyInvoiceJob creates a new MonthlyInvoiceJob. contracts must resolve
// its database from the context, as scope sets it per tenant.
func NewMonthlyInvoiceJob(
	tenants ActiveTenantLister,
	contracts billing.ContractRepository,
	invoices *InvoiceService,
	scope TenantScope,
	metrics *JobMetrics,
	logger *zap.Logger,
	config MonthlyInvoiceJobConfig,
) *MonthlyInvoiceJob {
	if config.MaxConcurrentTenants <= 0 {
		config.MaxConcurrentTenants = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if scope == nil {
		scope = func(ctx context.Context, _ identity.Tenant) context.Context { return ctx }
	}
	return &MonthlyInvoiceJob{
		tenants:       tenants,
		contracts:     contracts,
		invoices:      invoices,
		scope:         scope,
		metrics:       metrics,
		logger:        logger.Named("monthly_invoice_job"),
		maxConcurrent: config.MaxConcurrentTenants,
	}
}

// RunResult summarizes a monthly run
type RunResult struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Tenants     int
	Generated   int
	Skipped     int // already generated
	Failed      int
	Errors      []error
}

func (r *RunResult) add(other RunResult) {
	r.Generated += other.Generated
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Run generates the invoices of the month containing periodStart. An invoice
// that already exists counts as skipped. Failures of one contract or tenant do
// not stop the others; Run only returns an error when the tenants cannot be
// listed or ctx is done.
func (j *MonthlyInvoiceJob) Run(ctx context.Context, periodStart time.Time) (*RunResult, error) {
	began := time.Now()
	start, end := billing.MonthPeriod(periodStart)
	result := &RunResult{PeriodStart: start, PeriodEnd: end}

	tenants, err := j.tenants.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	j.logger.Info("Monthly invoice run started",
		zap.String("period_start", start.Format(time.DateOnly)),
		zap.Int("tenants", len(tenants)),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.maxConcurrent)
	for _, t := range tenants {
		if !t.SetupCompleted {
			j.logger.Debug("Tenant setup not completed, skipping", zap.String("tenant_id", t.ID.String()))
			continue
		}
		result.Tenants++
		g.Go(func() error {
			tenantResult := j.runTenant(gctx, t, start, end)
			mu.Lock()
			result.add(tenantResult)
			mu.Unlock()
			return gctx.Err()
		})
	}
	err = g.Wait()
	j.metrics.observe(time.Since(began).Seconds())

	j.logger.Info("Monthly invoice run finished",
		zap.String("period_start", start.Format(time.DateOnly)),
		zap.Int("tenants", result.Tenants),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(began)),
	)
	return result, err
}

func (j *MonthlyInvoiceJob) runTenant(ctx context.Context, t identity.Tenant, start, end time.Time) RunResult {
	var result RunResult
	ctx = logger.WithTenantID(ctx, t.ID.String())
	ctx = j.scope(ctx, t)
	log := logger.With(ctx, j.logger)

	contracts, err := j.contracts.FindActiveIntersecting(ctx, start, end)
	if err != nil {
		log.Error("Failed to list contracts", zap.Error(err))
		j.metrics.tenantFailure()
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("tenant %s: %w", t.Slug, err))
		return result
	}

	for i := range contracts {
		if ctx.Err() != nil {
			break
		}
		_, err := j.invoices.GenerateInvoice(ctx, GenerateInvoiceInput{
			TenantID:    t.ID,
			ContractID:  contracts[i].ID,
			PeriodStart: start,
			PeriodEnd:   end,
		})
		switch {
		case err == nil:
			result.Generated++
			j.metrics.invoice(outcomeGenerated)
		case errors.Is(err, shared.ErrAlreadyExists):
			result.Skipped++
			j.metrics.invoice(outcomeSkipped)
		default:
			log.Error("Failed to generate invoice",
				zap.String("contract_id", contracts[i].ID.String()),
				zap.Error(err),
			)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("tenant %s contract %s: %w", t.Slug, contracts[i].ID, err))
			j.metrics.invoice(outcomeFailed)
		}
	}
	return result
}
