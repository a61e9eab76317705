package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/lock"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultNumberRetries is the number of attempts to allocate an invoice number
const DefaultNumberRetries = 5

// DefaultIdempotencyTTL is how long a payment idempotency key is remembered
const DefaultIdempotencyTTL = 24 * time.Hour

// TenantLookup loads tenants from the control database registry
type TenantLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error)
}

// ConsumptionDistributor computes building consumption distributions
type ConsumptionDistributor interface {
	DistributeBuildingConsumption(ctx context.Context, buildingID uuid.UUID, readingDate time.Time) ([]billing.Distribution, error)
}

// InvoiceServiceConfig contains configuration for InvoiceService
type InvoiceServiceConfig struct {
	NumberRetries int
	Now           func() time.Time

	// Idempotency deduplicates payments that carry an idempotency key.
	// Nil disables deduplication.
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
}

// InvoiceService generates invoices and drives their lifecycle
type InvoiceService struct {
	invoices    billing.InvoiceRepository
	contracts   billing.ContractRepository
	services    billing.ServiceRepository
	tenants     TenantLookup
	distributor ConsumptionDistributor
	locks       *lock.KeyedMutex
	idempotency shared.IdempotencyStore
	logger      *zap.Logger

	numberRetries  int
	idempotencyTTL time.Duration
	now            func() time.Time
}

// NewInvoiceService creates a new InvoiceService. distributor may be nil, in
// which case AttachMeterCharges is unavailable.
func NewInvoiceService(
	invoices billing.InvoiceRepository,
	contracts billing.ContractRepository,
	services billing.ServiceRepository,
	tenants TenantLookup,
	distributor ConsumptionDistributor,
	logger *zap.Logger,
	config InvoiceServiceConfig,
) *InvoiceService {
	if config.NumberRetries <= 0 {
		config.NumberRetries = DefaultNumberRetries
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		invoices:       invoices,
		contracts:      contracts,
		services:       services,
		tenants:        tenants,
		distributor:    distributor,
		locks:          lock.NewKeyedMutex(),
		idempotency:    config.Idempotency,
		logger:         logger.Named("invoice_service"),
		numberRetries:  config.NumberRetries,
		idempotencyTTL: config.IdempotencyTTL,
		now:            config.Now,
	}
}

// GenerateInvoice creates the invoice of a contract for [PeriodStart, PeriodEnd).
// It fails with ALREADY_EXISTS when the contract already has an invoice for the
// period start. Number allocation is serialized per tenant and retried when
// another writer takes the same number first.
func (s *InvoiceService) GenerateInvoice(ctx context.Context, input GenerateInvoiceInput) (*InvoiceDTO, error) {
	log := logger.With(ctx, s.logger).With(
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("contract_id", input.ContractID.String()),
	)

	start, end := billing.DateOnly(input.PeriodStart), billing.DateOnly(input.PeriodEnd)
	if !end.After(start) {
		return nil, shared.InvalidInput("Period end must be after period start")
	}
	if input.TenantID == uuid.Nil {
		return nil, shared.InvalidInput("Tenant ID is required")
	}

	unlock := s.locks.Lock(input.TenantID.String())
	defer unlock()

	exists, err := s.invoices.ExistsForPeriod(ctx, input.ContractID, start)
	if err != nil {
		return nil, fmt.Errorf("check existing invoice: %w", err)
	}
	if exists {
		return nil, duplicatePeriodError(start)
	}

	contract, err := s.contracts.FindByID(ctx, input.ContractID)
	if err != nil {
		return nil, err
	}
	if !contract.Active {
		return nil, shared.InvalidState("Contract is not active")
	}

	tenant, err := s.tenants.FindByID(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	rent, err := billing.ComputeRent(contract, start, end)
	if err != nil {
		return nil, err
	}

	issued := s.now()
	invoice, err := billing.NewInvoice(contract.ID, start, end, issued, input.Notes)
	if err != nil {
		return nil, err
	}
	rentLine := billing.NewInvoiceLine(billing.LineTypeRent, rentDescription(contract, start, end), rent.Quantity, rent.UnitPrice)
	rentLine.Amount = rent.Amount
	if err := invoice.AddLine(rentLine); err != nil {
		return nil, err
	}
	invoice.TotalAmount = rent.Amount

	// Service lines go after the rent line and the total is recomputed from all lines.
	if tenant.Settings.MergeServicesWithRent {
		fixed, err := s.services.FindActiveFixed(ctx)
		if err != nil {
			return nil, fmt.Errorf("load fixed services: %w", err)
		}
		for i := range fixed {
			if err := invoice.AddLine(fixed[i].ServiceLine()); err != nil {
				return nil, err
			}
		}
		invoice.RecomputeTotal()
	}

	if err := s.createWithNumber(ctx, invoice); err != nil {
		return nil, err
	}

	log.Info("Invoice generated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total", invoice.TotalAmount.StringFixed(2)),
		zap.Int("lines", len(invoice.Lines)),
	)
	return toInvoiceDTO(invoice, issued), nil
}

// createWithNumber allocates the next number under the issue month prefix and
// inserts the invoice, retrying when the number was taken concurrently.
func (s *InvoiceService) createWithNumber(ctx context.Context, invoice *billing.Invoice) error {
	prefix := billing.InvoicePrefix(invoice.IssueDate)

	for attempt := 1; attempt <= s.numberRetries; attempt++ {
		numbers, err := s.invoices.NumbersWithPrefix(ctx, prefix)
		if err != nil {
			return fmt.Errorf("load invoice numbers: %w", err)
		}
		invoice.AssignNumber(billing.FormatInvoiceNumber(prefix, billing.NextSequence(prefix, numbers)))

		err = s.invoices.Create(ctx, invoice)
		if err == nil {
			return nil
		}
		if !errors.Is(err, shared.ErrAlreadyExists) {
			return err
		}

		// The unique key hit may be the (contract, period start) pair rather than the number.
		exists, existsErr := s.invoices.ExistsForPeriod(ctx, invoice.ContractID, invoice.PeriodStart)
		if existsErr != nil {
			return fmt.Errorf("check existing invoice: %w", existsErr)
		}
		if exists {
			return duplicatePeriodError(invoice.PeriodStart)
		}

		logger.With(ctx, s.logger).Warn("Invoice number taken, retrying",
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Int("attempt", attempt),
		)
	}
	return shared.NewDomainError(shared.CodeConcurrencyConflict,
		fmt.Sprintf("Could not allocate an invoice number after %d attempts", s.numberRetries))
}

// GetInvoice retrieves an invoice by ID
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceDTO, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toInvoiceDTO(invoice, s.now()), nil
}

// ListInvoices retrieves a paginated list of invoices
func (s *InvoiceService) ListInvoices(ctx context.Context, filter InvoiceListFilter) (*InvoiceListResult, error) {
	if filter.Status != "" && !billing.InvoiceStatus(filter.Status).IsValid() {
		return nil, shared.InvalidInput(fmt.Sprintf("Unknown invoice status %q", filter.Status))
	}
	domainFilter := filter.ToDomainFilter()

	invoices, total, err := s.invoices.List(ctx, domainFilter)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	pageSize := domainFilter.PageSize
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	now := s.now()
	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = *toInvoiceDTO(&invoices[i], now)
	}
	return &InvoiceListResult{
		Invoices:   dtos,
		Total:      total,
		Page:       domainFilter.Page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// UpdateInvoice edits notes and due date. Paid and cancelled invoices are rejected with INVALID_STATE.
func (s *InvoiceService) UpdateInvoice(ctx context.Context, input UpdateInvoiceInput) (*InvoiceDTO, error) {
	invoice, err := s.invoices.FindByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if err := invoice.Update(input.Notes, input.DueDate); err != nil {
		return nil, err
	}
	if err := s.invoices.Save(ctx, invoice); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Invoice updated", zap.String("invoice_id", invoice.ID.String()))
	return toInvoiceDTO(invoice, s.now()), nil
}

// DeleteInvoice removes a draft or posted invoice
func (s *InvoiceService) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := invoice.EnsureDeletable(); err != nil {
		return err
	}
	if err := s.invoices.Delete(ctx, id); err != nil {
		return err
	}

	logger.With(ctx, s.logger).Info("Invoice deleted",
		zap.String("invoice_id", id.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return nil
}

// ApplyPayment records a payment. A partial payment posts the invoice, full payment marks it paid.
// A repeated IdempotencyKey returns the invoice as it stands without paying again.
func (s *InvoiceService) ApplyPayment(ctx context.Context, input ApplyPaymentInput) (dto *InvoiceDTO, err error) {
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key := "payment:" + input.InvoiceID.String() + ":" + input.IdempotencyKey
		first, merr := s.idempotency.MarkProcessed(ctx, key, s.idempotencyTTL)
		if merr != nil {
			return nil, merr
		}
		if !first {
			logger.With(ctx, s.logger).Info("Replayed payment ignored",
				zap.String("invoice_id", input.InvoiceID.String()),
				zap.String("idempotency_key", input.IdempotencyKey),
			)
			return s.GetInvoice(ctx, input.InvoiceID)
		}
		defer func() {
			if err == nil {
				return
			}
			if ferr := s.idempotency.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				logger.With(ctx, s.logger).Warn("Failed to release idempotency key", zap.Error(ferr))
			}
		}()
	}

	invoice, err := s.invoices.FindByID(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}
	if err := invoice.ApplyPayment(input.Amount, paidAt); err != nil {
		return nil, err
	}
	if err := s.invoices.Save(ctx, invoice); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Payment applied",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("amount", input.Amount.StringFixed(2)),
		zap.String("status", string(invoice.Status)),
	)
	return toInvoiceDTO(invoice, s.now()), nil
}

// CancelInvoice cancels a non-terminal invoice
func (s *InvoiceService) CancelInvoice(ctx context.Context, input CancelInvoiceInput) (*InvoiceDTO, error) {
	invoice, err := s.invoices.FindByID(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := invoice.Cancel(input.Reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.invoices.Save(ctx, invoice); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Invoice cancelled",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("reason", invoice.CancelReason),
	)
	return toInvoiceDTO(invoice, s.now()), nil
}

// AttachMeterCharges appends meter lines for the contract's unit from the
// building distribution on ReadingDate. Each line bills the unit's allotted
// consumption at the service's unit price.
func (s *InvoiceService) AttachMeterCharges(ctx context.Context, input AttachMeterChargesInput) (*InvoiceDTO, error) {
	if s.distributor == nil {
		return nil, shared.InvalidState("Meter charges are not available")
	}

	invoice, err := s.invoices.FindByID(ctx, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != billing.InvoiceStatusDraft {
		return nil, shared.InvalidState(fmt.Sprintf("Cannot add meter charges to invoice in %s status", invoice.Status))
	}
	contract, err := s.contracts.FindByID(ctx, invoice.ContractID)
	if err != nil {
		return nil, err
	}

	date := billing.DateOnly(input.ReadingDate)
	distributions, err := s.distributor.DistributeBuildingConsumption(ctx, input.BuildingID, date)
	if err != nil {
		return nil, err
	}

	added := 0
	for i := range distributions {
		alloc, ok := distributions[i].AllocationFor(contract.UnitID)
		if !ok {
			continue
		}
		service, err := s.services.FindByID(ctx, distributions[i].ServiceID)
		if err != nil {
			return nil, err
		}
		description := fmt.Sprintf("%s consumption %s", service.Name, date.Format(time.DateOnly))
		if hasLine(invoice, billing.LineTypeMeter, description) {
			return nil, shared.AlreadyExists(fmt.Sprintf("Invoice already bills %s", description))
		}

		// quantity is stored with four decimals; the amount must match the stored value
		quantity := alloc.Allotted.Round(billing.QuantityScale)
		line := billing.NewInvoiceLine(billing.LineTypeMeter, description, quantity, service.DefaultPrice)
		serviceID := service.ID
		line.ServiceID = &serviceID
		if err := invoice.AddLine(line); err != nil {
			return nil, err
		}
		added++
	}
	if added == 0 {
		return nil, shared.NotFound("No building consumption to bill for the contract's unit on " + date.Format(time.DateOnly))
	}

	invoice.RecomputeTotal()
	invoice.IncrementVersion()
	if err := s.invoices.Save(ctx, invoice); err != nil {
		return nil, err
	}

	logger.With(ctx, s.logger).Info("Meter charges attached",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int("lines", added),
		zap.String("total", invoice.TotalAmount.StringFixed(2)),
	)
	return toInvoiceDTO(invoice, s.now()), nil
}

func hasLine(invoice *billing.Invoice, lineType billing.LineType, description string) bool {
	for _, l := range invoice.Lines {
		if l.Type == lineType && l.Description == description {
			return true
		}
	}
	return false
}

func rentDescription(c *billing.Contract, start, end time.Time) string {
	last := end.AddDate(0, 0, -1)
	if c.RentType == billing.RentTypeDaily {
		return fmt.Sprintf("Rent %s to %s (daily)", start.Format(time.DateOnly), last.Format(time.DateOnly))
	}
	return fmt.Sprintf("Rent %s to %s", start.Format(time.DateOnly), last.Format(time.DateOnly))
}

func duplicatePeriodError(periodStart time.Time) error {
	return shared.AlreadyExists("An invoice already exists for this contract and period starting " + periodStart.Format(time.DateOnly))
}
