package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// GenerateInvoiceInput contains input for generating an invoice
type GenerateInvoiceInput struct {
	TenantID    uuid.UUID
	ContractID  uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Notes       string
}

// UpdateInvoiceInput contains the editable fields of an invoice
type UpdateInvoiceInput struct {
	ID      uuid.UUID
	Notes   *string
	DueDate *time.Time
}

// ApplyPaymentInput contains input for recording a payment against an invoice
type ApplyPaymentInput struct {
	InvoiceID      uuid.UUID
	Amount         decimal.Decimal
	PaidAt         time.Time
	IdempotencyKey string
}

// CancelInvoiceInput contains input for cancelling an invoice
type CancelInvoiceInput struct {
	InvoiceID uuid.UUID
	Reason    string
}

// AttachMeterChargesInput selects the building distribution whose unit share
// is billed on an invoice
type AttachMeterChargesInput struct {
	InvoiceID   uuid.UUID
	BuildingID  uuid.UUID
	ReadingDate time.Time
}

// InvoiceListFilter represents filter for querying invoices
type InvoiceListFilter struct {
	Page       int
	PageSize   int
	SortBy     string
	SortDir    string
	ContractID *uuid.UUID
	Status     string
	From       *time.Time
	To         *time.Time
}

// ToDomainFilter converts the list filter to a repository filter
func (f InvoiceListFilter) ToDomainFilter() billing.InvoiceFilter {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return billing.InvoiceFilter{
		Filter: shared.Filter{
			Page:     page,
			PageSize: pageSize,
			OrderBy:  f.SortBy,
			OrderDir: f.SortDir,
		},
		ContractID: f.ContractID,
		Status:     billing.InvoiceStatus(f.Status),
		From:       f.From,
		To:         f.To,
	}
}

// InvoiceDTO represents invoice data transfer object
type InvoiceDTO struct {
	ID              uuid.UUID        `json:"id"`
	InvoiceNumber   string           `json:"invoice_number"`
	ContractID      uuid.UUID        `json:"contract_id"`
	PeriodStart     time.Time        `json:"period_start"`
	PeriodEnd       time.Time        `json:"period_end"`
	IssueDate       time.Time        `json:"issue_date"`
	DueDate         time.Time        `json:"due_date"`
	Status          string           `json:"status"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	PaidAmount      decimal.Decimal  `json:"paid_amount"`
	RemainingAmount decimal.Decimal  `json:"remaining_amount"`
	Overdue         bool             `json:"overdue"`
	Notes           string           `json:"notes,omitempty"`
	PaidAt          *time.Time       `json:"paid_at,omitempty"`
	CancelledAt     *time.Time       `json:"cancelled_at,omitempty"`
	CancelReason    string           `json:"cancel_reason,omitempty"`
	Lines           []InvoiceLineDTO `json:"lines"`
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// InvoiceLineDTO represents a single invoice line
type InvoiceLineDTO struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	ServiceID   *uuid.UUID      `json:"service_id,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// InvoiceListResult represents paginated invoice list result
type InvoiceListResult struct {
	Invoices   []InvoiceDTO `json:"invoices"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
	TotalPages int          `json:"total_pages"`
}

// toInvoiceDTO converts an invoice to its DTO. Remaining amount and the
// overdue flag are derived at now.
func toInvoiceDTO(inv *billing.Invoice, now time.Time) *InvoiceDTO {
	lines := make([]InvoiceLineDTO, len(inv.Lines))
	for i, l := range inv.Lines {
		lines[i] = InvoiceLineDTO{
			ID:          l.ID,
			Type:        string(l.Type),
			ServiceID:   l.ServiceID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Amount:      l.Amount,
		}
	}
	return &InvoiceDTO{
		ID:              inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ContractID:      inv.ContractID,
		PeriodStart:     inv.PeriodStart,
		PeriodEnd:       inv.PeriodEnd,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		Status:          string(inv.Status),
		TotalAmount:     inv.TotalAmount,
		PaidAmount:      inv.PaidAmount,
		RemainingAmount: inv.RemainingAmount(),
		Overdue:         inv.IsOverdue(now),
		Notes:           inv.Notes,
		PaidAt:          inv.PaidAt,
		CancelledAt:     inv.CancelledAt,
		CancelReason:    inv.CancelReason,
		Lines:           lines,
		Version:         inv.Version,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

// CreateContractInput contains input for creating a lease contract
type CreateContractInput struct {
	UnitID     uuid.UUID
	CustomerID uuid.UUID
	RentType   string
	BaseRent   decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
}

// ContractDTO represents contract data transfer object
type ContractDTO struct {
	ID         uuid.UUID       `json:"id"`
	UnitID     uuid.UUID       `json:"unit_id"`
	CustomerID uuid.UUID       `json:"customer_id"`
	RentType   string          `json:"rent_type"`
	BaseRent   decimal.Decimal `json:"base_rent"`
	StartDate  time.Time       `json:"start_date"`
	EndDate    time.Time       `json:"end_date"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toContractDTO(c *billing.Contract) *ContractDTO {
	return &ContractDTO{
		ID:         c.ID,
		UnitID:     c.UnitID,
		CustomerID: c.CustomerID,
		RentType:   string(c.RentType),
		BaseRent:   c.BaseRent,
		StartDate:  c.StartDate,
		EndDate:    c.EndDate,
		Active:     c.Active,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// CreateServiceInput contains input for adding a billable service
type CreateServiceInput struct {
	Name         string
	Type         string
	DefaultPrice decimal.Decimal
}

// ServiceDTO represents a billable service
type ServiceDTO struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	Active       bool            `json:"active"`
}

func toServiceDTO(s *billing.Service) *ServiceDTO {
	return &ServiceDTO{
		ID:           s.ID,
		Name:         s.Name,
		Type:         string(s.Type),
		DefaultPrice: s.DefaultPrice,
		Active:       s.Active,
	}
}

// RegisterMeterInput contains input for registering a meter
type RegisterMeterInput struct {
	Code       string
	Scope      string
	BuildingID uuid.UUID
	UnitID     *uuid.UUID
	ServiceID  uuid.UUID
}

// MeterDTO represents a meter
type MeterDTO struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	Scope      string     `json:"scope"`
	BuildingID uuid.UUID  `json:"building_id"`
	UnitID     *uuid.UUID `json:"unit_id,omitempty"`
	ServiceID  uuid.UUID  `json:"service_id"`
	Active     bool       `json:"active"`
}

func toMeterDTO(m *billing.Meter) *MeterDTO {
	return &MeterDTO{
		ID:         m.ID,
		Code:       m.Code,
		Scope:      string(m.Scope),
		BuildingID: m.BuildingID,
		UnitID:     m.UnitID,
		ServiceID:  m.ServiceID,
		Active:     m.Active,
	}
}

// RecordReadingInput contains input for recording a meter reading
type RecordReadingInput struct {
	MeterID     uuid.UUID
	ReadingDate time.Time
	Current     decimal.Decimal
}

// UpdateReadingInput contains the editable fields of a reading
type UpdateReadingInput struct {
	ID          uuid.UUID
	ReadingDate *time.Time
	Current     *decimal.Decimal
}

// ReadingDTO represents a meter reading with its derived values
type ReadingDTO struct {
	ID          uuid.UUID       `json:"id"`
	MeterID     uuid.UUID       `json:"meter_id"`
	ReadingDate time.Time       `json:"reading_date"`
	Current     decimal.Decimal `json:"current"`
	Previous    decimal.Decimal `json:"previous"`
	Consumption decimal.Decimal `json:"consumption"`
}

func toReadingDTO(r *billing.MeterReading) *ReadingDTO {
	return &ReadingDTO{
		ID:          r.ID,
		MeterID:     r.MeterID,
		ReadingDate: r.ReadingDate,
		Current:     r.Current,
		Previous:    r.Previous,
		Consumption: r.Consumption,
	}
}

// RecalculationResult reports how many readings a recalculation rewrote
type RecalculationResult struct {
	MeterID  uuid.UUID `json:"meter_id"`
	Readings int       `json:"readings"`
	Changed  int       `json:"changed"`
}
