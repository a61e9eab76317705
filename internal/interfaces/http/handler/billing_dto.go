package handler

import "github.com/shopspring/decimal"

// GenerateInvoiceRequest is the body of POST /invoices
type GenerateInvoiceRequest struct {
	ContractID  string `json:"contract_id" binding:"required,uuid"`
	PeriodStart string `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" binding:"required,datetime=2006-01-02"`
	Notes       string `json:"notes" binding:"max=500"`
}

// ListInvoicesQuery holds the query parameters of GET /invoices
type ListInvoicesQuery struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	SortBy     string `form:"sort_by" binding:"omitempty,oneof=created_at issue_date due_date period_start invoice_number total_amount status"`
	SortDir    string `form:"sort_dir" binding:"omitempty,oneof=asc desc"`
	ContractID string `form:"contract_id" binding:"omitempty,uuid"`
	Status     string `form:"status" binding:"omitempty,oneof=draft posted paid cancelled"`
	From       string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To         string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// UpdateInvoiceRequest is the body of PATCH /invoices/:id
type UpdateInvoiceRequest struct {
	Notes   *string `json:"notes" binding:"omitempty,max=500"`
	DueDate string  `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
}

// ApplyPaymentRequest is the body of POST /invoices/:id/payments
type ApplyPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"decimal_positive"`
	PaidAt string          `json:"paid_at" binding:"omitempty,datetime=2006-01-02"`
}

// CancelInvoiceRequest is the body of POST /invoices/:id/cancel
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// AttachMeterChargesRequest is the body of POST /invoices/:id/meter-charges
type AttachMeterChargesRequest struct {
	BuildingID  string `json:"building_id" binding:"required,uuid"`
	ReadingDate string `json:"reading_date" binding:"required,datetime=2006-01-02"`
}

// CreateContractRequest is the body of POST /contracts
type CreateContractRequest struct {
	UnitID     string          `json:"unit_id" binding:"required,uuid"`
	CustomerID string          `json:"customer_id" binding:"required,uuid"`
	RentType   string          `json:"rent_type" binding:"required,oneof=monthly daily"`
	BaseRent   decimal.Decimal `json:"base_rent" binding:"decimal_nonnegative"`
	StartDate  string          `json:"start_date" binding:"required,datetime=2006-01-02"`
	EndDate    string          `json:"end_date" binding:"required,datetime=2006-01-02"`
}

// CreateServiceRequest is the body of POST /services
type CreateServiceRequest struct {
	Name         string          `json:"name" binding:"required,min=1,max=100"`
	Type         string          `json:"type" binding:"required,oneof=fixed metered"`
	DefaultPrice decimal.Decimal `json:"default_price" binding:"decimal_nonnegative"`
}

// RegisterMeterRequest is the body of POST /meters
type RegisterMeterRequest struct {
	Code       string `json:"code" binding:"required,min=1,max=50"`
	Scope      string `json:"scope" binding:"required,oneof=building unit"`
	BuildingID string `json:"building_id" binding:"required,uuid"`
	UnitID     string `json:"unit_id" binding:"omitempty,uuid"`
	ServiceID  string `json:"service_id" binding:"required,uuid"`
}

// RecordReadingRequest is the body of POST /meters/:id/readings
type RecordReadingRequest struct {
	ReadingDate string          `json:"reading_date" binding:"required,datetime=2006-01-02"`
	Current     decimal.Decimal `json:"current" binding:"decimal_nonnegative"`
}

// UpdateReadingRequest is the body of PATCH /readings/:id
type UpdateReadingRequest struct {
	ReadingDate string           `json:"reading_date" binding:"omitempty,datetime=2006-01-02"`
	Current     *decimal.Decimal `json:"current"`
}

// DistributionQuery holds the query parameters of GET /buildings/:id/distribution
type DistributionQuery struct {
	ReadingDate string `form:"reading_date" binding:"required,datetime=2006-01-02"`
}
