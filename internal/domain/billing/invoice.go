package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceDueDays is the fixed number of days between issue date and due date
const InvoiceDueDays = 30

// QuantityScale is the number of decimals stored for line quantities
const QuantityScale = 4

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusPosted    InvoiceStatus = "posted"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPosted, InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the invoice can no longer be edited or deleted
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// LineType classifies invoice lines
type LineType string

const (
	LineTypeRent    LineType = "rent"
	LineTypeService LineType = "service"
	LineTypeMeter   LineType = "meter"
)

// InvoiceLine is a single charge on an invoice
type InvoiceLine struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	Type        LineType
	ServiceID   *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	Position    int
}

// NewInvoiceLine creates a line whose amount is quantity times unit price
func NewInvoiceLine(lineType LineType, description string, quantity, unitPrice decimal.Decimal) InvoiceLine {
	return InvoiceLine{
		ID:          uuid.New(),
		Type:        lineType,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Amount:      quantity.Mul(unitPrice).Round(2),
	}
}

// Invoice is a billing document for one contract and one period
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber string
	ContractID    uuid.UUID
	PeriodStart   time.Time
	PeriodEnd     time.Time
	IssueDate     time.Time
	DueDate       time.Time
	Status        InvoiceStatus
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	Notes         string
	PaidAt        *time.Time
	CancelledAt   *time.Time
	CancelReason  string
	Lines         []InvoiceLine
}

// NewInvoice creates a draft invoice for a contract and period.
// The invoice number is assigned later, when the sequence is allocated.
func NewInvoice(contractID uuid.UUID, periodStart, periodEnd, issueDate time.Time, notes string) (*Invoice, error) {
	if contractID == uuid.Nil {
		return nil, shared.InvalidInput("Contract ID cannot be empty")
	}
	if !periodEnd.After(periodStart) {
		return nil, shared.InvalidInput("Period end must be after period start")
	}

	issue := DateOnly(issueDate)
	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ContractID:        contractID,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		IssueDate:         issue,
		DueDate:           issue.AddDate(0, 0, InvoiceDueDays),
		Status:            InvoiceStatusDraft,
		TotalAmount:       decimal.Zero,
		PaidAmount:        decimal.Zero,
		Notes:             strings.TrimSpace(notes),
	}, nil
}

// AddLine appends a line. Lines can only be added while the invoice is a draft.
func (inv *Invoice) AddLine(line InvoiceLine) error {
	if inv.Status != InvoiceStatusDraft {
		return shared.InvalidState(fmt.Sprintf("Cannot add lines to invoice in %s status", inv.Status))
	}
	line.InvoiceID = inv.ID
	line.Position = len(inv.Lines)
	inv.Lines = append(inv.Lines, line)
	return nil
}

// RecomputeTotal sets the total to the sum of all line amounts
func (inv *Invoice) RecomputeTotal() {
	total := decimal.Zero
	for _, line := range inv.Lines {
		total = total.Add(line.Amount)
	}
	inv.TotalAmount = total
}

// AssignNumber sets the invoice number allocated from the tenant sequence
func (inv *Invoice) AssignNumber(number string) {
	inv.InvoiceNumber = number
}

// Update changes editable fields. Paid and cancelled invoices cannot be edited.
func (inv *Invoice) Update(notes *string, dueDate *time.Time) error {
	if inv.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("Cannot update invoice in %s status", inv.Status))
	}
	if dueDate != nil {
		due := DateOnly(*dueDate)
		if due.Before(inv.IssueDate) {
			return shared.InvalidInput("Due date cannot be before issue date")
		}
		inv.DueDate = due
	}
	if notes != nil {
		inv.Notes = strings.TrimSpace(*notes)
	}
	inv.IncrementVersion()
	return nil
}

// ApplyPayment records a payment. A partial payment posts the invoice; a payment
// that covers the remaining amount marks it paid. Overpayment is rejected.
func (inv *Invoice) ApplyPayment(amount decimal.Decimal, at time.Time) error {
	if inv.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("Cannot apply payment to invoice in %s status", inv.Status))
	}
	if !amount.IsPositive() {
		return shared.InvalidInput("Payment amount must be positive")
	}
	remaining := inv.RemainingAmount()
	if amount.GreaterThan(remaining) {
		return shared.InvalidInput(fmt.Sprintf("Payment amount %s exceeds remaining amount %s", amount.StringFixed(2), remaining.StringFixed(2)))
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	if inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) {
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &at
	} else {
		inv.Status = InvoiceStatusPosted
	}
	inv.IncrementVersion()
	return nil
}

// Cancel moves a non-terminal invoice to cancelled
func (inv *Invoice) Cancel(reason string, at time.Time) error {
	if inv.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &at
	inv.CancelReason = strings.TrimSpace(reason)
	inv.IncrementVersion()
	return nil
}

// EnsureDeletable returns an error if the invoice may not be deleted
func (inv *Invoice) EnsureDeletable() error {
	if inv.Status.IsTerminal() {
		return shared.InvalidState(fmt.Sprintf("Cannot delete invoice in %s status", inv.Status))
	}
	return nil
}

// RemainingAmount returns total minus paid, never below zero
func (inv *Invoice) RemainingAmount() decimal.Decimal {
	remaining := inv.TotalAmount.Sub(inv.PaidAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// IsOverdue reports whether an unpaid, uncancelled invoice is past its due date at now
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status.IsTerminal() {
		return false
	}
	return DateOnly(now).After(inv.DueDate) && inv.RemainingAmount().IsPositive()
}
