package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/application/billing"
	"github.com/leasehold/backend/internal/interfaces/http/router"
)

// IdempotencyKeyHeader carries the client's key for payment deduplication
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// InvoiceHandler handles invoice HTTP requests
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billing.InvoiceService
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(invoiceService *billing.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// Routes returns the invoice route group
func (h *InvoiceHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("invoices", "/invoices")
	g.POST("", h.Generate)
	g.GET("", h.List)
	g.GET("/:id", h.GetByID)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/payments", h.ApplyPayment)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/meter-charges", h.AttachMeterCharges)
	return g
}

// Generate creates the invoice of a contract for one period. The period
// end date is exclusive.
func (h *InvoiceHandler) Generate(c *gin.Context) {
	tenantID, ok := h.callerTenantID(c)
	if !ok {
		return
	}
	var req GenerateInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.GenerateInvoice(c.Request.Context(), billing.GenerateInvoiceInput{
		TenantID:    tenantID,
		ContractID:  uuid.MustParse(req.ContractID),
		PeriodStart: parseDate(req.PeriodStart),
		PeriodEnd:   parseDate(req.PeriodEnd),
		Notes:       req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// List returns a page of invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var q ListInvoicesQuery
	if !h.bindQuery(c, &q) {
		return
	}

	result, err := h.invoiceService.ListInvoices(c.Request.Context(), billing.InvoiceListFilter{
		Page:       q.Page,
		PageSize:   q.PageSize,
		SortBy:     q.SortBy,
		SortDir:    q.SortDir,
		ContractID: parseOptionalUUID(q.ContractID),
		Status:     q.Status,
		From:       parseOptionalDate(q.From),
		To:         parseOptionalDate(q.To),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Invoices, result.Total, result.Page, result.PageSize)
}

// GetByID returns one invoice with its lines
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Update edits notes and due date
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.UpdateInvoice(c.Request.Context(), billing.UpdateInvoiceInput{
		ID:      id,
		Notes:   req.Notes,
		DueDate: parseOptionalDate(req.DueDate),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Delete removes a draft or posted invoice
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.invoiceService.DeleteInvoice(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ApplyPayment records a payment against an invoice. A retried request with
// the same Idempotency-Key header is not applied twice.
func (h *InvoiceHandler) ApplyPayment(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	key := c.GetHeader(IdempotencyKeyHeader)
	if len(key) > maxIdempotencyKeyLen {
		h.BadRequest(c, IdempotencyKeyHeader+" is too long")
		return
	}
	var req ApplyPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.ApplyPayment(c.Request.Context(), billing.ApplyPaymentInput{
		InvoiceID:      id,
		Amount:         req.Amount,
		PaidAt:         parseDate(req.PaidAt),
		IdempotencyKey: key,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Cancel cancels an invoice that is neither paid nor cancelled
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req CancelInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), billing.CancelInvoiceInput{
		InvoiceID: id,
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// AttachMeterCharges bills the contract unit's share of a building distribution
func (h *InvoiceHandler) AttachMeterCharges(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req AttachMeterChargesRequest
	if !h.bindJSON(c, &req) {
		return
	}

	invoice, err := h.invoiceService.AttachMeterCharges(c.Request.Context(), billing.AttachMeterChargesInput{
		InvoiceID:   id,
		BuildingID:  uuid.MustParse(req.BuildingID),
		ReadingDate: parseDate(req.ReadingDate),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}
