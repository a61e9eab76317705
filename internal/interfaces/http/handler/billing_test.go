package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/leasehold/backend/internal/application/billing"
	domainbilling "github.com/leasehold/backend/internal/domain/billing"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/interfaces/http/dto"
	"github.com/leasehold/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// billingClient calls the API as staff of one tenant
type billingClient struct {
	api      *testAPI
	tenantID string
}

func newBillingClient(t *testing.T, merge bool) *billingClient {
	t.Helper()
	api := newTestAPI(t)
	tn := api.provision(t, "Harbor Estates", merge)
	return &billingClient{api: api, tenantID: tn.ID.String()}
}

func (b *billingClient) call(t *testing.T, method, path string, body any) envelopeRecorder {
	t.Helper()
	w := b.api.call(t, method, "/api/v1"+path, identity.RoleStaff, b.tenantID, body)
	return envelopeRecorder{code: w.Code, body: w}
}

func (b *billingClient) mustCreate(t *testing.T, path string, body any) string {
	t.Helper()
	r := b.call(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, r.code, r.body.Body.String())
	return decode[struct {
		ID string `json:"id"`
	}](t, r.body).Data.ID
}

func TestInvoiceHandler_Flow(t *testing.T) {
	b := newBillingClient(t, true)

	b.mustCreate(t, "/services", gin.H{"name": "Cleaning", "type": "fixed", "default_price": "150"})
	contractID := b.mustCreate(t, "/contracts", gin.H{
		"unit_id":     uuid.NewString(),
		"customer_id": uuid.NewString(),
		"rent_type":   "monthly",
		"base_rent":   "3000",
		"start_date":  "2024-01-01",
		"end_date":    "2025-01-01",
	})

	period := gin.H{"contract_id": contractID, "period_start": "2024-03-01", "period_end": "2024-04-01"}
	r := b.call(t, http.MethodPost, "/invoices", period)
	require.Equal(t, http.StatusCreated, r.code, r.body.Body.String())
	inv := decode[appbilling.InvoiceDTO](t, r.body).Data
	assert.Equal(t, "draft", inv.Status)
	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "rent", inv.Lines[0].Type)
	assert.Equal(t, "service", inv.Lines[1].Type)
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(3150)), inv.TotalAmount.String())

	t.Run("same period conflicts", func(t *testing.T) {
		r := b.call(t, http.MethodPost, "/invoices", period)
		assert.Equal(t, http.StatusConflict, r.code)
		assert.Equal(t, dto.ErrCodeAlreadyExists, decode[any](t, r.body).Error.Code)
	})

	t.Run("get and list", func(t *testing.T) {
		r := b.call(t, http.MethodGet, "/invoices/"+inv.ID.String(), nil)
		require.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, inv.InvoiceNumber, decode[appbilling.InvoiceDTO](t, r.body).Data.InvoiceNumber)

		r = b.call(t, http.MethodGet, "/invoices?status=draft&contract_id="+contractID, nil)
		require.Equal(t, http.StatusOK, r.code)
		env := decode[[]appbilling.InvoiceDTO](t, r.body)
		require.Len(t, env.Data, 1)
		require.NotNil(t, env.Meta)
		assert.Equal(t, int64(1), env.Meta.Total)

		r = b.call(t, http.MethodGet, "/invoices?status=overdue", nil)
		assert.Equal(t, http.StatusBadRequest, r.code)
	})

	t.Run("update notes", func(t *testing.T) {
		r := b.call(t, http.MethodPatch, "/invoices/"+inv.ID.String(), gin.H{"notes": "March rent"})
		require.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, "March rent", decode[appbilling.InvoiceDTO](t, r.body).Data.Notes)
	})

	t.Run("payments", func(t *testing.T) {
		path := "/invoices/" + inv.ID.String() + "/payments"

		r := b.call(t, http.MethodPost, path, gin.H{"amount": "0"})
		assert.Equal(t, http.StatusBadRequest, r.code)

		r = b.call(t, http.MethodPost, path, gin.H{"amount": "1000", "paid_at": "2024-03-10"})
		require.Equal(t, http.StatusOK, r.code, r.body.Body.String())
		partial := decode[appbilling.InvoiceDTO](t, r.body).Data
		assert.Equal(t, "posted", partial.Status)
		assert.True(t, partial.RemainingAmount.Equal(decimal.NewFromInt(2150)))

		r = b.call(t, http.MethodPost, path, gin.H{"amount": "2150"})
		require.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, "paid", decode[appbilling.InvoiceDTO](t, r.body).Data.Status)

		r = b.call(t, http.MethodDelete, "/invoices/"+inv.ID.String(), nil)
		assert.Equal(t, http.StatusUnprocessableEntity, r.code)

		r = b.call(t, http.MethodPost, "/invoices/"+inv.ID.String()+"/cancel", gin.H{"reason": "duplicate"})
		assert.Equal(t, http.StatusUnprocessableEntity, r.code)
	})

	t.Run("cancel and delete", func(t *testing.T) {
		r := b.call(t, http.MethodPost, "/invoices", gin.H{
			"contract_id": contractID, "period_start": "2024-04-01", "period_end": "2024-05-01",
		})
		require.Equal(t, http.StatusCreated, r.code)
		april := decode[appbilling.InvoiceDTO](t, r.body).Data

		r = b.call(t, http.MethodPost, "/invoices/"+april.ID.String()+"/cancel", gin.H{"reason": "tenant moved out"})
		require.Equal(t, http.StatusOK, r.code)
		assert.Equal(t, "cancelled", decode[appbilling.InvoiceDTO](t, r.body).Data.Status)

		r = b.call(t, http.MethodPost, "/invoices", gin.H{
			"contract_id": contractID, "period_start": "2024-05-01", "period_end": "2024-06-01",
		})
		require.Equal(t, http.StatusCreated, r.code)
		may := decode[appbilling.InvoiceDTO](t, r.body).Data

		r = b.call(t, http.MethodDelete, "/invoices/"+may.ID.String(), nil)
		assert.Equal(t, http.StatusNoContent, r.code)
		r = b.call(t, http.MethodGet, "/invoices/"+may.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, r.code)
	})

	t.Run("terminated contracts are not billed", func(t *testing.T) {
		r := b.call(t, http.MethodPost, "/contracts/"+contractID+"/terminate", nil)
		require.Equal(t, http.StatusOK, r.code)
		assert.False(t, decode[appbilling.ContractDTO](t, r.body).Data.Active)

		r = b.call(t, http.MethodPost, "/invoices", gin.H{
			"contract_id": contractID, "period_start": "2024-06-01", "period_end": "2024-07-01",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, r.code)
	})
}

func TestInvoiceHandler_Generate_Rejections(t *testing.T) {
	b := newBillingClient(t, false)

	r := b.call(t, http.MethodPost, "/invoices", gin.H{"contract_id": "nope", "period_start": "03/01/2024"})
	require.Equal(t, http.StatusBadRequest, r.code)
	env := decode[any](t, r.body)
	assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
	fields := make(map[string]bool)
	for _, d := range env.Error.Details {
		fields[d.Field] = true
	}
	assert.Equal(t, map[string]bool{"contract_id": true, "period_start": true, "period_end": true}, fields)

	r = b.call(t, http.MethodPost, "/invoices", gin.H{
		"contract_id": uuid.NewString(), "period_start": "2024-03-01", "period_end": "2024-03-01",
	})
	assert.Equal(t, http.StatusBadRequest, r.code)
	assert.Equal(t, dto.ErrCodeInvalidInput, decode[any](t, r.body).Error.Code)

	r = b.call(t, http.MethodPost, "/invoices", gin.H{
		"contract_id": uuid.NewString(), "period_start": "2024-03-01", "period_end": "2024-04-01",
	})
	assert.Equal(t, http.StatusNotFound, r.code)

	// Generating needs the tenant UUID; a slug resolves the database but not the registry entry.
	w := b.api.call(t, http.MethodPost, "/api/v1/invoices", identity.RoleStaff, "harbor-estates", gin.H{
		"contract_id": uuid.NewString(), "period_start": "2024-03-01", "period_end": "2024-04-01",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContractHandler_OverlappingContracts(t *testing.T) {
	b := newBillingClient(t, false)
	unit := uuid.NewString()

	b.mustCreate(t, "/contracts", gin.H{
		"unit_id": unit, "customer_id": uuid.NewString(), "rent_type": "daily",
		"base_rent": "100", "start_date": "2024-01-01", "end_date": "2024-07-01",
	})

	r := b.call(t, http.MethodPost, "/contracts", gin.H{
		"unit_id": unit, "customer_id": uuid.NewString(), "rent_type": "daily",
		"base_rent": "100", "start_date": "2024-06-01", "end_date": "2024-09-01",
	})
	assert.Equal(t, http.StatusConflict, r.code)

	// Ranges are half-open, so a contract may start on the previous end date.
	b.mustCreate(t, "/contracts", gin.H{
		"unit_id": unit, "customer_id": uuid.NewString(), "rent_type": "daily",
		"base_rent": "100", "start_date": "2024-07-01", "end_date": "2024-09-01",
	})

	r = b.call(t, http.MethodPost, "/contracts", gin.H{
		"unit_id": unit, "customer_id": uuid.NewString(), "rent_type": "weekly",
		"base_rent": "-1", "start_date": "2024-01-01", "end_date": "2024-02-01",
	})
	assert.Equal(t, http.StatusBadRequest, r.code)
}

func TestMeterHandler_ReadingsAndDistribution(t *testing.T) {
	b := newBillingClient(t, false)
	building := uuid.NewString()
	unitA, unitB := uuid.NewString(), uuid.NewString()

	water := b.mustCreate(t, "/services", gin.H{"name": "Water", "type": "metered", "default_price": "2"})
	main := b.mustCreate(t, "/meters", gin.H{"code": "W-MAIN", "scope": "building", "building_id": building, "service_id": water})
	meterA := b.mustCreate(t, "/meters", gin.H{"code": "W-A", "scope": "unit", "building_id": building, "unit_id": unitA, "service_id": water})
	meterB := b.mustCreate(t, "/meters", gin.H{"code": "W-B", "scope": "unit", "building_id": building, "unit_id": unitB, "service_id": water})

	record := func(meterID, date, current string) appbilling.ReadingDTO {
		t.Helper()
		r := b.call(t, http.MethodPost, "/meters/"+meterID+"/readings", gin.H{"reading_date": date, "current": current})
		require.Equal(t, http.StatusCreated, r.code, r.body.Body.String())
		return decode[appbilling.ReadingDTO](t, r.body).Data
	}

	for _, m := range []string{main, meterA, meterB} {
		record(m, "2024-01-01", "1000")
	}
	record(main, "2024-01-31", "1100")
	record(meterA, "2024-01-31", "1020")
	late := record(meterB, "2024-01-31", "1040")
	assert.True(t, late.Previous.Equal(decimal.NewFromInt(1000)))
	assert.True(t, late.Consumption.Equal(decimal.NewFromInt(40)))

	t.Run("out of order reading re-derives the chain", func(t *testing.T) {
		mid := record(meterB, "2024-01-15", "1010")
		assert.True(t, mid.Consumption.Equal(decimal.NewFromInt(10)))

		r := b.call(t, http.MethodPost, "/meters/"+meterB+"/recalculate", nil)
		require.Equal(t, http.StatusOK, r.code)
		result := decode[appbilling.RecalculationResult](t, r.body).Data
		assert.Equal(t, 3, result.Readings)
		assert.Zero(t, result.Changed)

		r = b.call(t, http.MethodDelete, "/readings/"+mid.ID.String(), nil)
		assert.Equal(t, http.StatusNoContent, r.code)
	})

	t.Run("update reading", func(t *testing.T) {
		r := b.call(t, http.MethodPatch, "/readings/"+late.ID.String(), gin.H{"current": "1030"})
		require.Equal(t, http.StatusOK, r.code, r.body.Body.String())
		updated := decode[appbilling.ReadingDTO](t, r.body).Data
		assert.True(t, updated.Consumption.Equal(decimal.NewFromInt(30)))
	})

	t.Run("distribution", func(t *testing.T) {
		r := b.call(t, http.MethodGet, "/buildings/"+building+"/distribution?reading_date=2024-01-31", nil)
		require.Equal(t, http.StatusOK, r.code, r.body.Body.String())
		dists := decode[[]domainbilling.Distribution](t, r.body).Data
		require.Len(t, dists, 1)
		d := dists[0]
		assert.True(t, d.Total.Equal(decimal.NewFromInt(100)))
		assert.True(t, d.SumUnits.Equal(decimal.NewFromInt(50)))
		assert.True(t, d.Shared.Equal(decimal.NewFromInt(50)))
		require.Len(t, d.Units, 2)

		r = b.call(t, http.MethodGet, "/buildings/"+building+"/distribution", nil)
		assert.Equal(t, http.StatusBadRequest, r.code)
	})

	t.Run("rejections", func(t *testing.T) {
		r := b.call(t, http.MethodPost, "/meters/"+meterA+"/readings", gin.H{"reading_date": "2024-02-01", "current": "-5"})
		assert.Equal(t, http.StatusBadRequest, r.code)

		r = b.call(t, http.MethodPost, "/meters/"+uuid.NewString()+"/readings", gin.H{"reading_date": "2024-02-01", "current": "5"})
		assert.Equal(t, http.StatusNotFound, r.code)

		r = b.call(t, http.MethodPost, "/meters", gin.H{"code": "X", "scope": "floor", "building_id": building, "service_id": water})
		assert.Equal(t, http.StatusBadRequest, r.code)
	})
}

func TestSystemHandler_Health(t *testing.T) {
	api := newTestAPI(t)

	w := api.call(t, http.MethodGet, "/health", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", env.Data.Status)
	assert.Equal(t, "ok", env.Data.Checks["control"])
	assert.NotEmpty(t, env.Data.GoVersion)
}

func TestInvoiceHandler_PaymentIdempotencyKey(t *testing.T) {
	b := newBillingClient(t, false)
	contractID := b.mustCreate(t, "/contracts", gin.H{
		"unit_id":     uuid.NewString(),
		"customer_id": uuid.NewString(),
		"rent_type":   "monthly",
		"base_rent":   "1200",
		"start_date":  "2024-01-01",
		"end_date":    "2025-01-01",
	})
	invoiceID := b.mustCreate(t, "/invoices", gin.H{
		"contract_id": contractID, "period_start": "2024-03-01", "period_end": "2024-04-01",
	})

	pay := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/"+invoiceID+"/payments",
			strings.NewReader(`{"amount":"500"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.CallerRoleHeader, identity.RoleStaff)
		req.Header.Set(middleware.TenantIDHeader, b.tenantID)
		req.Header.Set(IdempotencyKeyHeader, key)
		w := httptest.NewRecorder()
		b.api.engine.ServeHTTP(w, req)
		return w
	}

	w := pay("transfer-001")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = pay("transfer-001")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[appbilling.InvoiceDTO](t, w).Data.PaidAmount.Equal(decimal.NewFromInt(500)))

	w = pay("transfer-002")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[appbilling.InvoiceDTO](t, w).Data.PaidAmount.Equal(decimal.NewFromInt(1000)))

	w = pay(strings.Repeat("k", 129))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
