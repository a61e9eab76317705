package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/application/billing"
	"github.com/leasehold/backend/internal/interfaces/http/router"
)

// MeterHandler handles meters, readings and building distributions
type MeterHandler struct {
	BaseHandler
	meterService *billing.MeterService
}

// NewMeterHandler creates a new meter handler
func NewMeterHandler(meterService *billing.MeterService) *MeterHandler {
	return &MeterHandler{meterService: meterService}
}

// Routes returns the meter, reading and building route groups
func (h *MeterHandler) Routes() []*router.DomainGroup {
	meters := router.NewDomainGroup("meters", "/meters")
	meters.POST("", h.RegisterMeter)
	meters.POST("/:id/readings", h.RecordReading)
	meters.POST("/:id/recalculate", h.Recalculate)

	readings := router.NewDomainGroup("readings", "/readings")
	readings.PATCH("/:id", h.UpdateReading)
	readings.DELETE("/:id", h.DeleteReading)

	buildings := router.NewDomainGroup("buildings", "/buildings")
	buildings.GET("/:id/distribution", h.Distribution)
	return []*router.DomainGroup{meters, readings, buildings}
}

// RegisterMeter registers a building or unit meter
func (h *MeterHandler) RegisterMeter(c *gin.Context) {
	var req RegisterMeterRequest
	if !h.bindJSON(c, &req) {
		return
	}

	meter, err := h.meterService.RegisterMeter(c.Request.Context(), billing.RegisterMeterInput{
		Code:       req.Code,
		Scope:      req.Scope,
		BuildingID: uuid.MustParse(req.BuildingID),
		UnitID:     parseOptionalUUID(req.UnitID),
		ServiceID:  uuid.MustParse(req.ServiceID),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, meter)
}

// RecordReading records a reading. Previous and consumption are derived.
func (h *MeterHandler) RecordReading(c *gin.Context) {
	meterID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req RecordReadingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	reading, err := h.meterService.RecordReading(c.Request.Context(), billing.RecordReadingInput{
		MeterID:     meterID,
		ReadingDate: parseDate(req.ReadingDate),
		Current:     req.Current,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, reading)
}

// UpdateReading changes a reading and re-derives its meter's chain
func (h *MeterHandler) UpdateReading(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req UpdateReadingRequest
	if !h.bindJSON(c, &req) {
		return
	}

	reading, err := h.meterService.UpdateReading(c.Request.Context(), billing.UpdateReadingInput{
		ID:          id,
		ReadingDate: parseOptionalDate(req.ReadingDate),
		Current:     req.Current,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, reading)
}

// DeleteReading removes a reading and re-derives its meter's chain
func (h *MeterHandler) DeleteReading(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.meterService.DeleteReading(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Recalculate re-derives previous and consumption for every reading of a meter
func (h *MeterHandler) Recalculate(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	result, err := h.meterService.RecalculateConsumption(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Distribution splits building consumption on a reading date across its units
func (h *MeterHandler) Distribution(c *gin.Context) {
	buildingID, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var q DistributionQuery
	if !h.bindQuery(c, &q) {
		return
	}

	distributions, err := h.meterService.DistributeBuildingConsumption(c.Request.Context(), buildingID, parseDate(q.ReadingDate))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, distributions)
}
