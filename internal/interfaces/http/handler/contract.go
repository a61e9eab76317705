package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/application/billing"
	"github.com/leasehold/backend/internal/interfaces/http/router"
)

// ContractHandler handles lease contract and service catalog requests
type ContractHandler struct {
	BaseHandler
	contractService *billing.ContractService
}

// NewContractHandler creates a new contract handler
func NewContractHandler(contractService *billing.ContractService) *ContractHandler {
	return &ContractHandler{contractService: contractService}
}

// Routes returns the contract and service route groups
func (h *ContractHandler) Routes() []*router.DomainGroup {
	contracts := router.NewDomainGroup("contracts", "/contracts")
	contracts.POST("", h.CreateContract)
	contracts.GET("/:id", h.GetContract)
	contracts.POST("/:id/terminate", h.TerminateContract)

	services := router.NewDomainGroup("services", "/services")
	services.POST("", h.CreateService)
	return []*router.DomainGroup{contracts, services}
}

// CreateContract creates a lease contract. The end date is exclusive.
func (h *ContractHandler) CreateContract(c *gin.Context) {
	var req CreateContractRequest
	if !h.bindJSON(c, &req) {
		return
	}

	contract, err := h.contractService.CreateContract(c.Request.Context(), billing.CreateContractInput{
		UnitID:     uuid.MustParse(req.UnitID),
		CustomerID: uuid.MustParse(req.CustomerID),
		RentType:   req.RentType,
		BaseRent:   req.BaseRent,
		StartDate:  parseDate(req.StartDate),
		EndDate:    parseDate(req.EndDate),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, contract)
}

// GetContract returns one contract
func (h *ContractHandler) GetContract(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	contract, err := h.contractService.GetContract(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, contract)
}

// TerminateContract stops a contract from being billed again
func (h *ContractHandler) TerminateContract(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	contract, err := h.contractService.TerminateContract(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, contract)
}

// CreateService adds a billable service to the tenant catalog
func (h *ContractHandler) CreateService(c *gin.Context) {
	var req CreateServiceRequest
	if !h.bindJSON(c, &req) {
		return
	}

	service, err := h.contractService.CreateService(c.Request.Context(), billing.CreateServiceInput{
		Name:         req.Name,
		Type:         req.Type,
		DefaultPrice: req.DefaultPrice,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, service)
}
