package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/application/identity"
	domainidentity "github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/interfaces/http/middleware"
	"github.com/leasehold/backend/internal/interfaces/http/router"
)

// ProvisionTenantRequest is the body of POST /tenants
type ProvisionTenantRequest struct {
	Name                  string `json:"name" binding:"required,min=1,max=200"`
	Slug                  string `json:"slug" binding:"omitempty,max=63"`
	MergeServicesWithRent bool   `json:"merge_services_with_rent"`
}

// RenameTenantRequest is the body of PUT /tenants/:id/name
type RenameTenantRequest struct {
	Name string `json:"name" binding:"required,min=1,max=200"`
}

// TenantSettingsRequest is the body of PUT /tenants/:id/settings
type TenantSettingsRequest struct {
	MergeServicesWithRent bool `json:"merge_services_with_rent"`
}

// TenantHandler handles tenant onboarding and administration. Every route
// requires the platform administrator role.
type TenantHandler struct {
	BaseHandler
	provisioningService *identity.ProvisioningService
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(provisioningService *identity.ProvisioningService) *TenantHandler {
	return &TenantHandler{provisioningService: provisioningService}
}

// Routes returns the tenant administration route group
func (h *TenantHandler) Routes() *router.DomainGroup {
	g := router.NewDomainGroup("tenants", "/tenants")
	g.Use(middleware.RequireRole(domainidentity.RolePlatformAdmin))
	g.POST("", h.Provision)
	g.GET("", h.ListActive)
	g.GET("/:id", h.GetByID)
	g.PUT("/:id/name", h.Rename)
	g.PUT("/:id/settings", h.UpdateSettings)
	g.POST("/:id/activate", h.Activate)
	g.POST("/:id/deactivate", h.Deactivate)
	g.POST("/:id/resume-setup", h.ResumeSetup)
	return g
}

// Provision registers a tenant and creates its database
func (h *TenantHandler) Provision(c *gin.Context) {
	var req ProvisionTenantRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tenant, err := h.provisioningService.Provision(c.Request.Context(), identity.ProvisionTenantInput{
		Name:                  req.Name,
		Slug:                  req.Slug,
		MergeServicesWithRent: req.MergeServicesWithRent,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tenant)
}

// ListActive returns every active tenant
func (h *TenantHandler) ListActive(c *gin.Context) {
	tenants, err := h.provisioningService.ListActive(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenants)
}

// GetByID returns one tenant
func (h *TenantHandler) GetByID(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	tenant, err := h.provisioningService.GetTenant(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// Rename changes the display name. The slug and database stay the same.
func (h *TenantHandler) Rename(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req RenameTenantRequest
	if !h.bindJSON(c, &req) {
		return
	}
	tenant, err := h.provisioningService.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// UpdateSettings changes the tenant's billing preferences
func (h *TenantHandler) UpdateSettings(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req TenantSettingsRequest
	if !h.bindJSON(c, &req) {
		return
	}
	tenant, err := h.provisioningService.UpdateSettings(c.Request.Context(), identity.UpdateSettingsInput{
		ID:                    id,
		MergeServicesWithRent: req.MergeServicesWithRent,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// Activate re-enables a tenant
func (h *TenantHandler) Activate(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	tenant, err := h.provisioningService.Activate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// Deactivate excludes a tenant from billing runs
func (h *TenantHandler) Deactivate(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	tenant, err := h.provisioningService.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}

// ResumeSetup finishes provisioning a tenant whose setup failed
func (h *TenantHandler) ResumeSetup(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	tenant, err := h.provisioningService.ResumeSetup(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tenant)
}
