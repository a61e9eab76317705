package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"github.com/leasehold/backend/internal/interfaces/http/dto"
)

// Headers set by the authenticating gateway in front of the API
const (
	CallerRoleHeader = "X-Caller-Role"
	TenantIDHeader   = "X-Tenant-ID"
)

// Gin context keys
const (
	CallerRoleKey = "caller_role"
	TenantIDKey   = "tenant_id"
)

// maxTenantIDLength bounds the tenant header, which may be a UUID or a slug
const maxTenantIDLength = 64

// CallerConfig holds configuration for the caller middleware
type CallerConfig struct {
	Resolver *tenant.Resolver
	Pool     *tenant.Pool
	// DefaultRole applies when the gateway sends no role
	DefaultRole string
}

// Caller builds the per-request tenant context from the gateway headers.
// The database is resolved once here, so request logs carry the database id.
func Caller(cfg CallerConfig) gin.HandlerFunc {
	if cfg.DefaultRole == "" {
		cfg.DefaultRole = identity.RoleStaff
	}

	return func(c *gin.Context) {
		role := strings.ToLower(strings.TrimSpace(c.GetHeader(CallerRoleHeader)))
		if role == "" {
			role = cfg.DefaultRole
		}
		if !isRequestRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeForbidden, "Unknown caller role", GetRequestID(c)))
			return
		}

		tenantID := strings.TrimSpace(c.GetHeader(TenantIDHeader))
		if len(tenantID) > maxTenantIDLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest, "Tenant ID header is too long", GetRequestID(c)))
			return
		}

		requestID := GetRequestID(c)
		tc := tenant.NewContext(tenant.Caller{
			Role:      role,
			TenantID:  tenantID,
			RequestID: requestID,
		}, cfg.Resolver, cfg.Pool)

		ctx := tenant.WithContext(c.Request.Context(), tc)
		if requestID != "" {
			ctx = logger.WithRequestID(ctx, requestID)
		}
		if tenantID != "" {
			ctx = logger.WithTenantID(ctx, tenantID)
		}
		ctx = logger.WithDatabaseID(ctx, tc.DatabaseID(ctx))
		c.Request = c.Request.WithContext(ctx)

		c.Set(CallerRoleKey, role)
		c.Set(TenantIDKey, tenantID)
		c.Next()
	}
}

// isRequestRole reports whether role may arrive on an HTTP request.
// The system role is reserved for background jobs.
func isRequestRole(role string) bool {
	switch role {
	case identity.RolePlatformAdmin, identity.RoleTenantAdmin, identity.RoleStaff:
		return true
	}
	return false
}

// RequireRole rejects callers whose role is not listed
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CallerRoleKey)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeForbidden, "Caller role is not allowed to perform this operation", GetRequestID(c)))
	}
}

// GetTenantID returns the tenant identifier sent by the gateway
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

// GetCallerRole returns the caller role
func GetCallerRole(c *gin.Context) string {
	return c.GetString(CallerRoleKey)
}
