package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leasehold/backend/internal/domain/identity"
	"github.com/leasehold/backend/internal/domain/shared"
	"github.com/leasehold/backend/internal/infrastructure/logger"
	"github.com/leasehold/backend/internal/infrastructure/persistence/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRegistry map[uuid.UUID]*identity.Tenant

func (r stubRegistry) FindByID(_ context.Context, id uuid.UUID) (*identity.Tenant, error) {
	if t, ok := r[id]; ok {
		return t, nil
	}
	return nil, shared.ErrNotFound
}

func (r stubRegistry) FindBySlug(_ context.Context, slug string) (*identity.Tenant, error) {
	for _, t := range r {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

type callerEcho struct {
	Role       string `json:"role"`
	TenantID   string `json:"tenant_id"`
	DatabaseID string `json:"database_id"`
	LogTenant  string `json:"log_tenant"`
	LogDB      string `json:"log_db"`
}

func newCallerRouter(t *testing.T, registry stubRegistry, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	resolver := tenant.NewResolver(registry, "control", nil)

	router := gin.New()
	router.Use(RequestID(), Caller(CallerConfig{Resolver: resolver}))
	handlers := append(extra, func(c *gin.Context) {
		ctx := c.Request.Context()
		tc, ok := tenant.FromContext(ctx)
		require.True(t, ok)
		c.JSON(http.StatusOK, callerEcho{
			Role:       tc.Caller().Role,
			TenantID:   GetTenantID(c),
			DatabaseID: tc.DatabaseID(ctx),
			LogTenant:  logger.GetTenantID(ctx),
			LogDB:      logger.GetDatabaseID(ctx),
		})
	})
	router.GET("/whoami", handlers...)
	return router
}

func TestCaller(t *testing.T) {
	acme, err := identity.NewTenant("Acme Rentals", "")
	require.NoError(t, err)
	registry := stubRegistry{acme.ID: acme}
	router := newCallerRouter(t, registry)

	tests := []struct {
		name     string
		role     string
		tenantID string
		status   int
		wantRole string
		wantDB   string
	}{
		{"staff of a tenant", "staff", acme.ID.String(), http.StatusOK, identity.RoleStaff, "acme-rentals"},
		{"role defaults to staff", "", acme.ID.String(), http.StatusOK, identity.RoleStaff, "acme-rentals"},
		{"tenant by slug", "Tenant_Admin", "acme-rentals", http.StatusOK, identity.RoleTenantAdmin, "acme-rentals"},
		{"platform admin", "platform_admin", "", http.StatusOK, identity.RolePlatformAdmin, "control"},
		{"unknown tenant degrades to control", "staff", uuid.NewString(), http.StatusOK, identity.RoleStaff, "control"},
		{"system role is reserved", "system", acme.ID.String(), http.StatusForbidden, "", ""},
		{"unknown role", "root", "", http.StatusForbidden, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.role != "" {
				req.Header.Set(CallerRoleHeader, tt.role)
			}
			if tt.tenantID != "" {
				req.Header.Set(TenantIDHeader, tt.tenantID)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var got callerEcho
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.wantRole, got.Role)
			assert.Equal(t, tt.tenantID, got.TenantID)
			assert.Equal(t, tt.wantDB, got.DatabaseID)
			assert.Equal(t, tt.wantDB, got.LogDB)
			assert.Equal(t, tt.tenantID, got.LogTenant)
		})
	}
}

func TestRequireRole(t *testing.T) {
	router := newCallerRouter(t, stubRegistry{}, RequireRole(identity.RolePlatformAdmin))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(CallerRoleHeader, identity.RoleStaff)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(CallerRoleHeader, identity.RolePlatformAdmin)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
