package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/interfaces/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(engine, WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	var apiMiddlewareCalls int
	r.Use(func(c *gin.Context) {
		apiMiddlewareCalls++
		c.Next()
	})

	group := NewDomainGroup("invoices", "/invoices")
	group.GET("/:id", func(c *gin.Context) {
		c.String(http.StatusOK, "invoice "+c.Param("id"))
	})
	r.Register(group)
	r.Setup()

	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, http.MethodGet, "/api/v1/invoices/42")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "invoice 42", w.Body.String())

	w = serve(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, apiMiddlewareCalls)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("meters", "/meters")
		assert.Equal(t, "meters", g.Name())
		assert.Equal(t, "/meters", g.Prefix())
	})

	t.Run("registers every method", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("contracts", "/contracts")
		ok := func(c *gin.Context) { c.String(http.StatusOK, c.Request.Method) }
		g.GET("", ok).POST("", ok).PUT("/:id", ok).PATCH("/:id", ok).DELETE("/:id", ok)
		g.RegisterRoutes(engine.Group("/api/v1"))

		for _, tc := range []struct{ method, path string }{
			{http.MethodGet, "/api/v1/contracts"},
			{http.MethodPost, "/api/v1/contracts"},
			{http.MethodPut, "/api/v1/contracts/1"},
			{http.MethodPatch, "/api/v1/contracts/1"},
			{http.MethodDelete, "/api/v1/contracts/1"},
		} {
			w := serve(engine, tc.method, tc.path)
			assert.Equal(t, http.StatusOK, w.Code, tc.method)
			assert.Equal(t, tc.method, w.Body.String())
		}
	})

	t.Run("group middleware and subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("admin", "/admin")
		g.Use(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusForbidden)
		})
		g.Group("tenants", "/tenants").GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/admin/tenants")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestNewEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := NewEngine(EngineConfig{
		Metrics:     middleware.NewHTTPMetrics(reg),
		Gatherer:    reg,
		MaxBodySize: 16,
	})
	engine.GET("/echo", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetRequestID(c))
	})
	engine.POST("/echo", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			return
		}
		c.Status(http.StatusOK)
	})
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := serve(engine, http.MethodGet, "/echo")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(middleware.RequestIDHeader))

	w = serve(engine, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = 64
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(engine, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "leasehold_http_server_requests_total")
}
