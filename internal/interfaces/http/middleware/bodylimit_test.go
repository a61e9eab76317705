package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
)

func bodyLimitRouter(limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), BodyLimit(limit))
	router.POST("/readings", func(c *gin.Context) {
		var req struct {
			Value string `json:"value"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.String(http.StatusOK, req.Value)
	})
	router.GET("/readings", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestBodyLimit(t *testing.T) {
	t.Run("allows a body within the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(`{"value":"42.5"}`))
		w := httptest.NewRecorder()
		bodyLimitRouter(1024).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "42.5", w.Body.String())
	})

	t.Run("rejects a declared length over the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(strings.Repeat("x", 200)))
		w := httptest.NewRecorder()
		bodyLimitRouter(100).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeRequestTooLarge)
		assert.Contains(t, w.Body.String(), w.Header().Get(RequestIDHeader))
	})

	t.Run("rejects a chunked body while binding", func(t *testing.T) {
		body := `{"value":"` + strings.Repeat("9", 200) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/readings", strings.NewReader(body))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		bodyLimitRouter(50).ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeRequestTooLarge)
	})

	t.Run("requests without a body pass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readings", nil)
		w := httptest.NewRecorder()
		bodyLimitRouter(10).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
