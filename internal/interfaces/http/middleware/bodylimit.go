package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leasehold/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request bodies at maxBytes. Declared lengths over the cap are
// refused up front; chunked bodies fail with *http.MaxBytesError while being
// read, which HandleValidationError turns into the same 413 response.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			AbortTooLarge(c)
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// AbortTooLarge answers 413 in the API envelope
func AbortTooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeRequestTooLarge,
		"Request body exceeds maximum allowed size",
		GetRequestID(c),
	))
}
