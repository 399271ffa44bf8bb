package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/example/derma-check/internal/metrics"
)

// Metrics tracks request counts and final status codes.
func Metrics(registry *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		done := registry.RequestStarted()
		defer func() { done(c.Writer.Status()) }()
		c.Next()
	}
}
