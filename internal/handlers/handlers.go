package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/derma-check/internal/analysis"
	"github.com/example/derma-check/internal/metrics"
	"github.com/example/derma-check/internal/middleware"
)

// MaxUploadSize caps the accepted image size.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around the image.
const multipartOverhead = 1 << 20

// Analyzer runs an image through the hosted model.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, requestID string, image []byte) (*analysis.Result, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, analyzer Analyzer, registry *metrics.Registry) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		if registry == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "metrics disabled"})
			return
		}
		c.JSON(http.StatusOK, registry.Snapshot())
	})

	router.POST("/api/analyze", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			if isBodyTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds the 10MB upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image exceeds the 10MB upload limit"})
			return
		}
		if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files are allowed"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		result, err := analyzer.AnalyzeImage(c.Request.Context(), middleware.GetRequestID(c), data)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": analysis.Classify(err).Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
