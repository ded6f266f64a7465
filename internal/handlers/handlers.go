package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/portrait-extractor/internal/portrait"
	"github.com/example/portrait-extractor/internal/usecase"
)

// ServiceName and Version identify the API in the root metadata response.
const (
	ServiceName = "Portrait Extraction API"
	Version     = "1.0.0"
)

// MaxUploadSize caps uploaded image payloads at 10 MiB.
const MaxUploadSize = 10 << 20

// ExtractionService is the application surface the HTTP layer calls into.
type ExtractionService interface {
	ExtractPortrait(ctx context.Context, imageBytes []byte) (string, portrait.Outcome)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ExtractionService) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": ServiceName, "version": Version})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	router.POST("/extract-portrait", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}

		contentType := file.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file type. Please upload an image."})
			return
		}

		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "uploaded image is too large"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open uploaded image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read uploaded image"})
			return
		}

		requestID, outcome := svc.ExtractPortrait(c.Request.Context(), data)
		c.Header("X-Request-ID", requestID)

		switch outcome.Code {
		case portrait.OutcomeDecodeFailed:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image file"})
		case portrait.OutcomeNoFaceFound:
			c.JSON(http.StatusOK, gin.H{
				"success":    false,
				"message":    "No face detected in the image",
				"error_code": "NO_FACE_DETECTED",
			})
		case portrait.OutcomeSuccess:
			c.JSON(http.StatusOK, gin.H{
				"success":         true,
				"message":         "Portrait extracted successfully",
				"portrait_base64": outcome.PortraitBase64,
				"portrait_format": "JPEG",
				"dimensions": gin.H{
					"width":  outcome.Width,
					"height": outcome.Height,
				},
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal processing error"})
		}
	})
}
