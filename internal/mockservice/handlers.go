package mockservice

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/eye-check/internal/apiclient"
)

// MaxUploadSize is the largest accepted image in bytes.
const MaxUploadSize = 10 << 20

const multipartOverhead = 1 << 20

// RequestID reads the caller's request id header, or assigns one, and
// stores it on the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(apiclient.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(apiclient.RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(apiclient.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc *Service, hub *Hub, logger *zap.Logger) {
	logger = logger.Named("handlers")

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", RequestID())

	api.POST("/analyze", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.As(err, &tooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			case c.Request.MultipartForm != nil && len(c.Request.MultipartForm.Value["image"]) > 0:
				// a file input submitted without a file arrives as a plain value
				c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": "No image uploaded"})
			}
			return
		}
		if file.Filename == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
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
		if !isImage(file.Header.Get("Content-Type"), data) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
			return
		}

		rec, err := svc.Analyze(c.Request.Context(), file.Filename, data)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	api.GET("/results", func(c *gin.Context) {
		records, err := svc.Results(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results"})
			return
		}
		c.JSON(http.StatusOK, records)
	})

	api.DELETE("/results/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := svc.Delete(c.Request.Context(), id); err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete result"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "id": id})
	})

	api.DELETE("/results", func(c *gin.Context) {
		if err := svc.DeleteAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear results"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	})

	api.GET("/uploads/:filename", func(c *gin.Context) {
		path, err := svc.UploadPath(c.Param("filename"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.File(path)
	})

	api.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.Metrics())
	})

	if hub != nil {
		api.GET("/events", func(c *gin.Context) {
			hub.ServeWS(c.Writer, c.Request)
		})
	}

	logger.Debug("routes registered")
}

func isImage(declared string, data []byte) bool {
	if declared != "" && declared != "application/octet-stream" {
		return strings.HasPrefix(declared, "image/")
	}
	return strings.HasPrefix(http.DetectContentType(data), "image/")
}
