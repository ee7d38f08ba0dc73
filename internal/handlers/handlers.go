package handlers

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/face-check/internal/imagecodec"
	"github.com/example/face-check/internal/repository"
	"github.com/example/face-check/internal/transient"
	"github.com/example/face-check/internal/usecase"
)

// MaxUploadSize caps a single uploaded image.
const MaxUploadSize = 10 << 20

// multipart framing and the name field ride on top of the image itself
const maxRequestBody = MaxUploadSize + 1<<20

//go:embed templates/index.html
var templatesFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templatesFS, "templates/index.html"))

// FaceService is the subset of the use case the HTTP front-end drives.
type FaceService interface {
	Register(ctx context.Context, imagePath, name string) usecase.Result
	Verify(ctx context.Context, imagePath string) usecase.Result
	ListUsers(ctx context.Context) ([]usecase.UserView, error)
	CountUsers(ctx context.Context) (int64, error)
	GetResult(ctx context.Context, requestID string) (*repository.VerificationLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Uploaded images
// are staged in uploads for the duration of a request.
func RegisterRoutes(router *gin.Engine, svc FaceService, uploads *transient.Dir) {
	router.SetHTMLTemplate(indexTemplate)

	router.GET("/", func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context())
		if err != nil {
			c.String(http.StatusInternalServerError, "failed to load users")
			return
		}
		c.HTML(http.StatusOK, "index.html", gin.H{"Users": users})
	})

	router.GET("/health", func(c *gin.Context) {
		count, err := svc.CountUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "registered": count})
	})

	router.POST("/register", func(c *gin.Context) {
		limitBody(c)

		path, release, ok := stageUpload(c, uploads, "upload")
		if !ok {
			return
		}
		defer release()

		name := strings.TrimSpace(c.PostForm("name"))
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		result := svc.Register(c.Request.Context(), path, name)
		c.JSON(http.StatusOK, gin.H{
			"success": result.Success,
			"message": result.Message,
			"id":      result.IdentityID,
		})
	})

	router.POST("/verify", func(c *gin.Context) {
		limitBody(c)

		path, release, ok := stageUpload(c, uploads, "upload")
		if !ok {
			return
		}
		defer release()

		c.JSON(http.StatusOK, svc.Verify(c.Request.Context(), path))
	})

	router.GET("/users", func(c *gin.Context) {
		users, err := svc.ListUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}
		c.JSON(http.StatusOK, users)
	})

	router.GET("/result/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := svc.GetResult(c.Request.Context(), requestID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id":    log.RequestID,
			"success":       log.Success,
			"matched_name":  log.MatchedName,
			"distance":      log.Distance,
			"backend":       log.Backend,
			"message":       log.Message,
			"processing_ms": log.ProcessingMs,
			"created_at":    log.CreatedAt,
		})
	})

	router.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
}

// stageUpload validates the "image" form file and writes it to a transient
// file. On failure the response has already been written.
func stageUpload(c *gin.Context, uploads *transient.Dir, prefix string) (string, transient.Release, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return "", nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return "", nil, false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return "", nil, false
	}

	if contentType := file.Header.Get("Content-Type"); contentType != "" && !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type"})
		return "", nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return "", nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return "", nil, false
	}

	if !imagecodec.IsImage(data) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image format"})
		return "", nil, false
	}

	path, release, err := uploads.Write(prefix, data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage image"})
		return "", nil, false
	}
	return path, release, true
}
