package uploads

import (
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"

	"powerquality-backend/internal/shared/server/middleware"
	"powerquality-backend/internal/shared/server/respond"
	"powerquality-backend/internal/shared/telemetry"
	"powerquality-backend/internal/shared/util"
)

const (
	// maxUploadBytes caps dataset uploads; measurement CSVs can run long.
	maxUploadBytes = 50 << 20
	presignExpires = 15 * time.Minute
)

// CSV exports come with a handful of mime types depending on the client OS.
var allowedContentTypes = map[string]struct{}{
	"text/csv":                 {},
	"text/plain":               {},
	"application/csv":          {},
	"application/vnd.ms-excel": {},
}

// Handler issues presigned S3 PUT URLs for dataset uploads.
type Handler struct {
	Presign *s3.PresignClient
	Bucket  string
}

func NewHandler(presign *s3.PresignClient, bucket string) *Handler {
	return &Handler{Presign: presign, Bucket: bucket}
}

// RegisterRoutes attaches upload routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presign)
}

type presignRequest struct {
	StorageKey  string `json:"storageKey"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	StorageKey       string `json:"storageKey"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) presign(c *gin.Context) {
	if h.Presign == nil || h.Bucket == "" {
		respond.Error(c, http.StatusServiceUnavailable, "uploads_unavailable", "direct uploads not configured", nil)
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	req.StorageKey = strings.TrimSpace(req.StorageKey)
	req.ContentType = strings.TrimSpace(req.ContentType)

	if req.StorageKey == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "storageKey is required", nil)
		return
	}
	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit", nil)
		return
	}

	// Users may only presign keys inside their own namespace.
	userID := middleware.UserIDFromContext(c)
	userPrefix := "users/" + util.HashUserKey(userID) + "/"
	if !strings.HasPrefix(req.StorageKey, userPrefix) || strings.Contains(req.StorageKey, "..") {
		respond.Error(c, http.StatusForbidden, "forbidden", "storageKey outside user namespace", nil)
		return
	}

	out, err := h.Presign.PresignPutObject(c.Request.Context(), &s3.PutObjectInput{
		Bucket:      aws.String(h.Bucket),
		Key:         aws.String(req.StorageKey),
		ContentType: aws.String(req.ContentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = presignExpires
	})
	if err != nil {
		telemetry.Error("uploads.presign_failed", map[string]any{
			"error":       err.Error(),
			"bucket":      h.Bucket,
			"key":         req.StorageKey,
			"contentType": req.ContentType,
			"sizeBytes":   req.SizeBytes,
			"request_id":  c.GetString("requestId"),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        out.URL,
		StorageKey:       req.StorageKey,
		ExpiresInSeconds: int64(presignExpires.Seconds()),
	})
}
