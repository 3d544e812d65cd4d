package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"powerquality-backend/internal/shared/server/middleware"
	"powerquality-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.createAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.PATCH("/analyses/:id", h.updateMetadata)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
	rg.PUT("/analyses/:id/upload-progress", h.uploadProgress)
	rg.POST("/analyses/:id/upload-failed", h.uploadFailed)
	rg.POST("/analyses/:id/complete-upload", h.completeUpload)
	rg.POST("/analyses/:id/retry", h.retryAnalysis)
	rg.GET("/analyses/:id/report", h.getReport)
}

type createAnalysisRequest struct {
	FileName     string   `json:"fileName" binding:"required"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	LanguageCode string   `json:"languageCode"`
	Tags         []string `json:"tags"`
}

func (h *Handler) createAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req createAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}

	rec, err := h.Svc.Create(c.Request.Context(), CreateInput{
		UserID:       userID,
		FileName:     req.FileName,
		Title:        req.Title,
		Description:  req.Description,
		LanguageCode: req.LanguageCode,
		Tags:         req.Tags,
	})
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	respond.JSON(c, http.StatusCreated, gin.H{
		"analysisId": rec.ID,
		"status":     rec.Status,
		"datasetKey": rec.DatasetKey,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	rec, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "failed to fetch analysis")
		return
	}
	respond.JSON(c, http.StatusOK, recordResponse(rec))
}

func (h *Handler) listAnalyses(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	resp := make([]gin.H, 0, len(records))
	for _, rec := range records {
		item := gin.H{
			"analysisId": rec.ID,
			"fileName":   rec.FileName,
			"status":     rec.Status,
			"progress":   rec.Progress,
			"createdAt":  rec.CreatedAt,
		}
		if rec.Title != "" {
			item["title"] = rec.Title
		}
		if len(rec.Tags) > 0 {
			item["tags"] = rec.Tags
		}
		if rec.Status == StatusError && rec.ErrorMessage != "" {
			item["errorMessage"] = rec.ErrorMessage
		}
		resp = append(resp, item)
	}
	respond.JSON(c, http.StatusOK, resp)
}

type updateMetadataRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

func (h *Handler) updateMetadata(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req updateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	rec, err := h.Svc.UpdateMetadata(c.Request.Context(), userID, c.Param("id"), req.Title, req.Description, req.Tags)
	if err != nil {
		h.respondServiceError(c, err, "failed to update analysis")
		return
	}
	respond.JSON(c, http.StatusOK, recordResponse(rec))
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if err := h.Svc.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondServiceError(c, err, "failed to delete analysis")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"deleted": true})
}

type uploadProgressRequest struct {
	Progress *int `json:"progress" binding:"required"`
}

func (h *Handler) uploadProgress(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req uploadProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Progress == nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "progress is required", nil)
		return
	}

	rec, err := h.Svc.UpdateUploadProgress(c.Request.Context(), userID, c.Param("id"), *req.Progress)
	if err != nil {
		h.respondServiceError(c, err, "failed to update upload progress")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"analysisId":     rec.ID,
		"status":         rec.Status,
		"progress":       rec.Progress,
		"uploadProgress": rec.UploadProgress,
	})
}

type uploadFailedRequest struct {
	Message string `json:"message"`
}

func (h *Handler) uploadFailed(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req uploadFailedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	if err := h.Svc.MarkUploadFailed(c.Request.Context(), userID, c.Param("id"), req.Message); err != nil {
		h.respondServiceError(c, err, "failed to record upload failure")
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": StatusError})
}

func (h *Handler) completeUpload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))

	rec, err := h.Svc.CompleteUpload(ctx, userID, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "failed to complete upload")
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId": rec.ID,
		"status":     rec.Status,
		"progress":   rec.Progress,
	})
}

func (h *Handler) retryAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))

	rec, err := h.Svc.Retry(ctx, userID, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "failed to retry analysis")
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"analysisId": rec.ID,
		"status":     rec.Status,
		"progress":   rec.Progress,
	})
}

func (h *Handler) getReport(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	rec, err := h.Svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err, "failed to fetch report")
		return
	}
	if rec.Status != StatusCompleted || rec.Report == nil {
		respond.Error(c, http.StatusConflict, "report_not_ready", "report is not available yet", nil)
		return
	}

	mdx, err := h.Svc.GetReportMdx(c.Request.Context(), userID, rec.ID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load report", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"analysisId": rec.ID,
		"report":     rec.Report,
		"mdxContent": mdx,
		"modifiedAt": rec.ReportModifiedAt,
	})
}

func recordResponse(rec Record) gin.H {
	resp := gin.H{
		"analysisId":     rec.ID,
		"fileName":       rec.FileName,
		"languageCode":   rec.LanguageCode,
		"status":         rec.Status,
		"progress":       rec.Progress,
		"uploadProgress": rec.UploadProgress,
		"createdAt":      rec.CreatedAt,
		"updatedAt":      rec.UpdatedAt,
	}
	if rec.Title != "" {
		resp["title"] = rec.Title
	}
	if rec.Description != "" {
		resp["description"] = rec.Description
	}
	if len(rec.Tags) > 0 {
		resp["tags"] = rec.Tags
	}
	if rec.DataSummary != "" {
		resp["dataSummary"] = rec.DataSummary
	}
	if len(rec.Regulations) > 0 {
		resp["regulations"] = rec.Regulations
	}
	if rec.Status == StatusCompleted {
		resp["completedAt"] = rec.CompletedAt
	}
	if rec.Status == StatusError && rec.ErrorMessage != "" {
		resp["errorMessage"] = rec.ErrorMessage
	}
	return resp
}

func (h *Handler) respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, ErrDeleted):
		respond.Error(c, http.StatusGone, "deleted", "analysis was deleted", nil)
	case errors.Is(err, ErrInvalidTransition):
		respond.Error(c, http.StatusConflict, "invalid_state", "operation not allowed in current status", nil)
	case errors.Is(err, ErrRetryNotAllowed):
		respond.Error(c, http.StatusConflict, "invalid_state", "retry is only allowed after a failure", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}
