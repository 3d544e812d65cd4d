package chat

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"powerquality-backend/internal/analyses"
	"powerquality-backend/internal/shared/server/middleware"
	"powerquality-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the chat orchestrator.
type Handler struct {
	Orch *Orchestrator
}

func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{Orch: orch}
}

// RegisterRoutes attaches chat routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses/:id/chat", h.postMessage)
	rg.GET("/analyses/:id/chat", h.listMessages)
	rg.GET("/analyses/:id/chat/stream", h.stream)
}

type postMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) postMessage(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "text is required", nil)
		return
	}

	result, err := h.Orch.HandleTurn(c.Request.Context(), TurnInput{
		UserID:     userID,
		AnalysisID: c.Param("id"),
		Text:       req.Text,
	})
	if err != nil {
		var turnErr *TurnError
		switch {
		case errors.As(err, &turnErr):
			respond.Error(c, http.StatusInternalServerError, "chat_failed", "chat turn failed", []map[string]string{
				{"field": "aiMessageKey", "issue": turnErr.AIMessageKey},
			})
		case errors.Is(err, ErrEmptyInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "text is required", nil)
		case errors.Is(err, ErrReportNotReady):
			respond.Error(c, http.StatusConflict, "report_not_ready", "report is not available yet", nil)
		case errors.Is(err, analyses.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, analyses.ErrDeleted):
			respond.Error(c, http.StatusGone, "deleted", "analysis was deleted", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to process message", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, result)
}

func (h *Handler) listMessages(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}

	messages, err := h.Orch.List(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		h.respondAccessError(c, err)
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	respond.JSON(c, http.StatusOK, messages)
}

// stream pushes chat events for one analysis over server-sent events until
// the client disconnects.
func (h *Handler) stream(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysisID := c.Param("id")

	if err := h.Orch.Authorize(c.Request.Context(), userID, analysisID); err != nil {
		h.respondAccessError(c, err)
		return
	}
	if h.Orch.Hub == nil {
		respond.Error(c, http.StatusServiceUnavailable, "stream_unavailable", "realtime stream not configured", nil)
		return
	}

	events, cancel := h.Orch.Hub.Subscribe(analysisID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt)
			return true
		case <-clientGone:
			return false
		}
	})
}

func (h *Handler) respondAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analyses.ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, analyses.ErrDeleted):
		respond.Error(c, http.StatusGone, "deleted", "analysis was deleted", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load chat", nil)
	}
}
