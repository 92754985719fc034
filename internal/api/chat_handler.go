package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cpage-pivotal/ipzs/internal/service"
)

// Advisor answers questions. *service.Advisor implements it.
type Advisor interface {
	Ask(ctx context.Context, req service.Request) (*service.Response, error)
	Stream(ctx context.Context, req service.Request) (*service.Stream, error)
}

// ChatHandler handles HTTP requests for legislative questions
type ChatHandler struct {
	advisor Advisor
	log     *slog.Logger
}

func NewChatHandler(advisor Advisor, log *slog.Logger) *ChatHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ChatHandler{advisor: advisor, log: log}
}

// ChatRequest is the body of both chat endpoints. DateContext is an ISO date;
// when absent the question is answered without a date constraint.
type ChatRequest struct {
	Message     string `json:"message"`
	DateContext string `json:"date_context"`
	SessionID   string `json:"session_id"`
}

// ChatResponse is the answer together with the chunks it was grounded on.
type ChatResponse struct {
	Message            string           `json:"message"`
	SessionID          string           `json:"session_id"`
	Mode               string           `json:"mode"`
	Sources            []service.Source `json:"sources"`
	ProvenanceChunkIDs []string         `json:"provenance_chunk_ids"`
}

func (r ChatRequest) toService() service.Request {
	return service.Request{Text: r.Message, ContextDate: r.DateContext, ConversationID: r.SessionID}
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	resp, err := h.advisor.Ask(c.Request.Context(), req.toService())
	if err != nil {
		h.chatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": ChatResponse{
			Message:            resp.Answer,
			SessionID:          resp.ConversationID,
			Mode:               resp.Mode,
			Sources:            resp.Sources,
			ProvenanceChunkIDs: resp.ProvenanceChunkIDs,
		},
	})
}

// ChatStream handles POST /api/chat/stream. The first event ("meta") carries
// the session and sources, then one "delta" event per generated fragment,
// then "done" or "error".
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	stream, err := h.advisor.Stream(c.Request.Context(), req.toService())
	if err != nil {
		h.chatError(c, err)
		return
	}
	meta := stream.Response()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("meta", ChatResponse{
		SessionID:          meta.ConversationID,
		Mode:               meta.Mode,
		Sources:            meta.Sources,
		ProvenanceChunkIDs: meta.ProvenanceChunkIDs,
	})
	c.Writer.Flush()

	for ev, err := range stream.Events() {
		if err != nil {
			h.log.Error("chat stream failed", "session_id", meta.ConversationID, "error", err)
			c.SSEvent("error", gin.H{"message": service.SafeMessage(err)})
			c.Writer.Flush()
			return
		}
		c.SSEvent("delta", gin.H{"text": ev.Delta})
		c.Writer.Flush()
	}
	c.SSEvent("done", gin.H{"session_id": meta.ConversationID})
	c.Writer.Flush()
}

// badRequest never echoes the decoder error, which quotes the request body.
func (h *ChatHandler) badRequest(c *gin.Context, err error) {
	h.log.Warn("chat: invalid request body", "path", c.FullPath(), "error", err)
	fail(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
}

func (h *ChatHandler) chatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		fail(c, http.StatusBadRequest, "EMPTY_QUESTION", service.SafeMessage(err))
	case errors.Is(err, context.Canceled):
		c.Status(499)
	default:
		h.log.Error("chat failed", "error", err)
		fail(c, http.StatusServiceUnavailable, "UNAVAILABLE", service.SafeMessage(err))
	}
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
