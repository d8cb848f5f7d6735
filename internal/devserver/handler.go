package devserver

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// Handler serves the development backend's HTTP API: the session
// handshake, ratings, visitor details and attachment uploads.
type Handler struct {
	store  *Store
	hub    *Hub
	logger *zap.Logger
}

// NewHandler creates a devserver API handler
func NewHandler(store *Store, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{store: store, hub: hub, logger: logger}
}

// RegisterRoutes registers the widget-facing API routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat/initiate-chat", h.InitiateChat)
	r.POST("/chat/session-rating", h.RateSession)
	r.POST("/chat/visitor-details/widget", h.SaveVisitorDetails)
	r.POST("/chat/upload-attachment", h.UploadAttachment)
}

// InitiateChat handles the session handshake
func (h *Handler) InitiateChat(c *gin.Context) {
	var req domain.InitiateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ClientKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_key is required"})
		return
	}

	sess, err := h.store.CreateSession(req.ClientKey, req.VisitorMetadata)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	h.logger.Info("session created",
		zap.String("session_id", sess.SessionID),
		zap.String("visitor_id", sess.VisitorID),
	)
	c.JSON(http.StatusOK, domain.InitiateChatResponse{
		VisitorID: sess.VisitorID,
		SessionID: sess.SessionID,
	})
}

// RateSession stores a session rating
func (h *Handler) RateSession(c *gin.Context) {
	var req domain.SessionRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Rating != "thumbs_up" && req.Rating != "thumbs_down" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be thumbs_up or thumbs_down"})
		return
	}

	if err := h.store.CreateRating(req.SessionID, req.Rating, req.Note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store rating"})
		return
	}

	// Acknowledge in the conversation the way the real broker does.
	h.hub.SendSystem(req.SessionID, "Thanks for your feedback!", domain.SubtypeRatingRequest)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SaveVisitorDetails stores contact details entered in the widget
func (h *Handler) SaveVisitorDetails(c *gin.Context) {
	var req domain.VisitorDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.SaveVisitorDetails(req.ClientKey, req.IPAddress, req.FirstName, req.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store details"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UploadAttachment accepts a direct multipart upload and broadcasts
// the resulting attachment message to the session, mirroring how the
// production backend delivers it over the websocket rather than in
// the upload response.
func (h *Handler) UploadAttachment(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	sessionID := c.PostForm("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	sess, err := h.store.GetSession(sessionID)
	if err != nil || sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	// The dev backend does not persist bytes; it only mints a URL.
	attachment := &domain.Attachment{
		FileName: filepath.Base(file.Filename),
		FileURL:  "/attachments/" + uuid.New().String() + "/" + filepath.Base(file.Filename),
		FileSize: file.Size,
	}

	msg := domain.Message{
		ID:         uuid.New().String(),
		SenderType: domain.SenderVisitor,
		Attachment: attachment,
		Timestamp:  time.Now().UTC(),
	}
	if _, err := h.store.CreateMessage(sessionID, msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store attachment"})
		return
	}

	h.hub.Broadcast(sessionID, domain.Frame{
		Type:       domain.FrameChatMessage,
		SenderType: string(domain.SenderVisitor),
		MessageID:  msg.ID,
		Timestamp:  msg.Timestamp.Format(time.RFC3339Nano),
		Attachment: attachment,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok", "file_url": attachment.FileURL})
}
