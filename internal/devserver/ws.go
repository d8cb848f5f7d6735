package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dev server accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(frame domain.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(frame)
}

// Hub tracks the live websocket connections per session and routes
// frames between them.
type Hub struct {
	store  *Store
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string][]*client
}

// NewHub creates an empty hub
func NewHub(store *Store, logger *zap.Logger) *Hub {
	return &Hub{
		store:    store,
		logger:   logger,
		sessions: make(map[string][]*client),
	}
}

// ServeWS upgrades the request and runs the per-connection loop
func (h *Hub) ServeWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	visitorID := c.Param("visitor_id")

	sess, err := h.store.GetSession(sessionID)
	if err != nil || sess == nil || sess.VisitorID != visitorID {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn}
	h.register(sessionID, cl)
	defer h.unregister(sessionID, cl)

	_ = cl.write(domain.Frame{Type: domain.FrameChatConnected})
	h.logger.Info("visitor connected",
		zap.String("session_id", sessionID),
		zap.String("visitor_id", visitorID),
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, perr := domain.ParseFrame(data)
		if perr != nil {
			h.logger.Warn("dropping malformed frame", zap.Error(perr))
			continue
		}
		h.handleFrame(sessionID, cl, frame)
	}
}

func (h *Hub) handleFrame(sessionID string, from *client, frame domain.Frame) {
	switch frame.Type {
	case domain.FramePing:
		_ = from.write(domain.Frame{Type: domain.FramePong})

	case domain.FrameChatMessage, domain.FrameMessage:
		// Echo back with a server-assigned id and timestamp; the echo
		// is the client's only render trigger.
		id := frame.MessageID
		if id == "" {
			id = uuid.New().String()
		}
		msg := domain.Message{
			ID:         id,
			SenderType: domain.SenderVisitor,
			Text:       frame.Message,
			Timestamp:  time.Now().UTC(),
		}
		if _, err := h.store.CreateMessage(sessionID, msg); err != nil {
			h.logger.Error("store message failed", zap.Error(err))
		}
		h.Broadcast(sessionID, domain.Frame{
			Type:       domain.FrameChatMessage,
			SenderType: string(domain.SenderVisitor),
			Message:    frame.Message,
			MessageID:  id,
			Timestamp:  msg.Timestamp.Format(time.RFC3339Nano),
		})

	case domain.FrameTyping, domain.FrameMessageSeen:
		h.Broadcast(sessionID, frame)

	case domain.FrameCloseSession:
		if err := h.store.CloseSession(sessionID); err != nil {
			h.logger.Error("close session failed", zap.Error(err))
		}
		h.SendSystem(sessionID, "visitor_left", domain.SubtypeVisitorLeft)
	}
}

// Broadcast delivers a frame to every connection of the session
func (h *Hub) Broadcast(sessionID string, frame domain.Frame) {
	h.mu.Lock()
	clients := append([]*client(nil), h.sessions[sessionID]...)
	h.mu.Unlock()

	for _, cl := range clients {
		if err := cl.write(frame); err != nil {
			h.logger.Debug("broadcast write failed", zap.Error(err))
		}
	}
}

// SendSystem broadcasts a system message into the session
func (h *Hub) SendSystem(sessionID, text string, subtype domain.SystemSubtype) {
	h.Broadcast(sessionID, domain.Frame{
		Type:       domain.FrameChatMessage,
		SenderType: string(domain.SenderSystem),
		Message:    text,
		MessageID:  uuid.New().String(),
		Subtype:    string(subtype),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Hub) register(sessionID string, cl *client) {
	h.mu.Lock()
	h.sessions[sessionID] = append(h.sessions[sessionID], cl)
	h.mu.Unlock()
}

func (h *Hub) unregister(sessionID string, cl *client) {
	h.mu.Lock()
	conns := h.sessions[sessionID]
	for i, c := range conns {
		if c == cl {
			h.sessions[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.sessions[sessionID]) == 0 {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
	cl.conn.Close()
}
