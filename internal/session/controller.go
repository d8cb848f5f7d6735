package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
	"github.com/hassan7865/Hailouchat-Widget/internal/timeline"
)

// State is the session lifecycle state
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
)

// Transport is the slice of the transport manager the controller
// drives.
type Transport interface {
	Connect(endpoint string)
	Send(frame domain.Frame)
	Disconnect()
}

// Controller owns session acquisition and teardown and coordinates
// the transport with the timeline reconciler. The backend cannot
// resume a session after a transport drop, so a disconnect while
// active resets everything to idle.
type Controller struct {
	logger   *zap.Logger
	api      *APIClient
	enricher *Enricher
	tr       Transport
	tl       *timeline.Reconciler
	wsBase   string

	mu       sync.Mutex
	state    State
	session  *domain.Session
	status   domain.ConnectionStatus
	seenSent map[string]struct{}
}

// NewController wires the session lifecycle
func NewController(
	logger *zap.Logger,
	api *APIClient,
	enricher *Enricher,
	tr Transport,
	tl *timeline.Reconciler,
	wsBase string,
) *Controller {
	return &Controller{
		logger:   logger,
		api:      api,
		enricher: enricher,
		tr:       tr,
		tl:       tl,
		wsBase:   wsBase,
		state:    StateIdle,
		status:   domain.StatusDisconnected,
		seenSent: make(map[string]struct{}),
	}
}

// StartChat performs the handshake and connects the transport. It is
// guarded against concurrent invocation: a second call while starting
// or active returns ErrSessionActive.
func (c *Controller) StartChat(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, domain.ErrSessionActive
	}
	c.state = StateStarting
	c.mu.Unlock()

	meta := c.enricher.Enrich(ctx)

	sess, err := c.api.InitiateChat(ctx, meta)
	if err != nil {
		c.logger.Error("session handshake failed", zap.Error(err))
		c.tl.AddSystem(domain.SenderSystem,
			fmt.Sprintf("Failed to start chat: %v. Please try again.", err), "")
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return nil, err
	}

	c.tl.Reset()
	c.tl.AddSystem(domain.SenderAgent,
		"Hello! Welcome to our support chat. How can I help you today?",
		domain.SubtypeVisitorJoined)

	c.mu.Lock()
	c.session = sess
	c.state = StateActive
	c.seenSent = make(map[string]struct{})
	c.mu.Unlock()

	endpoint := fmt.Sprintf("%s/ws/chat/%s/visitor/%s", c.wsBase, sess.SessionID, sess.VisitorID)
	c.logger.Info("session established",
		zap.String("session_id", sess.SessionID),
		zap.String("visitor_id", sess.VisitorID),
	)
	c.tr.Connect(endpoint)

	return sess, nil
}

// HandleStatus observes transport status. A disconnect while active is
// a hard session end: all session state resets synchronously so stale
// ids cannot collide with the next session's dedup caches.
func (c *Controller) HandleStatus(status domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = status
	active := c.state == StateActive
	c.mu.Unlock()

	if status == domain.StatusDisconnected && active {
		c.logger.Info("transport dropped while active, resetting session")
		c.Reset()
	}
}

// Reset returns the controller and timeline to idle defaults
func (c *Controller) Reset() {
	c.mu.Lock()
	c.session = nil
	c.state = StateIdle
	c.seenSent = make(map[string]struct{})
	c.mu.Unlock()

	c.tl.Reset()
}

// SendMessage sends a visitor message over the transport. The message
// is not rendered locally; the server echo is the sole trigger for its
// timeline entry.
func (c *Controller) SendMessage(text string) error {
	c.mu.Lock()
	ready := c.state == StateActive && c.status == domain.StatusConnected
	c.mu.Unlock()
	if text == "" {
		return domain.ErrInvalidRequest
	}
	if !ready {
		return domain.ErrNotConnected
	}
	c.tr.Send(domain.ChatMessageFrame(timeline.GenerateMessageID(), text))
	return nil
}

// SendTyping sends the visitor's typing indicator
func (c *Controller) SendTyping(isTyping bool) {
	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		return
	}
	c.tr.Send(domain.TypingFrame(isTyping))
}

// MarkSeen emits a read receipt for an agent message, at most once per
// message id, and records the read locally.
func (c *Controller) MarkSeen(messageID string) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	if _, sent := c.seenSent[messageID]; sent {
		c.mu.Unlock()
		return
	}
	c.seenSent[messageID] = struct{}{}
	c.mu.Unlock()

	c.tr.Send(domain.MessageSeenFrame(messageID, time.Now()))
	c.tl.MarkRead(messageID)
}

// EndChat is the explicit, cooperative session end: it tells the
// backend the visitor is leaving but keeps the transport and the
// widget open so the visitor can continue reading or even chatting.
func (c *Controller) EndChat() error {
	c.mu.Lock()
	active := c.state == StateActive
	c.mu.Unlock()
	if !active {
		return domain.ErrNoSession
	}
	c.tr.Send(domain.CloseSessionFrame(time.Now()))
	return nil
}

// RateSession submits a rating for the active session
func (c *Controller) RateSession(ctx context.Context, rating, note string) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return domain.ErrNoSession
	}
	return c.api.RateSession(ctx, sess.SessionID, rating, note)
}

// SaveContactDetails stores contact details for the active visitor
func (c *Controller) SaveContactDetails(ctx context.Context, firstName, email string) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return domain.ErrNoSession
	}
	return c.api.SaveContactDetails(ctx, sess.IPAddress, firstName, email)
}

// State returns the lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a session is established
func (c *Controller) Active() bool {
	return c.State() == StateActive
}

// Session returns the current session, or nil when idle
func (c *Controller) Session() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
