package timeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// duplicateWindow is the timestamp window within which two messages
// with identical text and sender collapse into one. This covers a
// server-assigned id arriving after a locally-synthesized one, and
// network-level redelivery.
const duplicateWindow = time.Second

// pendingReceiptTTL bounds how long a read receipt for an unknown
// message id is held waiting for the message to arrive.
const pendingReceiptTTL = 30 * time.Second

// MessageListener observes every message inserted into the timeline
type MessageListener func(domain.Message)

// TypingListener observes the agent typing flag
type TypingListener func(bool)

// Reconciler is the single authority over the visible timeline. It
// merges transport frames and locally-synthesized system events into
// one ordered, duplicate-free sequence and derives secondary state
// (agent typing, read receipts).
type Reconciler struct {
	logger    *zap.Logger
	onMessage MessageListener
	onTyping  TypingListener

	mu           sync.Mutex
	messages     []domain.Message
	seenIDs      map[string]struct{}
	pendingReads map[string]time.Time
	agentTyping  bool
	chatStarted  bool
}

// NewReconciler creates an empty reconciler. Listeners may be nil.
func NewReconciler(logger *zap.Logger, onMessage MessageListener, onTyping TypingListener) *Reconciler {
	return &Reconciler{
		logger:       logger,
		onMessage:    onMessage,
		onTyping:     onTyping,
		seenIDs:      make(map[string]struct{}),
		pendingReads: make(map[string]time.Time),
	}
}

// Ingest classifies and applies one inbound wire frame. Re-ingesting
// an identical frame has no observable effect beyond the first time.
// Malformed or unknown frames are dropped, never fatal.
func (r *Reconciler) Ingest(frame domain.Frame) {
	switch frame.Type {
	case domain.FrameChatMessage, domain.FrameMessage:
		r.ingestMessage(frame)
	case domain.FrameTyping:
		r.ingestTyping(frame)
	case domain.FrameMessageSeen:
		r.ingestSeen(frame)
	case domain.FrameChatConnected:
		// Informational ack, nothing to apply.
	default:
		r.logger.Debug("ignoring unknown frame type", zap.String("type", frame.Type))
	}
}

func (r *Reconciler) ingestMessage(frame domain.Frame) {
	if frame.Message == "" && frame.Attachment == nil {
		r.logger.Warn("dropping message frame with no content")
		return
	}

	sender := domain.SenderType(frame.SenderType)
	if sender == "" {
		sender = domain.SenderAgent
	}

	id := frame.MessageID
	if id == "" {
		id = GenerateMessageID()
	}

	msg := domain.Message{
		ID:         id,
		SenderType: sender,
		SenderID:   frame.SenderID,
		SenderName: frame.SenderName,
		Text:       frame.Message,
		Attachment: frame.Attachment,
		Timestamp:  frame.Time(),
		Status:     domain.StatusDelivered,
		Kind:       domain.KindText,
		Subtype:    domain.SystemSubtype(frame.Subtype),
		Visibility: domain.VisibilityVisible,
	}
	if frame.Attachment != nil {
		msg.Kind = domain.KindAttachment
	}
	if sender == domain.SenderSystem {
		msg.Kind = domain.KindSystem
	}
	if frame.Visibility != "" {
		msg.Visibility = domain.Visibility(frame.Visibility)
	}
	// A visitor_left control message renders as the end of the chat.
	if msg.Subtype == domain.SubtypeVisitorLeft {
		msg.Kind = domain.KindSystem
		msg.SenderType = domain.SenderSystem
		msg.Text = "Chat ended"
	}

	r.mu.Lock()
	if _, dup := r.seenIDs[msg.ID]; dup {
		// Known id may still carry a retroactive visibility rewrite.
		if frame.Visibility != "" {
			r.setVisibilityLocked(msg.ID, domain.Visibility(frame.Visibility))
		}
		r.mu.Unlock()
		return
	}
	if r.isContentDuplicateLocked(msg) {
		r.seenIDs[msg.ID] = struct{}{}
		r.mu.Unlock()
		return
	}

	var inserted []domain.Message
	if started := r.maybeStartChatLocked(msg); started != nil {
		inserted = append(inserted, *started)
	}
	r.applyPendingReadLocked(&msg)
	r.insertLocked(msg)
	inserted = append(inserted, msg)
	r.mu.Unlock()

	if r.onMessage != nil {
		for _, m := range inserted {
			r.onMessage(m)
		}
	}
}

// maybeStartChatLocked synthesizes the one-time "Chat started" system
// message, placed one second before the first human message so it
// sorts ahead of it.
func (r *Reconciler) maybeStartChatLocked(trigger domain.Message) *domain.Message {
	if r.chatStarted || trigger.SenderType == domain.SenderSystem {
		return nil
	}
	r.chatStarted = true
	started := domain.Message{
		ID:         GenerateMessageID(),
		SenderType: domain.SenderSystem,
		Text:       "Chat started",
		Timestamp:  trigger.Timestamp.Add(-time.Second),
		Status:     domain.StatusDelivered,
		Kind:       domain.KindSystem,
		Subtype:    domain.SubtypeChatStarted,
		Visibility: domain.VisibilityVisible,
	}
	r.insertLocked(started)
	return &started
}

func (r *Reconciler) ingestTyping(frame domain.Frame) {
	// Only the agent side drives the typing flag; the visitor's own
	// indicator echo is ignored.
	typing := frame.IsTyping != nil && *frame.IsTyping &&
		domain.SenderType(frame.SenderType) == domain.SenderAgent

	r.mu.Lock()
	changed := r.agentTyping != typing
	r.agentTyping = typing
	r.mu.Unlock()

	if changed && r.onTyping != nil {
		r.onTyping(typing)
	}
}

func (r *Reconciler) ingestSeen(frame domain.Frame) {
	if frame.MessageID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == frame.MessageID {
			r.messages[i].Status = domain.StatusRead
			return
		}
	}
	// Receipt outran its message; hold it and apply lazily.
	r.pendingReads[frame.MessageID] = time.Now()
}

func (r *Reconciler) applyPendingReadLocked(msg *domain.Message) {
	at, ok := r.pendingReads[msg.ID]
	if !ok {
		return
	}
	delete(r.pendingReads, msg.ID)
	if time.Since(at) <= pendingReceiptTTL {
		msg.Status = domain.StatusRead
	}
}

// AddSystem inserts a locally-synthesized system message, e.g. a
// handshake failure notice or the welcome greeting.
func (r *Reconciler) AddSystem(sender domain.SenderType, text string, subtype domain.SystemSubtype) domain.Message {
	msg := domain.Message{
		ID:         GenerateMessageID(),
		SenderType: sender,
		Text:       text,
		Timestamp:  time.Now().UTC(),
		Status:     domain.StatusDelivered,
		Kind:       domain.KindSystem,
		Subtype:    subtype,
		Visibility: domain.VisibilityVisible,
	}

	r.mu.Lock()
	r.insertLocked(msg)
	r.mu.Unlock()

	if r.onMessage != nil {
		r.onMessage(msg)
	}
	return msg
}

// insertLocked places msg at its timestamp-ordered position
func (r *Reconciler) insertLocked(msg domain.Message) {
	r.seenIDs[msg.ID] = struct{}{}
	i := sort.Search(len(r.messages), func(i int) bool {
		return r.messages[i].Timestamp.After(msg.Timestamp)
	})
	r.messages = append(r.messages, domain.Message{})
	copy(r.messages[i+1:], r.messages[i:])
	r.messages[i] = msg
}

// isContentDuplicateLocked reports whether another message with the
// same text and sender exists within the duplicate window.
func (r *Reconciler) isContentDuplicateLocked(msg domain.Message) bool {
	if msg.Text == "" {
		// Attachment-only messages are distinguished by id alone.
		return false
	}
	for i := range r.messages {
		m := &r.messages[i]
		if m.Text == msg.Text && m.SenderType == msg.SenderType {
			d := m.Timestamp.Sub(msg.Timestamp)
			if d < 0 {
				d = -d
			}
			if d < duplicateWindow {
				return true
			}
		}
	}
	return false
}

func (r *Reconciler) setVisibilityLocked(id string, v domain.Visibility) {
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].Visibility = v
			return
		}
	}
}

// Messages returns a copy of the ordered timeline
func (r *Reconciler) Messages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// UnreadAgentMessages returns agent messages not yet marked read, in
// timeline order. The presentation layer flushes read receipts for
// these when the widget opens.
func (r *Reconciler) UnreadAgentMessages() []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.SenderType == domain.SenderAgent && m.Status != domain.StatusRead {
			out = append(out, m)
		}
	}
	return out
}

// MarkRead sets the delivery status of id to read
func (r *Reconciler) MarkRead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].Status = domain.StatusRead
			return
		}
	}
}

// AgentTyping reports whether the agent is currently typing
func (r *Reconciler) AgentTyping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentTyping
}

// Reset clears the timeline and every dedup cache. Stale ids must not
// survive into the next session or they would collide with its dedup
// checks.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.messages = nil
	r.seenIDs = make(map[string]struct{})
	r.pendingReads = make(map[string]time.Time)
	r.agentTyping = false
	r.chatStarted = false
	r.mu.Unlock()

	if r.onTyping != nil {
		r.onTyping(false)
	}
}

// GenerateMessageID synthesizes a stable id for messages that arrive
// without a server-assigned one.
func GenerateMessageID() string {
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
