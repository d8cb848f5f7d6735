package widget

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/config"
	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// ViewState is the widget visibility state
type ViewState string

const (
	ViewClosed     ViewState = "closed"
	ViewOpen       ViewState = "open-widget"
	ViewFullscreen ViewState = "open-fullscreen"
)

// SessionControl is the slice of the session controller the state
// machine drives.
type SessionControl interface {
	StartChat(ctx context.Context) (*domain.Session, error)
	Active() bool
	MarkSeen(messageID string)
}

// Timeline is the read-side of the reconciler the state machine needs
type Timeline interface {
	UnreadAgentMessages() []domain.Message
}

// StateMachine owns open/closed/fullscreen transitions and the
// cross-frame notification protocol. Fullscreen only applies in
// compact (mobile) presentation mode.
type StateMachine struct {
	cfg     config.WidgetConfig
	logger  *zap.Logger
	session SessionControl
	tl      Timeline
	sounder *Sounder
	emit    HostEmitter

	mu             sync.Mutex
	view           ViewState
	hasUnseen      bool
	baselineHeight int
	keyboardOpen   bool
	keyboardTimer  *time.Timer
}

// NewStateMachine creates a closed widget. emit and sounder may be nil.
func NewStateMachine(
	cfg config.WidgetConfig,
	logger *zap.Logger,
	session SessionControl,
	tl Timeline,
	sounder *Sounder,
	emit HostEmitter,
) *StateMachine {
	return &StateMachine{
		cfg:     cfg,
		logger:  logger,
		session: session,
		tl:      tl,
		sounder: sounder,
		emit:    emit,
		view:    ViewClosed,
	}
}

// Toggle flips the widget between closed and open. Opening without an
// active session starts one; any user toggle counts as the gesture
// that unlocks notification sounds.
func (s *StateMachine) Toggle(ctx context.Context) error {
	if s.sounder != nil {
		s.sounder.Enable()
	}

	s.mu.Lock()
	closed := s.view == ViewClosed
	s.mu.Unlock()

	if !closed {
		s.close()
		return nil
	}
	return s.Open(ctx)
}

// Open brings the widget to its open state, clears the unseen flag and
// flushes read receipts for agent messages delivered while closed.
// Without an active session it also starts one.
func (s *StateMachine) Open(ctx context.Context) error {
	s.transitionOpen()

	s.mu.Lock()
	s.hasUnseen = false
	s.mu.Unlock()

	s.flushReadReceipts()
	if !s.session.Active() {
		if _, err := s.session.StartChat(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateMachine) transitionOpen() {
	s.mu.Lock()
	if s.cfg.CompactMode {
		s.view = ViewFullscreen
	} else {
		s.view = ViewOpen
	}
	s.mu.Unlock()

	s.logger.Debug("widget opened")
	s.notify(HostMessage{Type: HostChatOpened})
}

func (s *StateMachine) close() {
	s.mu.Lock()
	s.view = ViewClosed
	s.mu.Unlock()

	s.logger.Debug("widget closed")
	s.notify(HostMessage{Type: HostChatClosed})
}

// flushReadReceipts emits receipts for agent messages that were
// delivered while closed. Opening is the point where they count as
// seen.
func (s *StateMachine) flushReadReceipts() {
	for _, m := range s.tl.UnreadAgentMessages() {
		s.session.MarkSeen(m.ID)
	}
}

// HandleMessage reacts to a freshly-inserted timeline message. An
// agent message while closed with an active session flags unseen and
// auto-opens the widget; while open it is marked seen immediately.
func (s *StateMachine) HandleMessage(msg domain.Message) {
	if msg.SenderType != domain.SenderAgent {
		return
	}

	s.mu.Lock()
	closed := s.view == ViewClosed
	s.mu.Unlock()

	if closed {
		if !s.session.Active() {
			return
		}
		// Auto-open: the unseen flag stays set until the visitor
		// actually opens the widget.
		s.mu.Lock()
		s.hasUnseen = true
		s.mu.Unlock()
		if s.sounder != nil {
			s.sounder.Play()
		}
		s.transitionOpen()
		return
	}

	if s.sounder != nil {
		s.sounder.Play()
	}
	s.session.MarkSeen(msg.ID)
}

// SetBaselineHeight records the viewport height at session start. The
// keyboard heuristic compares later samples against it.
func (s *StateMachine) SetBaselineHeight(h int) {
	s.mu.Lock()
	s.baselineHeight = h
	s.mu.Unlock()
}

// ObserveViewportHeight feeds a viewport height sample into the
// keyboard heuristic. Samples are trailing-debounced; a reduction
// beyond the threshold is read as an on-screen keyboard opening. This
// is a heuristic, not a guaranteed signal, and only applies in
// compact mode.
func (s *StateMachine) ObserveViewportHeight(h int) {
	if !s.cfg.CompactMode {
		return
	}

	s.mu.Lock()
	if s.keyboardTimer != nil {
		s.keyboardTimer.Stop()
	}
	s.keyboardTimer = time.AfterFunc(s.cfg.KeyboardDebounce, func() {
		s.applyViewportHeight(h)
	})
	s.mu.Unlock()
}

func (s *StateMachine) applyViewportHeight(h int) {
	s.mu.Lock()
	open := s.baselineHeight > 0 && s.baselineHeight-h > s.cfg.KeyboardThreshold
	changed := open != s.keyboardOpen
	s.keyboardOpen = open
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Debug("keyboard state changed", zap.Bool("open", open), zap.Int("height", h))
	s.notify(HostMessage{Type: HostKeyboardState, IsKeyboardOpen: &open, ViewportHeight: h})
}

// HandleHostMessage applies an inbound message from the embedding page
func (s *StateMachine) HandleHostMessage(msg HostMessage) {
	switch msg.Type {
	case HostKeyboardState:
		if msg.ViewportHeight > 0 {
			s.ObserveViewportHeight(msg.ViewportHeight)
		}
	default:
		// The host page only sends keyboard notifications today.
	}
}

func (s *StateMachine) notify(msg HostMessage) {
	if s.emit != nil {
		s.emit(msg)
	}
}

// View returns the current visibility state
func (s *StateMachine) View() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// HasUnseenAgentMessage reports whether an agent message arrived while
// the widget was closed and has not been viewed yet.
func (s *StateMachine) HasUnseenAgentMessage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasUnseen
}

// KeyboardOpen reports the keyboard heuristic's current belief
func (s *StateMachine) KeyboardOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyboardOpen
}

// Close cancels any pending debounce timer
func (s *StateMachine) Close() {
	s.mu.Lock()
	if s.keyboardTimer != nil {
		s.keyboardTimer.Stop()
		s.keyboardTimer = nil
	}
	s.mu.Unlock()
}
