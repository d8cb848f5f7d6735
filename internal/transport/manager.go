package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/config"
	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// FrameHandler receives every inbound frame except heartbeat
// acknowledgements, which the manager consumes silently.
type FrameHandler func(domain.Frame)

// StatusHandler observes connection status transitions. The manager is
// the single writer of the status value.
type StatusHandler func(domain.ConnectionStatus)

// Manager owns the one persistent websocket connection: connect,
// heartbeat, reconnect with exponential backoff, clean shutdown.
// It carries no business logic; frames pass through unmodified.
type Manager struct {
	cfg      config.TransportConfig
	logger   *zap.Logger
	onFrame  FrameHandler
	onStatus StatusHandler

	mu          sync.Mutex
	conn        *websocket.Conn
	connecting  bool
	intentional bool
	attempts    int
	endpoint    string
	reconnect   *time.Timer
	stopBeat    chan struct{}
}

// NewManager creates a transport manager. Handlers must be non-nil.
func NewManager(cfg config.TransportConfig, logger *zap.Logger, onFrame FrameHandler, onStatus StatusHandler) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		onFrame:  onFrame,
		onStatus: onStatus,
	}
}

// Connect opens the persistent connection to endpoint. It is a no-op
// while a connect is in flight or a connection is already open.
func (m *Manager) Connect(endpoint string) {
	m.mu.Lock()
	if m.connecting || m.conn != nil {
		m.mu.Unlock()
		m.logger.Debug("connect skipped, already connecting or connected")
		return
	}
	m.connecting = true
	m.intentional = false
	m.endpoint = endpoint
	m.mu.Unlock()

	m.onStatus(domain.StatusConnecting)
	go m.dial(endpoint)
}

func (m *Manager) dial(endpoint string) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}

	conn, _, err := dialer.Dial(endpoint, nil)

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		intentional := m.intentional
		m.mu.Unlock()
		m.logger.Warn("websocket dial failed", zap.String("endpoint", endpoint), zap.Error(err))
		m.onStatus(domain.StatusDisconnected)
		if !intentional {
			m.scheduleReconnect()
		}
		return
	}
	if m.intentional {
		// Disconnect raced the dial; drop the fresh connection.
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.attempts = 0
	stop := make(chan struct{})
	m.stopBeat = stop
	m.mu.Unlock()

	m.logger.Info("websocket connected", zap.String("endpoint", endpoint))
	m.onStatus(domain.StatusConnected)

	go m.heartbeatLoop(conn, stop)
	m.readLoop(conn)
}

// readLoop forwards inbound frames until the connection dies
func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(conn, err)
			return
		}

		frame, perr := domain.ParseFrame(data)
		if perr != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(perr))
			continue
		}
		if frame.Type == domain.FramePong {
			// Heartbeat ack, never surfaced.
			continue
		}
		m.onFrame(frame)
	}
}

func (m *Manager) heartbeatLoop(conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Send(domain.PingFrame())
		}
	}
}

func (m *Manager) handleClose(conn *websocket.Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.stopHeartbeatLocked()
	intentional := m.intentional
	m.mu.Unlock()

	conn.Close()
	m.logger.Info("websocket closed", zap.Error(err), zap.Bool("intentional", intentional))
	m.onStatus(domain.StatusDisconnected)

	if intentional {
		return
	}
	m.scheduleReconnect()
}

// scheduleReconnect arms the single reconnect timer with exponential
// backoff: reconnect_base * 2^attempt.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.intentional {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.mu.Unlock()
		m.logger.Error("reconnect budget exhausted", zap.Int("attempts", attempts))
		m.onStatus(domain.StatusError)
		return
	}
	defer m.mu.Unlock()
	delay := m.cfg.ReconnectBase << uint(m.attempts)
	m.attempts++
	if m.reconnect != nil {
		m.reconnect.Stop()
	}
	endpoint := m.endpoint
	m.logger.Info("scheduling reconnect",
		zap.Duration("delay", delay),
		zap.Int("attempt", m.attempts),
	)
	m.reconnect = time.AfterFunc(delay, func() {
		m.Connect(endpoint)
	})
}

// Send writes a frame when the connection is open. Frames sent while
// disconnected are dropped with a warning, never an error.
func (m *Manager) Send(frame domain.Frame) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.logger.Warn("dropping frame, transport not connected", zap.String("type", frame.Type))
		return
	}

	m.mu.Lock()
	err := conn.WriteJSON(frame)
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("websocket write failed", zap.String("type", frame.Type), zap.Error(err))
	}
}

// Disconnect closes the connection intentionally: no reconnect will
// follow, pending timers are cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	m.connecting = false
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	m.attempts = 0
	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		)
		conn.Close()
		m.onStatus(domain.StatusDisconnected)
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.stopBeat != nil {
		close(m.stopBeat)
		m.stopBeat = nil
	}
}

// IsConnected reports whether the connection is currently open
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}
