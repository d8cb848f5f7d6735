package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/config"
	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testConfig() config.TransportConfig {
	return config.TransportConfig{
		HeartbeatInterval:    50 * time.Millisecond,
		ReconnectBase:        100 * time.Millisecond,
		MaxReconnectAttempts: 3,
		HandshakeTimeout:     2 * time.Second,
	}
}

// statusRecorder collects status transitions thread-safely
type statusRecorder struct {
	mu       sync.Mutex
	statuses []domain.ConnectionStatus
}

func (s *statusRecorder) record(st domain.ConnectionStatus) {
	s.mu.Lock()
	s.statuses = append(s.statuses, st)
	s.mu.Unlock()
}

func (s *statusRecorder) last() domain.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

func (s *statusRecorder) count(st domain.ConnectionStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.statuses {
		if v == st {
			n++
		}
	}
	return n
}

func (s *statusRecorder) waitFor(t *testing.T, st domain.ConnectionStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.last() == st {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status never became %s, last was %s", st, s.last())
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectAndReceiveFrame(t *testing.T) {
	frames := make(chan domain.Frame, 10)
	rec := &statusRecorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(domain.Frame{
			Type: domain.FrameChatMessage, Message: "hi", MessageID: "m1", SenderType: "agent",
		}))
		// Keep the connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(testConfig(), zap.NewNop(), func(f domain.Frame) { frames <- f }, rec.record)
	m.Connect(wsURL(srv))
	defer m.Disconnect()

	rec.waitFor(t, domain.StatusConnected, 2*time.Second)

	select {
	case f := <-frames:
		assert.Equal(t, "m1", f.MessageID)
		assert.Equal(t, "hi", f.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestHeartbeatAckConsumedSilently(t *testing.T) {
	frames := make(chan domain.Frame, 10)
	rec := &statusRecorder{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			var f domain.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == domain.FramePing {
				_ = conn.WriteJSON(domain.Frame{Type: domain.FramePong})
			}
		}
	}))
	defer srv.Close()

	m := NewManager(testConfig(), zap.NewNop(), func(f domain.Frame) { frames <- f }, rec.record)
	m.Connect(wsURL(srv))
	defer m.Disconnect()

	rec.waitFor(t, domain.StatusConnected, 2*time.Second)

	// Let a few heartbeat cycles run; pongs must never surface.
	time.Sleep(200 * time.Millisecond)
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame surfaced: %s", f.Type)
	default:
	}
}

func TestReconnectBackoffThenError(t *testing.T) {
	rec := &statusRecorder{}
	var mu sync.Mutex
	var dialTimes []time.Time

	// A successful open resets the attempt counter, so exhaustion is
	// only observable when the dial itself keeps failing.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dialTimes = append(dialTimes, time.Now())
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewManager(testConfig(), zap.NewNop(), func(domain.Frame) {}, rec.record)
	m.Connect(wsURL(srv))

	rec.waitFor(t, domain.StatusError, 5*time.Second)

	mu.Lock()
	attempts := len(dialTimes)
	var gaps []time.Duration
	for i := 1; i < len(dialTimes); i++ {
		gaps = append(gaps, dialTimes[i].Sub(dialTimes[i-1]))
	}
	mu.Unlock()

	// Initial connect plus MaxReconnectAttempts retries.
	assert.Equal(t, 4, attempts)
	// Backoff strictly increases: 100ms, 200ms, 400ms.
	require.Len(t, gaps, 3)
	assert.Greater(t, gaps[1], gaps[0])
	assert.Greater(t, gaps[2], gaps[1])

	// Terminal: no further attempts after error.
	time.Sleep(600 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, attempts, len(dialTimes))
	mu.Unlock()
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	rec := &statusRecorder{}
	var mu sync.Mutex
	dials := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(testConfig(), zap.NewNop(), func(domain.Frame) {}, rec.record)
	m.Connect(wsURL(srv))
	rec.waitFor(t, domain.StatusConnected, 2*time.Second)

	m.Disconnect()
	rec.waitFor(t, domain.StatusDisconnected, 2*time.Second)

	// Far longer than the first backoff delay.
	time.Sleep(400 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()
	assert.Zero(t, rec.count(domain.StatusError))
}

func TestConnectIsIdempotentWhileOpen(t *testing.T) {
	rec := &statusRecorder{}
	var mu sync.Mutex
	dials := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	m := NewManager(testConfig(), zap.NewNop(), func(domain.Frame) {}, rec.record)
	m.Connect(wsURL(srv))
	rec.waitFor(t, domain.StatusConnected, 2*time.Second)

	m.Connect(wsURL(srv))
	m.Connect(wsURL(srv))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, dials)
	mu.Unlock()
	m.Disconnect()
}

func TestSendWhileDisconnectedDropsSilently(t *testing.T) {
	m := NewManager(testConfig(), zap.NewNop(), func(domain.Frame) {}, func(domain.ConnectionStatus) {})
	assert.NotPanics(t, func() {
		m.Send(domain.ChatMessageFrame("m1", "hello"))
	})
}
