package devserver

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

func newWSServer(t *testing.T) (*httptest.Server, *Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := NewStore(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(SetupRouter(store, zap.NewNop(), RouterConfig{AllowOrigins: []string{"*"}}))
	t.Cleanup(srv.Close)
	return srv, store
}

func dialSession(t *testing.T, srv *httptest.Server, sess *domain.Session) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/chat/" + sess.SessionID + "/visitor/" + sess.VisitorID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame domain.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestServeWSSendsConnectedFrame(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	conn := dialSession(t, srv, sess)
	frame := readFrame(t, conn)
	assert.Equal(t, domain.FrameChatConnected, frame.Type)
}

func TestServeWSRejectsUnknownSession(t *testing.T) {
	srv, _ := newWSServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/nope/visitor/nobody"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServeWSRejectsVisitorMismatch(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/chat/" + sess.SessionID + "/visitor/someone-else"
	_, _, err = websocket.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
}

func TestChatMessageEchoedWithServerStamp(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	conn := dialSession(t, srv, sess)
	readFrame(t, conn) // chat_connected

	out := domain.ChatMessageFrame("client-id-1", "hello there")
	require.NoError(t, conn.WriteJSON(out))

	echo := readFrame(t, conn)
	assert.Equal(t, domain.FrameChatMessage, echo.Type)
	assert.Equal(t, "hello there", echo.Message)
	assert.Equal(t, "client-id-1", echo.MessageID)
	assert.NotEmpty(t, echo.Timestamp)

	msgs, err := store.GetMessages(sess.SessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Text)
}

func TestPingAnsweredWithPong(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	conn := dialSession(t, srv, sess)
	readFrame(t, conn) // chat_connected

	require.NoError(t, conn.WriteJSON(domain.PingFrame()))
	frame := readFrame(t, conn)
	assert.Equal(t, domain.FramePong, frame.Type)
}

func TestTypingRelayedToSession(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	conn := dialSession(t, srv, sess)
	readFrame(t, conn) // chat_connected

	require.NoError(t, conn.WriteJSON(domain.TypingFrame(true)))
	frame := readFrame(t, conn)
	assert.Equal(t, domain.FrameTyping, frame.Type)
	require.NotNil(t, frame.IsTyping)
	assert.True(t, *frame.IsTyping)
}

func TestCloseSessionMarksClosedAndAnnouncesDeparture(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	conn := dialSession(t, srv, sess)
	readFrame(t, conn) // chat_connected

	require.NoError(t, conn.WriteJSON(domain.CloseSessionFrame(time.Now())))

	frame := readFrame(t, conn)
	assert.Equal(t, domain.FrameChatMessage, frame.Type)
	assert.Equal(t, string(domain.SenderSystem), frame.SenderType)
	assert.Equal(t, string(domain.SubtypeVisitorLeft), frame.Subtype)

	// Transport stays open after the cooperative shutdown.
	require.NoError(t, conn.WriteJSON(domain.PingFrame()))
	pong := readFrame(t, conn)
	assert.Equal(t, domain.FramePong, pong.Type)
}

func TestMalformedFrameDroppedConnectionSurvives(t *testing.T) {
	srv, store := newWSServer(t)
	sess, err := store.CreateSession("ck_test", domain.VisitorMetadata{})
	require.NoError(t, err)

	conn := dialSession(t, srv, sess)
	readFrame(t, conn) // chat_connected

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(domain.PingFrame()))

	frame := readFrame(t, conn)
	assert.Equal(t, domain.FramePong, frame.Type)
}
