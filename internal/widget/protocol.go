package widget

import (
	"encoding/json"
	"fmt"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// Cross-frame message types exchanged with the embedding page.
const (
	HostChatOpened    = "CHAT_OPENED"
	HostChatClosed    = "CHAT_CLOSED"
	HostKeyboardState = "KEYBOARD_STATE_CHANGE"
)

// HostMessage is the tagged union of the widget/host-page protocol
type HostMessage struct {
	Type           string `json:"type"`
	IsKeyboardOpen *bool  `json:"isKeyboardOpen,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
}

// HostEmitter delivers an outbound host message to the embedding page
type HostEmitter func(HostMessage)

// Codec validates and decodes messages at the cross-frame boundary.
// Messages from origins outside the allow-list are rejected before
// any payload processing.
type Codec struct {
	allowedOrigins []string
}

// NewCodec creates a codec with the given origin allow-list. "*"
// allows any origin.
func NewCodec(allowedOrigins []string) *Codec {
	return &Codec{allowedOrigins: allowedOrigins}
}

// Decode checks the origin, parses the payload and validates its tag
func (c *Codec) Decode(origin string, payload []byte) (HostMessage, error) {
	if !c.originAllowed(origin) {
		return HostMessage{}, fmt.Errorf("%w: %s", domain.ErrUntrustedOrigin, origin)
	}

	var msg HostMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return HostMessage{}, fmt.Errorf("decode host message: %w", err)
	}

	switch msg.Type {
	case HostChatOpened, HostChatClosed, HostKeyboardState:
		return msg, nil
	default:
		return HostMessage{}, fmt.Errorf("%w: unknown host message type %q", domain.ErrInvalidFrame, msg.Type)
	}
}

// Encode serializes an outbound host message
func (c *Codec) Encode(msg HostMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Codec) originAllowed(origin string) bool {
	for _, o := range c.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
