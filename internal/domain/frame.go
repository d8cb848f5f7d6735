package domain

import (
	"encoding/json"
	"time"
)

// Wire frame types exchanged over the persistent connection.
const (
	FrameChatMessage   = "chat_message"
	FrameMessage       = "message" // legacy alias for chat_message
	FrameTyping        = "typing_indicator"
	FrameMessageSeen   = "message_seen"
	FrameChatConnected = "chat_connected"
	FrameCloseSession  = "close_session"
	FramePing          = "ping"
	FramePong          = "pong"
)

// Frame is the tagged union carried over the websocket, both
// directions. Unused fields are omitted on the wire.
type Frame struct {
	Type       string      `json:"type"`
	SenderType string      `json:"sender_type,omitempty"`
	SenderID   string      `json:"sender_id,omitempty"`
	SenderName string      `json:"sender_name,omitempty"`
	Message    string      `json:"message,omitempty"`
	MessageID  string      `json:"message_id,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
	IsTyping   *bool       `json:"is_typing,omitempty"`
	Visibility string      `json:"visibility,omitempty"`
	Subtype    string      `json:"subtype,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// ParseFrame decodes a raw wire payload
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, ErrInvalidFrame
	}
	return f, nil
}

// Time parses the frame timestamp, falling back to now when absent or
// malformed. Timestamps are RFC 3339 on the wire.
func (f Frame) Time() time.Time {
	if f.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.Timestamp); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, f.Timestamp); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// ChatMessageFrame builds an outbound visitor message
func ChatMessageFrame(messageID, text string) Frame {
	return Frame{Type: FrameChatMessage, Message: text, MessageID: messageID}
}

// TypingFrame builds an outbound typing indicator
func TypingFrame(isTyping bool) Frame {
	return Frame{Type: FrameTyping, IsTyping: &isTyping}
}

// MessageSeenFrame builds an outbound read receipt
func MessageSeenFrame(messageID string, at time.Time) Frame {
	return Frame{Type: FrameMessageSeen, MessageID: messageID, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

// CloseSessionFrame builds the cooperative session-end control frame
func CloseSessionFrame(at time.Time) Frame {
	return Frame{Type: FrameCloseSession, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

// PingFrame is the heartbeat keepalive
func PingFrame() Frame {
	return Frame{Type: FramePing}
}
