package domain

import "time"

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderAgent   SenderType = "agent"
	SenderSystem  SenderType = "system"
)

// DeliveryStatus tracks how far a message has progressed toward the
// other side. Transitions are monotonic: pending -> delivered -> read.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// MessageKind classifies a timeline entry
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindAttachment MessageKind = "attachment"
	KindSystem     MessageKind = "system"
)

// Visibility controls whether a message is rendered. The server may
// retroactively hide a message it previously delivered.
type Visibility string

const (
	VisibilityVisible Visibility = "visible"
	VisibilityHidden  Visibility = "hidden"
)

// SystemSubtype refines system messages
type SystemSubtype string

const (
	SubtypeChatStarted   SystemSubtype = "chat_started"
	SubtypeRatingRequest SystemSubtype = "rating_request"
	SubtypeVisitorJoined SystemSubtype = "visitor_joined"
	SubtypeVisitorLeft   SystemSubtype = "visitor_left"
)

// Attachment describes a file carried by a message
type Attachment struct {
	FileName string `json:"file_name"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Message is one entry of the chat timeline. Only Status and
// Visibility mutate after insertion.
type Message struct {
	ID         string         `json:"id"`
	SenderType SenderType     `json:"sender_type"`
	SenderID   string         `json:"sender_id,omitempty"`
	SenderName string         `json:"sender_name,omitempty"`
	Text       string         `json:"message"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     DeliveryStatus `json:"status,omitempty"`
	Kind       MessageKind    `json:"kind"`
	Subtype    SystemSubtype  `json:"subtype,omitempty"`
	Visibility Visibility     `json:"visibility"`
}

// Session is the server-assigned identity scoping one conversation
type Session struct {
	VisitorID string    `json:"visitor_id"`
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// VisitorMetadata is the best-effort environment snapshot sent with
// the handshake. Every field is optional; lookups that fail are
// simply omitted.
type VisitorMetadata struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	PageURL    string `json:"page_url,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	PageTitle  string `json:"page_title,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// InitiateChatRequest is the session handshake request body
type InitiateChatRequest struct {
	ClientKey       string          `json:"client_key"`
	VisitorMetadata VisitorMetadata `json:"visitor_metadata"`
}

// InitiateChatResponse is the session handshake response body
type InitiateChatResponse struct {
	VisitorID string `json:"visitor_id"`
	SessionID string `json:"session_id"`
}

// SessionRatingRequest submits a thumbs-up/down rating for a session
type SessionRatingRequest struct {
	ClientKey string `json:"client_key"`
	SessionID string `json:"session_id"`
	Rating    string `json:"rating"`
	Note      string `json:"note,omitempty"`
}

// VisitorDetailsRequest saves contact details the visitor entered
type VisitorDetailsRequest struct {
	ClientKey string `json:"client_key"`
	IPAddress string `json:"ip_address,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Email     string `json:"email,omitempty"`
}
