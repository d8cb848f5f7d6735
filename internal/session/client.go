package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hassan7865/Hailouchat-Widget/internal/domain"
)

// APIClient talks to the backend session endpoints over plain HTTP:
// handshake, session rating, visitor contact details.
type APIClient struct {
	base      string
	clientKey string
	logger    *zap.Logger
	http      *http.Client
}

// NewAPIClient creates a client for the backend rooted at base
func NewAPIClient(base, clientKey string, logger *zap.Logger) *APIClient {
	return &APIClient{
		base:      base,
		clientKey: clientKey,
		logger:    logger,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// InitiateChat performs the session handshake and returns the
// server-assigned identity.
func (c *APIClient) InitiateChat(ctx context.Context, meta domain.VisitorMetadata) (*domain.Session, error) {
	req := domain.InitiateChatRequest{
		ClientKey:       c.clientKey,
		VisitorMetadata: meta,
	}

	var resp domain.InitiateChatResponse
	if err := c.post(ctx, "/chat/initiate-chat", req, &resp); err != nil {
		return nil, fmt.Errorf("initiate chat: %w", err)
	}
	if resp.VisitorID == "" || resp.SessionID == "" {
		return nil, fmt.Errorf("initiate chat: %w", domain.ErrInvalidRequest)
	}

	return &domain.Session{
		VisitorID: resp.VisitorID,
		SessionID: resp.SessionID,
		IPAddress: meta.IPAddress,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// RateSession submits a thumbs_up/thumbs_down rating for the session
func (c *APIClient) RateSession(ctx context.Context, sessionID, rating, note string) error {
	req := domain.SessionRatingRequest{
		ClientKey: c.clientKey,
		SessionID: sessionID,
		Rating:    rating,
		Note:      note,
	}
	if err := c.post(ctx, "/chat/session-rating", req, nil); err != nil {
		return fmt.Errorf("rate session: %w", err)
	}
	return nil
}

// SaveContactDetails stores the name and email the visitor entered
func (c *APIClient) SaveContactDetails(ctx context.Context, ipAddress, firstName, email string) error {
	req := domain.VisitorDetailsRequest{
		ClientKey: c.clientKey,
		IPAddress: ipAddress,
		FirstName: firstName,
		Email:     email,
	}
	if err := c.post(ctx, "/chat/visitor-details/widget", req, nil); err != nil {
		return fmt.Errorf("save contact details: %w", err)
	}
	return nil
}

func (c *APIClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
