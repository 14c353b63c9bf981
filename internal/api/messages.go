package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pookietalk/pookie/internal/models"
)

// TokenSource yields the current bearer token, or "" when signed out.
type TokenSource interface {
	Token() string
}

// MessageGateway fetches history and submits new messages.
type MessageGateway struct {
	client *Client
	tokens TokenSource
}

// NewMessageGateway builds a gateway; tokens may be nil for anonymous calls.
func NewMessageGateway(c *Client, tokens TokenSource) *MessageGateway {
	return &MessageGateway{client: c, tokens: tokens}
}

func (g *MessageGateway) token() string {
	if g.tokens == nil {
		return ""
	}
	return g.tokens.Token()
}

// History returns the message backlog in server order. On any failure it
// returns an empty, non-nil slice together with a *MessageError.
func (g *MessageGateway) History(ctx context.Context) ([]models.ChatMessage, error) {
	const op = "fetch history"
	empty := []models.ChatMessage{}

	resp, err := g.client.do(ctx, http.MethodGet, PathHistory, g.token(), nil)
	if err != nil {
		return empty, &MessageError{Op: op, Err: err}
	}
	if !resp.ok() {
		return empty, &MessageError{Op: op, Status: resp.status}
	}

	var msgs []models.ChatMessage
	if err := json.Unmarshal(resp.body, &msgs); err != nil {
		return empty, &MessageError{Op: op, Status: resp.status, Err: err}
	}
	if msgs == nil {
		msgs = empty
	}
	return msgs, nil
}

// Send submits a message. It does not wait for the message to come back over
// the realtime channel.
func (g *MessageGateway) Send(ctx context.Context, sender, content string) error {
	const op = "send message"
	resp, err := g.client.do(ctx, http.MethodPost, PathSend, g.token(), models.SendRequest{Sender: sender, Text: content})
	if err != nil {
		g.client.Logger.Warn("send failed", zap.Error(err))
		return &MessageError{Op: op, Err: err}
	}
	if !resp.ok() {
		g.client.Logger.Warn("send rejected", zap.Int("status", resp.status), zap.String("body", resp.text()))
		return &MessageError{Op: op, Status: resp.status}
	}
	return nil
}
