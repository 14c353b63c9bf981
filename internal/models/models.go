package models

import (
	"encoding/json"
	"time"
)

// User is the identity the backend reports for an authenticated token.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// ChatMessage is the single message shape used by the history endpoint and
// the realtime channel.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalJSON accepts the older {sender, text} payload as well, mapping
// text onto Content when no content field is present. Timestamps without a
// zone are read as UTC, and one that cannot be parsed is left zero rather
// than failing the whole message.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        int64           `json:"id"`
		Sender    string          `json:"sender"`
		Content   *string         `json:"content"`
		Text      string          `json:"text"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID = raw.ID
	m.Sender = raw.Sender
	m.Timestamp = parseTimestamp(raw.Timestamp)
	if raw.Content != nil {
		m.Content = *raw.Content
	} else {
		m.Content = raw.Text
	}
	return nil
}

// timestampLayouts are tried in order. Some backends serialize naive
// datetimes with no offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw json.RawMessage) time.Time {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil || s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

type Credentials struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by the login and register endpoints.
type AuthResponse struct {
	Token    string `json:"token"`
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// SendRequest is the body of POST /api/chat/send.
type SendRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Event is the envelope of every realtime frame.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

const EventMessage = "message"
