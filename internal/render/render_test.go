package render

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/pookietalk/pookie/internal/models"
)

func TestMessage(t *testing.T) {
	r := New("alice@example.com", 60)
	r.Loc = time.UTC
	ts := time.Date(2025, 5, 4, 13, 14, 15, 0, time.UTC)

	own := models.ChatMessage{Sender: "alice@example.com", Content: "hi bob", Timestamp: ts}
	other := models.ChatMessage{Sender: "bob@example.com", Content: "hey", Timestamp: ts}

	assert.True(t, r.IsOwn(own))
	assert.False(t, r.IsOwn(other))

	out := r.Message(own)
	assert.Contains(t, out, "hi bob")
	assert.Contains(t, out, "13:14:15")
	assert.Equal(t, 60, lipgloss.Width(out), "own messages are padded to the right edge")
	assert.NotContains(t, out, "alice@example.com")

	out = r.Message(other)
	assert.Contains(t, out, "bob@example.com")
	assert.Contains(t, out, "hey")
}

func TestMessagesKeepsOrder(t *testing.T) {
	r := New("", 40)
	out := r.Messages([]models.ChatMessage{{Sender: "x", Content: "first"}, {Sender: "y", Content: "second"}})
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestProfile(t *testing.T) {
	out := New("", 40).Profile(models.User{ID: 7, Username: "Alice", Email: "alice@example.com"})
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "7")
}
