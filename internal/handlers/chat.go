package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pookietalk/pookie/internal/models"
	"github.com/pookietalk/pookie/internal/store"
)

const DefaultHistoryLimit = 200

// Broadcaster pushes a stored message to live clients. *ws.Hub satisfies it.
type Broadcaster interface {
	Broadcast(msg models.ChatMessage)
}

type ChatHandler struct {
	Store        store.Store
	Hub          Broadcaster
	HistoryLimit int
	Logger       *zap.Logger
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := h.HistoryLimit
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	messages, err := h.Store.GetMessages(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// Send stores the message and pushes it to every connected client,
// including the sender's own channel.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Sender) == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "sender and text are required", http.StatusBadRequest)
		return
	}

	msg, err := h.Store.SaveMessage(req.Sender, req.Text)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("save message", zap.Error(err))
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.Hub != nil {
		h.Hub.Broadcast(*msg)
	}

	writeJSON(w, http.StatusOK, msg)
}
