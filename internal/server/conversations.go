package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/54b3r/learnbot-go/internal/logging"
	"github.com/54b3r/learnbot-go/internal/store"
)

// handleConversations handles GET /api/conversations: all conversations,
// most recently active first.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	convs, err := s.conversations.List(r.Context())
	if err != nil {
		log.Error("conversation list failed", slog.Any("error", err))
		http.Error(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]store.Conversation{
		"conversations": convs,
	}); err != nil {
		log.Error("conversation list encode error", slog.Any("error", err))
	}
}

// handleConversationMessages handles GET /api/conversations/{id}/messages:
// the full message history of one conversation in append order.
func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	id := r.PathValue("id")

	if _, err := s.conversations.Get(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		log.Error("conversation lookup failed", slog.Any("error", err))
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	msgs, err := s.conversations.ListMessages(r.Context(), id)
	if err != nil {
		log.Error("message list failed",
			slog.String("conversation_id", id),
			slog.Any("error", err),
		)
		http.Error(w, "failed to list messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string][]store.Message{
		"messages": msgs,
	}); err != nil {
		log.Error("message list encode error", slog.Any("error", err))
	}
}
