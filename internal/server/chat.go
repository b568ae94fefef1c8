package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/learnbot-go/internal/assistant"
	"github.com/54b3r/learnbot-go/internal/logging"
)

// handleChat handles POST /api/chat: one complete, non-streamed chat turn.
// A supplied conversation_id that does not exist is a 404; a blocked query is
// a 200 whose answer is the moderation advisory.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.responder.Respond(r.Context(), assistant.Request{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
	})
	if err != nil {
		if errors.Is(err, assistant.ErrNotFound) {
			s.metrics.chatRequestsTotal.WithLabelValues("not_found").Inc()
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		s.metrics.chatRequestsTotal.WithLabelValues("error").Inc()
		log.Error("chat request failed", slog.Any("error", err))
		http.Error(w, "chat request failed", http.StatusInternalServerError)
		return
	}

	outcome := "ok"
	if res.Blocked {
		outcome = "blocked"
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(chatResponse{
		Answer:         res.Answer,
		MessageID:      res.MessageID,
		ConversationID: res.ConversationID,
		ResponseID:     res.ResponseID,
	}); err != nil {
		log.Error("chat encode error", slog.Any("error", err))
	}
}

// decodeChatRequest parses and validates the shared chat request body,
// writing a 400 response itself when the body is unusable.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return chatRequest{}, false
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return chatRequest{}, false
	}
	return req, true
}
