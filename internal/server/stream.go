package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/learnbot-go/internal/assistant"
	"github.com/54b3r/learnbot-go/internal/logging"
)

// handleChatStream handles POST /api/chat/stream: one chat turn delivered as
// Server-Sent Events. The frame sequence is a metadata frame
// {conversation_id, user_message_id}, non-empty content frames
// {content, done:false}, and one terminal frame
// {content:"", done:true, message_id, response_id}. When the output check
// rejects the generated answer, a {content, done:false, replace:true} frame
// supersedes all prior content frames. A pipeline failure after streaming has
// begun is reported as an in-band {error} frame; the client must treat
// conversation state as unknown and re-fetch messages.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := &sseSink{w: w, flusher: flusher}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()
	start := time.Now()

	res, err := s.responder.RespondStream(r.Context(), assistant.Request{
		Query:          req.Query,
		ConversationID: req.ConversationID,
		TopK:           req.TopK,
	}, sink)
	if err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues("error").Inc()
		log.Error("chat stream failed", slog.Any("error", err))
		// SSE has already started; the error travels in-band.
		sink.Error(err)
		return
	}

	outcome := "ok"
	if res.Blocked {
		outcome = "blocked"
	}
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// sseSink adapts assistant events onto SSE data frames. Each frame is one
// JSON object on a single "data:" line, flushed immediately so tokens reach
// the client as they are generated.
type sseSink struct {
	// w is the underlying response writer.
	w http.ResponseWriter
	// flusher flushes buffered data to the client after each frame.
	flusher http.Flusher
}

// send marshals v and writes it as one SSE data frame.
func (s *sseSink) send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("server: marshal sse frame: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("server: write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Metadata emits the stream's opening frame.
func (s *sseSink) Metadata(conversationID, userMessageID string) error {
	return s.send(map[string]any{
		"conversation_id": conversationID,
		"user_message_id": userMessageID,
	})
}

// Delta emits one content frame. Empty fragments are dropped here as a
// second line of defence; the assistant already suppresses them.
func (s *sseSink) Delta(content string) error {
	if content == "" {
		return nil
	}
	return s.send(map[string]any{
		"content": content,
		"done":    false,
	})
}

// Replace emits a frame whose content supersedes every delta frame sent so
// far. Clients discard the streamed prefix and render this content instead.
func (s *sseSink) Replace(content string) error {
	return s.send(map[string]any{
		"content": content,
		"done":    false,
		"replace": true,
	})
}

// Done emits the terminal frame.
func (s *sseSink) Done(messageID, responseID string) error {
	return s.send(map[string]any{
		"content":     "",
		"done":        true,
		"message_id":  messageID,
		"response_id": responseID,
	})
}

// Error emits an in-band error frame. Write failures are ignored: if the
// client is gone there is no one left to tell.
func (s *sseSink) Error(err error) {
	_ = s.send(map[string]any{
		"error": err.Error(),
	})
}
