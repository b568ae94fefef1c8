package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/learnbot-go/internal/assistant"
	"github.com/54b3r/learnbot-go/internal/ingestion"
	"github.com/54b3r/learnbot-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for streaming responses.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// MaxUploadBytes caps the accepted upload size (default: 20 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	// Health, readiness, and metrics endpoints are always exempt.
	APIKey string
	// MetricsRegistry receives the server's metric registrations. If nil a
	// fresh registry is created, keeping unit tests hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. If nil it defaults to the fresh
	// registry created alongside MetricsRegistry.
	MetricsGatherer prometheus.Gatherer
}

// responder is the interface the chat handlers call to answer a turn.
// *assistant.Assistant satisfies it; tests inject a fake.
type responder interface {
	Respond(ctx context.Context, req assistant.Request) (assistant.Result, error)
	RespondStream(ctx context.Context, req assistant.Request, sink assistant.EventSink) (assistant.Result, error)
}

// ingester is the interface the upload handler calls to index a document.
// *ingestion.Pipeline satisfies it; tests inject a fake.
type ingester interface {
	Ingest(ctx context.Context, content []byte, filename string, fileType ingestion.FileType) (int, error)
}

// conversationReader is the read-only slice of the conversation store the
// listing endpoints need.
type conversationReader interface {
	Get(ctx context.Context, id string) (store.Conversation, error)
	List(ctx context.Context) ([]store.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.Message, error)
}

// Server is the HTTP server exposing the chat, upload, and conversation API.
type Server struct {
	// responder answers chat turns.
	responder responder
	// ingester indexes uploaded documents.
	ingester ingester
	// conversations serves the conversation listing endpoints.
	conversations conversationReader
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this instance's Prometheus metrics.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat and /api/chat/stream.
type chatRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// TopK is the number of document chunks to retrieve (default 5).
	TopK int `json:"top_k"`
	// ConversationID threads the turn into an existing conversation.
	ConversationID string `json:"conversation_id,omitempty"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	// Answer is the final moderated answer text.
	Answer string `json:"answer"`
	// MessageID is the persisted assistant message ID.
	MessageID string `json:"message_id"`
	// ConversationID is the conversation the turn landed in.
	ConversationID string `json:"conversation_id"`
	// ResponseID is the continuation handle, empty for blocked turns.
	ResponseID string `json:"response_id"`
}

// uploadResponse is the JSON response for POST /api/upload.
type uploadResponse struct {
	// Message is a human-readable processing summary.
	Message string `json:"message"`
	// FileID identifies the processed file (its filename).
	FileID string `json:"file_id"`
	// ChunksAdded is the number of chunks indexed from the file.
	ChunksAdded int `json:"chunks_added"`
}
