// Package assistant implements the response pipeline: moderate the query,
// embed it, retrieve relevant document chunks, assemble context and history,
// generate a threaded answer (batch or streamed), moderate the output, and
// persist the turn. The HTTP layer calls Respond and RespondStream; everything
// the pipeline touches is injected through interfaces so tests can substitute
// fakes for every collaborator.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/learnbot-go/internal/llm"
	"github.com/54b3r/learnbot-go/internal/logging"
	"github.com/54b3r/learnbot-go/internal/rag"
	"github.com/54b3r/learnbot-go/internal/safety"
	"github.com/54b3r/learnbot-go/internal/store"
)

// DefaultTopK is the number of nearest-neighbour matches retrieved when the
// caller does not specify one.
const DefaultTopK = 5

// historyDepth is the number of recent messages rendered into the threading
// transcript on the streaming path.
const historyDepth = 5

// titleLimit is the number of query characters used for an auto-created
// conversation title before the ellipsis is appended.
const titleLimit = 50

// Request is one chat turn to answer.
type Request struct {
	// Query is the user's question.
	Query string

	// ConversationID threads this turn into an existing conversation. Empty
	// starts a new conversation. On the non-streaming path a supplied ID must
	// exist; on the streaming path a stale ID starts fresh.
	ConversationID string

	// TopK is the number of document chunks to retrieve. Zero or negative
	// means DefaultTopK.
	TopK int

	// Filter optionally restricts retrieval by equality on metadata fields.
	Filter map[string]string
}

// Result is the completed turn.
type Result struct {
	// Answer is the final answer text shown to the user. On a block this is
	// the gate's advisory message.
	Answer string

	// MessageID is the persisted assistant message's ID.
	MessageID string

	// ConversationID is the conversation this turn landed in.
	ConversationID string

	// ResponseID is the continuation handle for the next turn. Empty when the
	// query was blocked.
	ResponseID string

	// Blocked reports that the input gate rejected the query. A blocked turn
	// is a normal outcome, not an error.
	Blocked bool
}

// Config holds the collaborators an Assistant is built from.
type Config struct {
	// Gate moderates queries and answers.
	Gate safety.Gate

	// Embedder converts the query to a vector for retrieval.
	Embedder rag.Embedder

	// Index answers nearest-neighbour queries over ingested chunks.
	Index rag.VectorStore

	// Generator produces answers from query, context, and history.
	Generator llm.Generator

	// Store persists conversations and messages.
	Store store.ConversationStore
}

// Assistant drives the response pipeline.
type Assistant struct {
	gate      safety.Gate
	embedder  rag.Embedder
	index     rag.VectorStore
	generator llm.Generator
	store     store.ConversationStore
}

// New constructs an Assistant, rejecting a nil collaborator up front so
// misconfiguration fails at startup rather than on the first request.
func New(cfg *Config) (*Assistant, error) {
	switch {
	case cfg.Gate == nil:
		return nil, fmt.Errorf("assistant: Gate must not be nil")
	case cfg.Embedder == nil:
		return nil, fmt.Errorf("assistant: Embedder must not be nil")
	case cfg.Index == nil:
		return nil, fmt.Errorf("assistant: Index must not be nil")
	case cfg.Generator == nil:
		return nil, fmt.Errorf("assistant: Generator must not be nil")
	case cfg.Store == nil:
		return nil, fmt.Errorf("assistant: Store must not be nil")
	}
	return &Assistant{
		gate:      cfg.Gate,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		generator: cfg.Generator,
		store:     cfg.Store,
	}, nil
}

// Respond answers one turn in batch mode.
//
// A supplied ConversationID must reference an existing conversation or
// Respond fails with ErrNotFound; with no ID a new conversation is created.
// A blocked query short-circuits before any retrieval or generation: the
// advisory is persisted as the assistant message and returned with
// Blocked=true and an empty ResponseID.
func (a *Assistant) Respond(ctx context.Context, req Request) (Result, error) {
	if v := a.gate.Check(ctx, req.Query); !v.Safe {
		return a.persistBlocked(ctx, req, v.Advisory, false)
	}

	contextBlock, err := a.retrieveContext(ctx, req)
	if err != nil {
		return Result{}, err
	}

	conv, prevResponseID, err := a.resolveThread(ctx, req, false)
	if err != nil {
		return Result{}, err
	}

	resp, err := a.generator.Generate(ctx, llm.Request{
		Query:              req.Query,
		Context:            contextBlock,
		PreviousResponseID: prevResponseID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("assistant: generation failed: %w", err)
	}

	final := resp.Text
	if v := a.gate.Check(ctx, final); !v.Safe {
		// The unsafe generation is discarded; only the advisory survives.
		final = v.Advisory
	}

	_, assistantMsg, err := a.store.AppendTurn(ctx, conv.ID,
		store.AppendParams{Role: store.RoleUser, Content: req.Query},
		store.AppendParams{Role: store.RoleAssistant, Content: final, ResponseID: resp.ResponseID},
	)
	if err != nil {
		return Result{}, fmt.Errorf("assistant: persist turn: %w", err)
	}

	return Result{
		Answer:         final,
		MessageID:      assistantMsg.ID,
		ConversationID: conv.ID,
		ResponseID:     resp.ResponseID,
	}, nil
}

// RespondStream answers one turn in streaming mode, delivering events through
// sink in generation order: metadata, content deltas, then done.
//
// A stale or absent ConversationID starts a fresh conversation. If the
// streaming generation call fails, at start or mid-stream, the turn falls
// back to batch generation and the batch answer is delivered as a single
// delta. The turn is persisted only after the full answer has passed the
// output gate, so an abandoned stream never leaves a partial turn behind.
func (a *Assistant) RespondStream(ctx context.Context, req Request, sink EventSink) (Result, error) {
	if v := a.gate.Check(ctx, req.Query); !v.Safe {
		return a.streamBlocked(ctx, req, v.Advisory, sink)
	}

	contextBlock, err := a.retrieveContext(ctx, req)
	if err != nil {
		return Result{}, err
	}

	conv, prevResponseID, err := a.resolveThread(ctx, req, true)
	if err != nil {
		return Result{}, err
	}

	history, err := a.renderHistory(ctx, conv.ID)
	if err != nil {
		return Result{}, err
	}

	// The user message ID is announced before the turn is committed; the same
	// ID is used at persist time so the metadata event stays truthful.
	userMessageID := uuid.NewString()
	if err := sink.Metadata(conv.ID, userMessageID); err != nil {
		return Result{}, fmt.Errorf("assistant: send metadata: %w", err)
	}

	answer, responseID, err := a.generateStreaming(ctx, llm.Request{
		Query:              req.Query,
		Context:            contextBlock,
		History:            history,
		PreviousResponseID: prevResponseID,
	}, sink)
	if err != nil {
		return Result{}, err
	}

	final := answer
	if v := a.gate.Check(ctx, final); !v.Safe {
		// The unsafe deltas already left the building; the replacement event
		// tells the client to discard them, and only the advisory is
		// persisted.
		final = v.Advisory
		if err := sink.Replace(final); err != nil {
			return Result{}, fmt.Errorf("assistant: send replacement: %w", err)
		}
	}

	_, assistantMsg, err := a.store.AppendTurn(ctx, conv.ID,
		store.AppendParams{ID: userMessageID, Role: store.RoleUser, Content: req.Query},
		store.AppendParams{Role: store.RoleAssistant, Content: final, ResponseID: responseID},
	)
	if err != nil {
		return Result{}, fmt.Errorf("assistant: persist turn: %w", err)
	}

	if err := sink.Done(assistantMsg.ID, responseID); err != nil {
		return Result{}, fmt.Errorf("assistant: send done: %w", err)
	}

	return Result{
		Answer:         final,
		MessageID:      assistantMsg.ID,
		ConversationID: conv.ID,
		ResponseID:     responseID,
	}, nil
}

// retrieveContext embeds the query, queries the index, and assembles the
// context block. An empty block is a valid outcome, not an error.
func (a *Assistant) retrieveContext(ctx context.Context, req Request) (string, error) {
	embeddings, err := a.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return "", fmt.Errorf("assistant: embed query: %w", err)
	}
	if len(embeddings) != 1 {
		return "", fmt.Errorf("assistant: embedder returned %d vectors for 1 text", len(embeddings))
	}

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	matches, err := a.index.Query(ctx, embeddings[0], topK, req.Filter)
	if err != nil {
		return "", fmt.Errorf("assistant: retrieve: %w", err)
	}

	return rag.BuildContext(matches), nil
}

// resolveThread returns the conversation this turn belongs to and the prior
// continuation handle. With autoCreate set, a missing or stale conversation ID
// starts a fresh conversation; without it, a stale supplied ID is ErrNotFound.
func (a *Assistant) resolveThread(ctx context.Context, req Request, autoCreate bool) (store.Conversation, string, error) {
	if req.ConversationID != "" {
		conv, err := a.store.Get(ctx, req.ConversationID)
		if err == nil {
			prevID, err := a.store.LastAssistantResponseID(ctx, conv.ID)
			if err != nil {
				return store.Conversation{}, "", fmt.Errorf("assistant: resolve threading: %w", err)
			}
			return conv, prevID, nil
		}
		if !errors.Is(err, store.ErrConversationNotFound) {
			return store.Conversation{}, "", fmt.Errorf("assistant: look up conversation: %w", err)
		}
		if !autoCreate {
			return store.Conversation{}, "", fmt.Errorf("assistant: %s: %w", req.ConversationID, ErrNotFound)
		}
	}

	conv, err := a.store.Create(ctx, titleFromQuery(req.Query))
	if err != nil {
		return store.Conversation{}, "", fmt.Errorf("assistant: create conversation: %w", err)
	}
	return conv, "", nil
}

// renderHistory renders the conversation's most recent messages as
// alternating "User: "/"Assistant: " lines in original order.
func (a *Assistant) renderHistory(ctx context.Context, conversationID string) (string, error) {
	msgs, err := a.store.ListMessages(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("assistant: load history: %w", err)
	}
	if len(msgs) > historyDepth {
		msgs = msgs[len(msgs)-historyDepth:]
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		prefix := "User: "
		if m.Role == store.RoleAssistant {
			prefix = "Assistant: "
		}
		lines = append(lines, prefix+m.Content)
	}
	return strings.Join(lines, "\n"), nil
}

// generateStreaming runs the streaming generation call, forwarding non-empty
// deltas to the sink and accumulating the full answer. Any failure of the
// stream itself triggers the batch fallback; sink errors do not, they abort
// the turn.
func (a *Assistant) generateStreaming(ctx context.Context, req llm.Request, sink EventSink) (string, string, error) {
	sr, err := a.generator.Stream(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Warn("assistant: streaming unavailable, falling back to batch",
			slog.Any("error", err))
		return a.batchAsStream(ctx, req, sink)
	}
	defer sr.Close()

	var full strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			// Stream ended without a terminal chunk; treat as a dead stream.
			logging.FromContext(ctx).Warn("assistant: stream ended without terminal chunk, falling back to batch")
			return a.batchAsStream(ctx, req, sink)
		}
		if err != nil {
			// Mid-stream transport failure. Already-delivered deltas stay
			// delivered; the batch answer becomes the authoritative content.
			logging.FromContext(ctx).Warn("assistant: stream broke mid-flight, falling back to batch",
				slog.Any("error", err))
			return a.batchAsStream(ctx, req, sink)
		}
		if chunk.Done {
			return full.String(), chunk.ResponseID, nil
		}
		if chunk.Content == "" {
			continue
		}
		full.WriteString(chunk.Content)
		if err := sink.Delta(chunk.Content); err != nil {
			return "", "", fmt.Errorf("assistant: send delta: %w", err)
		}
	}
}

// batchAsStream produces the answer in batch mode and delivers it as a single
// delta, keeping the sink's event contract intact.
func (a *Assistant) batchAsStream(ctx context.Context, req llm.Request, sink EventSink) (string, string, error) {
	resp, err := a.generator.Generate(ctx, req)
	if err != nil {
		return "", "", fmt.Errorf("assistant: batch fallback failed: %w", err)
	}
	if resp.Text != "" {
		if err := sink.Delta(resp.Text); err != nil {
			return "", "", fmt.Errorf("assistant: send fallback delta: %w", err)
		}
	}
	return resp.Text, resp.ResponseID, nil
}

// persistBlocked records a blocked turn as ordinary messages: the query as
// the user message and the advisory as the assistant message, with no
// continuation handle.
func (a *Assistant) persistBlocked(ctx context.Context, req Request, advisory string, autoCreate bool) (Result, error) {
	conv, _, err := a.resolveThread(ctx, req, autoCreate)
	if err != nil {
		return Result{}, err
	}

	_, assistantMsg, err := a.store.AppendTurn(ctx, conv.ID,
		store.AppendParams{Role: store.RoleUser, Content: req.Query},
		store.AppendParams{Role: store.RoleAssistant, Content: advisory},
	)
	if err != nil {
		return Result{}, fmt.Errorf("assistant: persist blocked turn: %w", err)
	}

	return Result{
		Answer:         advisory,
		MessageID:      assistantMsg.ID,
		ConversationID: conv.ID,
		Blocked:        true,
	}, nil
}

// streamBlocked delivers a blocked turn through the sink: metadata, one
// advisory delta, then done with an empty continuation handle.
func (a *Assistant) streamBlocked(ctx context.Context, req Request, advisory string, sink EventSink) (Result, error) {
	conv, _, err := a.resolveThread(ctx, req, true)
	if err != nil {
		return Result{}, err
	}

	userMessageID := uuid.NewString()
	if err := sink.Metadata(conv.ID, userMessageID); err != nil {
		return Result{}, fmt.Errorf("assistant: send metadata: %w", err)
	}
	if err := sink.Delta(advisory); err != nil {
		return Result{}, fmt.Errorf("assistant: send advisory delta: %w", err)
	}

	_, assistantMsg, err := a.store.AppendTurn(ctx, conv.ID,
		store.AppendParams{ID: userMessageID, Role: store.RoleUser, Content: req.Query},
		store.AppendParams{Role: store.RoleAssistant, Content: advisory},
	)
	if err != nil {
		return Result{}, fmt.Errorf("assistant: persist blocked turn: %w", err)
	}

	if err := sink.Done(assistantMsg.ID, ""); err != nil {
		return Result{}, fmt.Errorf("assistant: send done: %w", err)
	}

	return Result{
		Answer:         advisory,
		MessageID:      assistantMsg.ID,
		ConversationID: conv.ID,
		Blocked:        true,
	}, nil
}

// titleFromQuery derives a conversation title from the first query: the first
// 50 characters, ellipsis-suffixed when truncated.
func titleFromQuery(query string) string {
	runes := []rune(query)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return query
}
