// Package llm defines the generation service contract used by the assistant:
// a batch call and a streaming call over the same request shape. The concrete
// implementation wraps an Eino chat model, so any backend the provider factory
// can construct (Ollama, OpenAI, Azure, Bedrock, Gemini) works unchanged.
package llm

import "context"

// Request carries everything the generation service needs for one answer.
type Request struct {
	// Query is the user's question.
	Query string

	// Context is the retrieved document context block. Empty means "answer
	// from general knowledge".
	Context string

	// History is the rendered recent-conversation transcript, most recent
	// last. Empty for the first turn or for callers that do not thread.
	History string

	// PreviousResponseID is the continuation handle from the prior assistant
	// turn in the same conversation, or empty. The handle is opaque to
	// callers; stateless backends carry continuity through History instead.
	PreviousResponseID string
}

// Response is a complete batch-mode answer.
type Response struct {
	// Text is the full answer.
	Text string

	// ResponseID is the continuation handle for threading the next turn.
	ResponseID string
}

// Chunk is one unit of a streamed answer. Content chunks arrive in generation
// order; the final chunk has Done set, empty Content, and carries the
// ResponseID for the completed answer.
type Chunk struct {
	// Content is the text fragment. Empty on the terminal chunk.
	Content string

	// ResponseID is set only on the terminal chunk.
	ResponseID string

	// Done marks the terminal chunk.
	Done bool
}

// StreamReader delivers a streamed answer chunk by chunk. After the terminal
// Done chunk, Recv returns io.EOF. Close releases the stream and is safe to
// call at any point, including mid-stream on caller abandonment.
type StreamReader interface {
	Recv() (Chunk, error)
	Close()
}

// Generator produces answers in batch or streaming mode.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate produces the complete answer in one call.
	Generate(ctx context.Context, req Request) (Response, error)

	// Stream produces the answer incrementally. An error from Stream or from
	// the returned reader's Recv means the stream is dead; callers fall back
	// to Generate for the same request.
	Stream(ctx context.Context, req Request) (StreamReader, error)
}
