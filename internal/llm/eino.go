package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// systemPrompt establishes the assistant's persona. It is injected into every
// generation call; the per-turn history and retrieved context travel in the
// user message instead.
const systemPrompt = `You are a supportive learning assistant for a structured learning program.
You answer questions about the program's learning materials, which are supplied
to you as retrieved context excerpts tagged with their source file.

How you respond:
- Ground answers in the provided context and conversation history. When the
  context covers the question, prefer it over general knowledge and do not
  invent details the materials do not contain.
- When the context is empty or does not cover the question, answer from
  general knowledge, staying within the role of a learning assistant.
- Keep language simple, concise, and warm. Acknowledge the learner's question,
  give clear structured information, and close with a practical insight or an
  encouraging next step where it fits naturally.
- If a question is clearly outside the scope of a learning assistant, politely
  redirect the learner to more appropriate resources.`

// answerTemplate renders the per-turn user message. History precedes context
// so the model reads the conversation before the evidence.
const answerTemplate = "Conversation history (most recent last):\n%s\n\n" +
	"Context:\n%s\n\n" +
	"Query:\n%s\n\n" +
	"Answer:"

// EinoGenerator is a Generator backed by an Eino chat model.
//
// Chat-completion backends have no server-side response state, so the
// continuation handle is minted locally per answer; turn-to-turn continuity is
// carried by Request.History. The handle stays opaque to callers either way.
type EinoGenerator struct {
	// chatModel is the generation backend.
	chatModel model.BaseChatModel
}

// NewEinoGenerator wraps a chat model as a Generator.
func NewEinoGenerator(chatModel model.BaseChatModel) *EinoGenerator {
	return &EinoGenerator{chatModel: chatModel}
}

// buildMessages renders the request into the two-message shape every backend
// receives: persona system message plus a single composed user message.
func buildMessages(req Request) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf(answerTemplate, req.History, req.Context, req.Query)),
	}
}

// newResponseID mints an opaque continuation handle for a completed answer.
func newResponseID() string {
	return "resp-" + uuid.NewString()
}

// Generate produces the complete answer in one backend call.
func (g *EinoGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	msg, err := g.chatModel.Generate(ctx, buildMessages(req))
	if err != nil {
		return Response{}, fmt.Errorf("llm: generate: %w", err)
	}
	return Response{
		Text:       strings.TrimSpace(msg.Content),
		ResponseID: newResponseID(),
	}, nil
}

// Stream starts a streaming generation and returns a reader over its chunks.
func (g *EinoGenerator) Stream(ctx context.Context, req Request) (StreamReader, error) {
	sr, err := g.chatModel.Stream(ctx, buildMessages(req))
	if err != nil {
		return nil, fmt.Errorf("llm: stream: %w", err)
	}
	return &einoStream{sr: sr, responseID: newResponseID()}, nil
}

// einoStream adapts an Eino message stream to the StreamReader contract.
type einoStream struct {
	// sr is the underlying backend stream.
	sr *schema.StreamReader[*schema.Message]

	// responseID is emitted on the terminal chunk.
	responseID string

	// done is set once the terminal chunk has been delivered.
	done bool
}

// Recv returns the next chunk. Backend end-of-stream is translated into one
// terminal Done chunk, after which Recv returns io.EOF.
func (s *einoStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	msg, err := s.sr.Recv()
	if errors.Is(err, io.EOF) {
		s.done = true
		return Chunk{ResponseID: s.responseID, Done: true}, nil
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("llm: stream receive: %w", err)
	}

	var content string
	if msg != nil {
		content = msg.Content
	}
	return Chunk{Content: content}, nil
}

// Close releases the underlying backend stream.
func (s *einoStream) Close() {
	s.sr.Close()
}
