package assistant

// EventSink receives the ordered event sequence of a streaming response.
// Exactly one Metadata call arrives first, then zero or more Delta calls in
// generation order, then exactly one Done call. A sink error aborts the
// stream; the assistant propagates it without persisting the turn.
//
// The HTTP layer implements EventSink to adapt these events onto SSE frames.
type EventSink interface {
	// Metadata announces the resolved conversation and the ID the user
	// message will be persisted under.
	Metadata(conversationID, userMessageID string) error

	// Delta delivers one non-empty content fragment.
	Delta(content string) error

	// Replace delivers content that supersedes every Delta sent so far.
	// Emitted when the output check rejects the generated answer: clients
	// discard the streamed prefix and render this content instead. At most
	// one Replace arrives, always before Done.
	Replace(content string) error

	// Done terminates the stream with the persisted assistant message ID and
	// the continuation handle (empty when the query was blocked).
	Done(messageID, responseID string) error
}
