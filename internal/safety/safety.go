// Package safety provides the moderation gate that classifies user queries and
// generated answers before they are allowed through the response pipeline.
// The gate fails closed: if the classifier backend itself errors, the text is
// treated as unsafe rather than letting unmoderated content through.
package safety

import "context"

// FallbackMessage is the fixed safe response substituted when generated output
// fails the gate, and the advisory returned when a query is blocked.
const FallbackMessage = "I'm here to assist you with questions about the available learning materials. " +
	"For questions outside this scope, you might want to explore other resources or speak with the appropriate professionals."

// Verdict is the outcome of a gate check.
type Verdict struct {
	// Safe reports whether the text passed moderation.
	Safe bool

	// Advisory is the user-visible message to show instead of the text when
	// Safe is false. Empty when Safe is true.
	Advisory string
}

// Gate classifies text as safe or unsafe. It is used twice per turn: once on
// the user's query before any retrieval or generation happens, and once on the
// fully accumulated answer before it is persisted.
//
// Check never returns an error: a failure of the gate's own backend degrades
// to an unsafe verdict. Implementations must be safe for concurrent use.
type Gate interface {
	Check(ctx context.Context, text string) Verdict
}

// AllowAll is a Gate that approves every message. It backs the
// SAFETY_DISABLED escape hatch for local development against trusted
// material.
type AllowAll struct{}

// Check always returns a safe verdict.
func (AllowAll) Check(context.Context, string) Verdict { return Verdict{Safe: true} }
