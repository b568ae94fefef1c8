package rag

import (
	"fmt"
	"strings"
)

// BuildContext renders ranked vector store matches into a single context
// block for the generation service. Each match with non-empty text becomes a
// "[Source: <filename>] <text>" line; matches without text are skipped.
// The store's ranking order is preserved. No matches yields an empty string —
// callers treat that as "answer from general knowledge", not as an error.
func BuildContext(matches []Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		text := m.Metadata[MetaText]
		if text == "" {
			continue
		}
		filename := m.Metadata[MetaFilename]
		if filename == "" {
			filename = "unknown-filename"
		}
		parts = append(parts, fmt.Sprintf("[Source: %s] %s", filename, text))
	}
	return strings.Join(parts, "\n\n")
}
