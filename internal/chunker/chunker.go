// Package chunker splits raw document text into bounded-size segments for
// independent embedding. Splitting happens on blank-line paragraph boundaries
// so each chunk stays semantically coherent; paragraphs are packed greedily
// until the size limit is reached.
package chunker

import (
	"regexp"
	"strings"
)

// DefaultMaxChars is the chunk size limit used when callers pass 0.
// 1200 characters keeps chunks comfortably inside embedding model input
// limits while preserving enough surrounding text for retrieval quality.
const DefaultMaxChars = 1200

// paragraphSep matches one or more blank lines (a newline followed by
// optional whitespace and another newline).
var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// Split divides text into chunks no longer than maxChars, packing whole
// paragraphs greedily. A single paragraph longer than maxChars is emitted as
// its own oversized chunk rather than being cut mid-paragraph. Empty or
// whitespace-only input yields nil.
//
// Split is deterministic and has no side effects: the same input always
// produces the same chunks.
func Split(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var paras []string
	for _, p := range paragraphSep.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	if len(paras) == 0 {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	for _, p := range paras {
		// +1 accounts for the joining newline when the buffer is non-empty.
		if buf.Len() > 0 && buf.Len()+len(p)+1 > maxChars {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(p)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}

	return chunks
}
