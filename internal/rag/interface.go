// Package rag defines the interfaces for retrieval-augmented generation
// components: text embedding, vector storage, and context assembly.
// Concrete implementations (Qdrant, OpenAI, Ollama, etc.) satisfy these
// interfaces so the assistant layer never depends on a specific backend.
package rag

import (
	"context"
)

// Metadata keys written by the ingestion pipeline and read back on retrieval.
const (
	// MetaFilename is the source filename of the chunk.
	MetaFilename = "filename"
	// MetaFileType is the upload file type ("text" or "pdf").
	MetaFileType = "file_type"
	// MetaText is the raw chunk text stored alongside the vector.
	MetaText = "text"
	// MetaChunkIndex is the zero-based ordinal of the chunk within its file.
	MetaChunkIndex = "chunk_index"
)

// Document is a unit of knowledge to be stored: one chunk of an uploaded
// file, identified by a globally unique ID and carrying its metadata payload.
type Document struct {
	// ID uniquely identifies this chunk. Re-uploading the same file produces
	// new IDs, so prior uploads are never silently overwritten.
	ID string

	// Text is the raw chunk text.
	Text string

	// Metadata holds the key-value payload stored with the vector
	// (filename, file_type, text, chunk_index).
	Metadata map[string]string
}

// Match is a single nearest-neighbour result returned by a VectorStore query.
// The store's ranking order is authoritative; Score is informational only and
// may be zero for backends that do not report one.
type Match struct {
	// Metadata is the payload stored at upsert time.
	Metadata map[string]string

	// Score is the similarity score if the backend reports one.
	Score float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists embedded document chunks and answers nearest-neighbour
// queries over them. Implementations must be safe to call from multiple
// goroutines.
type VectorStore interface {
	// Upsert stores a batch of documents with their pre-computed embeddings.
	// The embeddings slice must be parallel to docs — embeddings[i] is the
	// vector for docs[i]. Records sharing an ID are silently overwritten.
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Query returns the topK nearest matches for the given embedding, best
	// first. A non-nil filter restricts results to records whose metadata
	// fields equal the given values; nil means unrestricted search.
	Query(ctx context.Context, embedding []float32, topK int, filter map[string]string) ([]Match, error)

	// Close releases any resources held by the store.
	Close() error
}
