// Package ingestion implements the document ingestion pipeline: decode or
// extract the uploaded file's text, chunk it, embed each chunk, and upsert the
// results into the vector store. It is invoked by the upload endpoint and by
// the `learnbot ingest` CLI command.
package ingestion

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/learnbot-go/internal/chunker"
	"github.com/54b3r/learnbot-go/internal/rag"
)

// ErrInvalidDocument is returned when an ingested document yields no
// extractable text. Only PDFs hit this: an empty text file degrades to zero
// chunks instead.
var ErrInvalidDocument = errors.New("ingestion: no extractable text in document")

// FileType selects the decoding path for uploaded content.
type FileType string

const (
	// FileTypeText treats content as UTF-8 text.
	FileTypeText FileType = "text"
	// FileTypePDF extracts text from PDF content page by page.
	FileTypePDF FileType = "pdf"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// MaxChunkChars is the chunk size limit. Defaults to chunker.DefaultMaxChars.
	MaxChunkChars int

	// ExtractPDF extracts plain text from PDF bytes. Defaults to
	// ExtractPDFText; tests inject a fake to avoid crafting PDF fixtures.
	ExtractPDF func(content []byte) (string, error)
}

// Pipeline drives the chunk → embed → upsert flow for uploaded documents.
type Pipeline struct {
	// embedder converts chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// maxChunkChars is the resolved chunk size limit.
	maxChunkChars int

	// extractPDF is the resolved PDF text extractor.
	extractPDF func(content []byte) (string, error)
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	maxChars := cfg.MaxChunkChars
	if maxChars <= 0 {
		maxChars = chunker.DefaultMaxChars
	}
	extract := cfg.ExtractPDF
	if extract == nil {
		extract = ExtractPDFText
	}

	return &Pipeline{
		embedder:      embedder,
		store:         store,
		maxChunkChars: maxChars,
		extractPDF:    extract,
	}, nil
}

// Ingest processes one uploaded document and returns the number of chunks
// stored. Zero chunks is a valid outcome for an empty text file; a PDF whose
// extracted text is empty or whitespace-only fails with ErrInvalidDocument
// before anything touches the vector store.
func (p *Pipeline) Ingest(ctx context.Context, content []byte, filename string, fileType FileType) (int, error) {
	var text string
	switch fileType {
	case FileTypeText:
		text = string(content)
	case FileTypePDF:
		extracted, err := p.extractPDF(content)
		if err != nil {
			return 0, fmt.Errorf("ingestion: extract %s: %w", filename, err)
		}
		if strings.TrimSpace(extracted) == "" {
			return 0, fmt.Errorf("ingestion: %s: %w", filename, ErrInvalidDocument)
		}
		text = extracted
	default:
		return 0, fmt.Errorf("ingestion: unsupported file type %q", fileType)
	}

	chunks := chunker.Split(text, p.maxChunkChars)
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("ingestion: embed %s: %w", filename, err)
	}

	docs := make([]rag.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, rag.Document{
			ID:   chunkID(filename, i),
			Text: chunk,
			Metadata: map[string]string{
				rag.MetaFilename:   filename,
				rag.MetaFileType:   string(fileType),
				rag.MetaText:       chunk,
				rag.MetaChunkIndex: fmt.Sprintf("%d", i),
			},
		})
	}

	if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
		return 0, fmt.Errorf("ingestion: upsert %s: %w", filename, err)
	}

	return len(chunks), nil
}

// chunkID builds a vector record ID of the form
// "<filename>-<ordinal>-<8-hex-suffix>". The random suffix keeps re-uploads
// of the same file from colliding with earlier records.
func chunkID(filename string, ordinal int) string {
	u := uuid.New()
	return fmt.Sprintf("%s-%d-%s", filename, ordinal, hex.EncodeToString(u[:4]))
}
