package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/learnbot-go/internal/ingestion"
	"github.com/54b3r/learnbot-go/internal/logging"
)

// NewIngestCmd constructs the `learnbot ingest` command, which indexes local
// study material into the vector store without going through the HTTP API.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest local .txt or .pdf files into the vector store",
		Long: `Chunk, embed, and index local study material into the Qdrant vector store.

Indexed documents become retrievable context for chat answers. The same
pipeline backs the server's /api/upload endpoint, so files ingested here
and files uploaded over HTTP land in the same collection.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: learnbot-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  learnbot ingest notes.txt
  learnbot ingest chapter-1.pdf chapter-2.pdf
  EMBEDDING_PROVIDER=openai learnbot ingest syllabus.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Reject unsupported extensions before touching any backend.
			for _, path := range args {
				if _, ok := fileTypeFor(path); !ok {
					return fmt.Errorf("ingest: %s: only .txt and .pdf files are supported", path)
				}
			}

			emb, vectorStore, err := buildVectorStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer vectorStore.Close()

			pipeline, err := ingestion.NewPipeline(emb, vectorStore, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			total := 0
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}

				filename := filepath.Base(path)
				fileType, _ := fileTypeFor(path)

				chunks, err := pipeline.Ingest(ctx, content, filename, fileType)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", filename, err)
				}

				log.Info("document ingested",
					slog.String("filename", filename),
					slog.Int("chunks", chunks),
				)
				total += chunks
			}

			log.Info("ingestion complete",
				slog.Int("files", len(args)),
				slog.Int("chunks", total),
			)
			return nil
		},
	}

	return cmd
}

// fileTypeFor maps a path's extension to an ingestion file type. The second
// return is false for unsupported extensions.
func fileTypeFor(path string) (ingestion.FileType, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return ingestion.FileTypeText, true
	case ".pdf":
		return ingestion.FileTypePDF, true
	default:
		return "", false
	}
}
