package ingestion

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/54b3r/learnbot-go/internal/rag"
)

// fakeEmbedder returns a fixed vector per text.
type fakeEmbedder struct {
	calls int
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

// captureStore records upserted documents.
type captureStore struct {
	docs       []rag.Document
	embeddings [][]float32
	calls      int
	err        error
}

func (s *captureStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, docs...)
	s.embeddings = append(s.embeddings, embeddings...)
	return nil
}

func (s *captureStore) Query(_ context.Context, _ []float32, _ int, _ map[string]string) ([]rag.Match, error) {
	return nil, nil
}

func (s *captureStore) Close() error { return nil }

func newTestPipeline(t *testing.T, cfg *Config) (*Pipeline, *captureStore) {
	t.Helper()
	store := &captureStore{}
	p, err := NewPipeline(&fakeEmbedder{}, store, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, store
}

var chunkIDPattern = regexp.MustCompile(`^notes\.txt-\d+-[0-9a-f]{8}$`)

func Test_Ingest_TextFileChunkedAndStored(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, nil)

	content := []byte("first paragraph\n\nsecond paragraph")
	n, err := p.Ingest(context.Background(), content, "notes.txt", FileTypeText)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 chunk (both paragraphs fit), got %d", n)
	}
	if len(store.docs) != 1 {
		t.Fatalf("want 1 stored doc, got %d", len(store.docs))
	}

	doc := store.docs[0]
	if !chunkIDPattern.MatchString(doc.ID) {
		t.Errorf("chunk id %q does not match <filename>-<ordinal>-<8hex>", doc.ID)
	}
	if doc.Metadata[rag.MetaFilename] != "notes.txt" {
		t.Errorf("filename metadata: got %q", doc.Metadata[rag.MetaFilename])
	}
	if doc.Metadata[rag.MetaFileType] != "text" {
		t.Errorf("file_type metadata: got %q", doc.Metadata[rag.MetaFileType])
	}
	if doc.Metadata[rag.MetaText] != doc.Text {
		t.Error("text metadata must mirror the chunk text")
	}
	if doc.Metadata[rag.MetaChunkIndex] != "0" {
		t.Errorf("chunk_index metadata: got %q", doc.Metadata[rag.MetaChunkIndex])
	}
}

func Test_Ingest_SmallMaxCharsSplitsParagraphs(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, &Config{MaxChunkChars: 5})

	// Two 10-char paragraphs with a 5-char limit: one chunk each.
	content := []byte("aaaaaaaaaa\n\nbbbbbbbbbb")
	n, err := p.Ingest(context.Background(), content, "notes.txt", FileTypeText)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 chunks, got %d", n)
	}
	if store.docs[0].Text != "aaaaaaaaaa" || store.docs[1].Text != "bbbbbbbbbb" {
		t.Errorf("chunks: got %q, %q", store.docs[0].Text, store.docs[1].Text)
	}
}

func Test_Ingest_EmptyTextFileStoresNothing(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, nil)

	n, err := p.Ingest(context.Background(), []byte("   \n\n  "), "empty.txt", FileTypeText)
	if err != nil {
		t.Fatalf("want empty text file to succeed with zero chunks, got %v", err)
	}
	if n != 0 {
		t.Errorf("want 0 chunks, got %d", n)
	}
	if store.calls != 0 {
		t.Error("upsert must not be called for an empty document")
	}
}

func Test_Ingest_WhitespaceOnlyPDFIsInvalid(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, &Config{
		ExtractPDF: func([]byte) (string, error) { return " \n \n ", nil },
	})

	_, err := p.Ingest(context.Background(), []byte("%PDF-fake"), "scan.pdf", FileTypePDF)
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("want ErrInvalidDocument, got %v", err)
	}
	if store.calls != 0 {
		t.Error("upsert must not be called for an invalid document")
	}
}

func Test_Ingest_PDFTextExtractedAndStored(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, &Config{
		ExtractPDF: func([]byte) (string, error) { return "page one text\npage two text\n", nil },
	})

	n, err := p.Ingest(context.Background(), []byte("%PDF-fake"), "guide.pdf", FileTypePDF)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 chunk, got %d", n)
	}
	if store.docs[0].Metadata[rag.MetaFileType] != "pdf" {
		t.Errorf("file_type metadata: got %q", store.docs[0].Metadata[rag.MetaFileType])
	}
}

func Test_Ingest_ExtractionFailurePropagates(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, &Config{
		ExtractPDF: func([]byte) (string, error) { return "", errors.New("corrupt xref table") },
	})

	if _, err := p.Ingest(context.Background(), []byte("junk"), "broken.pdf", FileTypePDF); err == nil {
		t.Fatal("want error from extraction failure")
	}
	if store.calls != 0 {
		t.Error("upsert must not be called after extraction failure")
	}
}

func Test_Ingest_UnsupportedFileTypeRejected(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, nil)

	if _, err := p.Ingest(context.Background(), []byte("x"), "img.png", FileType("png")); err == nil {
		t.Fatal("want error for unsupported file type")
	}
}

func Test_Ingest_ReuploadProducesFreshIDs(t *testing.T) {
	t.Parallel()
	p, store := newTestPipeline(t, nil)
	ctx := context.Background()

	content := []byte("some paragraph")
	if _, err := p.Ingest(ctx, content, "notes.txt", FileTypeText); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := p.Ingest(ctx, content, "notes.txt", FileTypeText); err != nil {
		t.Fatalf("second ingest: %v", err)
	}

	if len(store.docs) != 2 {
		t.Fatalf("want 2 stored docs, got %d", len(store.docs))
	}
	if store.docs[0].ID == store.docs[1].ID {
		t.Errorf("re-upload must not reuse chunk IDs, both %q", store.docs[0].ID)
	}
}
