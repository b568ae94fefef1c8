package ingestion

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText extracts plain text from PDF bytes, page by page in document
// order, joining pages with newlines. Pages without a content stream are
// skipped; a page whose text cannot be decoded fails the whole extraction so
// a corrupt document is rejected rather than half-indexed.
func ExtractPDFText(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb bytes.Buffer
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}
