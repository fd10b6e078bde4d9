package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/ledgerclaw/internal/types"
	"github.com/user/ledgerclaw/pkg/llm"
)

// Extractor turns an upload into a structured analysis (invoice fields,
// totals, dates). A nil analysis with a nil error means "nothing found".
type Extractor interface {
	Extract(ctx context.Context, file *types.UploadedFile, preview string) (json.RawMessage, error)
}

// ModelExtractor asks the reasoning model to read the text preview.
type ModelExtractor struct {
	provider llm.Provider
}

// NewModelExtractor returns an extractor backed by provider.
func NewModelExtractor(provider llm.Provider) *ModelExtractor {
	return &ModelExtractor{provider: provider}
}

const extractPrompt = `Extract accounting facts from the document below.
Answer with one JSON object only. Use these keys when present:
documentType, issueDate (YYYY-MM-DD), partnerName, invoiceRegistrationNo, currency,
totalAmount (tax included), taxAmount, taxRate, netAmount, items [{description, amount}].
Omit keys you cannot read. Amounts are numbers without separators.`

// Extract returns nil for files without a text preview.
func (m *ModelExtractor) Extract(ctx context.Context, file *types.UploadedFile, preview string) (json.RawMessage, error) {
	if strings.TrimSpace(preview) == "" {
		return nil, nil
	}
	resp, err := llm.Ask(ctx, m.provider, extractPrompt,
		fmt.Sprintf("File: %s (%s)\n\n%s", file.FileName, file.ContentType, preview))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", file.ID, err)
	}
	var out map[string]any
	if err := llm.DecodeJSON(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("decode extraction for %s: %w", file.ID, err)
	}
	return json.Marshal(out)
}
