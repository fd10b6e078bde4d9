package documents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ledgerclaw/internal/types"
)

func TestPreviewPlainText(t *testing.T) {
	text, err := Preview(&types.UploadedFile{FileName: "receipt.txt"}, []byte("Total 11,000 JPY"), 0)
	require.NoError(t, err)
	assert.Equal(t, "Total 11,000 JPY", text)
}

func TestPreviewHTML(t *testing.T) {
	html := `<html><body><h1>Invoice</h1><p>Amount <b>11000</b></p></body></html>`
	text, err := Preview(&types.UploadedFile{FileName: "inv", ContentType: "text/html; charset=utf-8"}, []byte(html), 0)
	require.NoError(t, err)
	assert.Contains(t, text, "# Invoice")
	assert.Contains(t, text, "**11000**")
}

func TestPreviewBinaryAndTruncation(t *testing.T) {
	text, err := Preview(&types.UploadedFile{FileName: "scan.pdf", ContentType: "application/pdf"}, []byte("%PDF-1.7"), 0)
	require.NoError(t, err)
	assert.Empty(t, text)

	long := strings.Repeat("請求書", 100)
	text, err = Preview(&types.UploadedFile{FileName: "a.txt"}, []byte(long), 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), 10)
	assert.True(t, strings.HasPrefix(long, text))
}
