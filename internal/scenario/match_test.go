package scenario

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(defs []*Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Key
	}
	return out
}

func TestMessageMatching(t *testing.T) {
	m := Matcher{IncludeKeywords: []string{"expense"}, ExcludeKeywords: []string{"payroll"}}
	assert.True(t, m.MatchesMessage("Book this Expense please"))
	assert.False(t, m.MatchesMessage("expense for payroll"))
	assert.False(t, m.MatchesMessage("hello"))

	always := Matcher{Always: true, ExcludeKeywords: []string{"ignore"}}
	assert.True(t, always.MatchesMessage("anything"))
	assert.False(t, always.MatchesMessage("please ignore"))

	re := Matcher{RegexPatterns: []string{`inv-\d{4}`}}
	assert.True(t, re.MatchesMessage("see INV-2024"))

	fileOnly := Matcher{AppliesTo: AppliesFile, Always: true}
	assert.False(t, fileOnly.MatchesMessage("anything"))
}

func TestFileMatching(t *testing.T) {
	m := Matcher{
		AppliesTo:        AppliesFile,
		MimeTypes:        []string{"image/*", "application/pdf"},
		FileNameContains: []string{"receipt"},
	}
	assert.True(t, m.MatchesFile(FileInput{FileName: "Receipt_01.jpg", ContentType: "image/jpeg"}))
	assert.True(t, m.MatchesFile(FileInput{FileName: "receipt.pdf", ContentType: "application/pdf"}))
	assert.False(t, m.MatchesFile(FileInput{FileName: "receipt.csv", ContentType: "text/csv"}), "mime filter")
	assert.False(t, m.MatchesFile(FileInput{FileName: "photo.jpg", ContentType: "image/jpeg"}), "no positive rule")

	content := Matcher{ContentContains: []string{"請求書"}, ExcludeKeywords: []string{"見積"}}
	assert.True(t, content.MatchesFile(FileInput{FileName: "a.txt", Preview: "請求書 No.1"}))
	assert.False(t, content.MatchesFile(FileInput{FileName: "見積.txt", Preview: "請求書"}))
}

func TestFileMatchingFieldEquals(t *testing.T) {
	m := Matcher{Always: true, FieldEquals: &FieldFilter{Field: "documentType", Equals: "invoice"}}
	assert.True(t, m.MatchesFile(FileInput{Analysis: json.RawMessage(`{"documentType":"Invoice"}`)}))
	assert.False(t, m.MatchesFile(FileInput{Analysis: json.RawMessage(`{"documentType":"receipt"}`)}))
	assert.False(t, m.MatchesFile(FileInput{}))

	num := Matcher{Always: true, FieldEquals: &FieldFilter{Field: "taxRate", Equals: "10"}}
	assert.True(t, num.MatchesFile(FileInput{Analysis: json.RawMessage(`{"taxRate":10}`)}))
}

func TestCatalogOrdering(t *testing.T) {
	now := time.Now()
	catalog := NewCatalog([]*Definition{
		{Key: "late", Priority: 10, IsActive: true, UpdatedAt: now, Metadata: Metadata{Matcher: Matcher{Always: true}}},
		{Key: "old", Priority: 1, IsActive: true, UpdatedAt: now.Add(-time.Hour), Metadata: Metadata{Matcher: Matcher{Always: true}}},
		{Key: "new", Priority: 1, IsActive: true, UpdatedAt: now, Metadata: Metadata{Matcher: Matcher{Always: true}}},
		{Key: "off", Priority: 0, IsActive: false, Metadata: Metadata{Matcher: Matcher{Always: true}}},
	})

	assert.Equal(t, []string{"off", "new", "old", "late"}, keys(catalog.All()))
	assert.Equal(t, []string{"new", "old", "late"}, keys(catalog.MatchMessage("hi")))
}

func TestParseCatalog(t *testing.T) {
	data := []byte(`[
		{"scenarioKey":"vendor.invoice","title":"Vendor invoice","priority":5,"isActive":true,
		 "toolHints":["lookup_account","create_voucher"],
		 "metadata":{"matcher":{"appliesTo":"file","contentContains":["invoice"]},
		             "contextMessages":[{"role":"system","content":"Post to 5xx accounts"}]}}
	]`)
	defs, err := ParseCatalog(data)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, AppliesFile, defs[0].Metadata.Matcher.AppliesTo)
	assert.Len(t, defs[0].Metadata.ContextMessages, 1)

	_, err = ParseCatalog([]byte(`[{"scenarioKey":"a"},{"scenarioKey":"a"}]`))
	assert.Error(t, err)
	_, err = ParseCatalog([]byte(`[{"scenarioKey":"a","metadata":{"matcher":{"regexPatterns":["("]}}}]`))
	assert.Error(t, err)
}
