package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDraftLooseShapes(t *testing.T) {
	raw := json.RawMessage(`{
		"documentSessionId": "doc_1",
		"postingDate": "2024-04-10",
		"header": {"summary": "Taxi", "currency": "jpy", "vendorName": "Tokyo Taxi"},
		"lines": [
			{"account": "6100", "debit": "3,300", "memo": "taxi"},
			{"accountCode": "1000", "amount": 3300, "drcr": "貸方"},
			{"accountCode": "2100", "debitAmount": 0, "creditAmount": 10, "vendorId": "V9"}
		],
		"attachments": ["#1", 2, {"fileId": "f9"}]
	}`)
	d, err := DecodeDraft(raw)
	require.NoError(t, err)

	assert.Equal(t, "doc_1", d.DocumentSessionID)
	assert.Equal(t, "2024-04-10", d.Header.PostingDate)
	assert.Equal(t, "Taxi", d.Header.Summary)
	assert.Equal(t, "Tokyo Taxi", d.Header.PartnerName)
	require.Len(t, d.Lines, 3)
	assert.Equal(t, Line{AccountCode: "6100", Amount: 3300, Side: Debit, Note: "taxi"}, d.Lines[0])
	assert.Equal(t, Side("貸方"), d.Lines[1].Side)
	assert.Equal(t, Credit, d.Lines[2].Side)
	assert.Equal(t, 10.0, d.Lines[2].Amount)
	assert.Equal(t, "V9", d.Lines[2].VendorID)
	assert.Equal(t, []string{"#1", "2", "f9"}, d.Attachments)
}

func TestDecodeDraftRoundTrip(t *testing.T) {
	d := &VoucherDraft{
		DocumentSessionID: "doc_1",
		Header:            Header{PostingDate: "2024-04-10", Currency: "JPY"},
		Lines: []Line{
			{AccountCode: "6200", Amount: 10000, Side: Debit, Tax: &Tax{AccountCode: "1500", Amount: 1000, Rate: 10}},
			{AccountCode: "2100", Amount: 11000, Side: Credit, VendorID: "V1"},
		},
		Attachments: []string{"f1"},
	}
	back, err := DecodeDraft(d.Arguments())
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestDecodeDraftRejectsNonObjects(t *testing.T) {
	_, err := DecodeDraft(json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrEmptyDraft)
	_, err = DecodeDraft(json.RawMessage(`{"lines":[1]}`))
	assert.Error(t, err)
}

func TestPatch(t *testing.T) {
	d := &VoucherDraft{Lines: []Line{{AccountCode: "6100"}, {AccountCode: "2100"}}}
	require.NoError(t, d.Patch("postingDate", " 2024-05-01 "))
	require.NoError(t, d.Patch("header.currency", "USD"))
	require.NoError(t, d.Patch("lines[1].vendorId", "V7"))
	require.NoError(t, d.Patch("lines[0].amount", "1,200"))

	assert.Equal(t, "2024-05-01", d.Header.PostingDate)
	assert.Equal(t, "USD", d.Header.Currency)
	assert.Equal(t, "V7", d.Lines[1].VendorID)
	assert.Equal(t, 1200.0, d.Lines[0].Amount)

	assert.ErrorIs(t, d.Patch("lines[5].vendorId", "x"), ErrUnknownField)
	assert.ErrorIs(t, d.Patch("colour", "x"), ErrUnknownField)
}

func TestNormalizeDate(t *testing.T) {
	for in, want := range map[string]string{
		"2024-03-31":           "2024-03-31",
		"2024/3/1":             "2024-03-01",
		"2024.12.05":           "2024-12-05",
		"20240229":             "2024-02-29",
		"2024年3月31日":           "2024-03-31",
		"2024-03-31T10:00:00Z": "2024-03-31",
	} {
		got, ok := NormalizeDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "yesterday", "2023-02-29", "2024-13-01"} {
		_, ok := NormalizeDate(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseSideAndCurrency(t *testing.T) {
	for _, s := range []string{"DR", "debit", "借方", " d "} {
		side, ok := ParseSide(s)
		require.True(t, ok, s)
		assert.Equal(t, Debit, side)
	}
	side, ok := ParseSide("贷方")
	require.True(t, ok)
	assert.Equal(t, Credit, side)

	p := DefaultProfile()
	assert.Equal(t, "USD", p.NormalizeCurrency("usd"))
	assert.Equal(t, "CNY", p.NormalizeCurrency("RMB"))
	assert.Equal(t, "JPY", p.NormalizeCurrency(""))
	assert.Equal(t, "JPY", p.NormalizeCurrency("GBP"))
}
