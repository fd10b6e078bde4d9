package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tax is the input/output tax carried on a line instead of a separate line.
type Tax struct {
	AccountCode string  `json:"accountCode,omitempty"`
	Amount      float64 `json:"amount" validate:"gte=0"`
	Rate        float64 `json:"rate,omitempty" validate:"gte=0,lte=100"`
}

// Line is one debit or credit entry.
type Line struct {
	AccountCode  string  `json:"accountCode" validate:"required"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	Side         Side    `json:"side" validate:"oneof=DR CR"`
	Note         string  `json:"note,omitempty"`
	CustomerID   string  `json:"customerId,omitempty"`
	VendorID     string  `json:"vendorId,omitempty"`
	DepartmentID string  `json:"departmentId,omitempty"`
	EmployeeID   string  `json:"employeeId,omitempty"`
	Tax          *Tax    `json:"tax,omitempty" validate:"omitempty"`
}

// Total is the line amount plus its tax sub-line.
func (l Line) Total() float64 {
	if l.Tax == nil {
		return l.Amount
	}
	return l.Amount + l.Tax.Amount
}

// Header holds voucher-level fields.
type Header struct {
	PostingDate           string `json:"postingDate" validate:"required,datetime=2006-01-02"`
	Summary               string `json:"summary,omitempty"`
	Currency              string `json:"currency" validate:"required,len=3"`
	PartnerCode           string `json:"partnerCode,omitempty"`
	PartnerName           string `json:"partnerName,omitempty"`
	InvoiceRegistrationNo string `json:"invoiceRegistrationNo,omitempty"`
}

// VoucherDraft is the typed voucher creation payload.
type VoucherDraft struct {
	DocumentSessionID string   `json:"documentSessionId"`
	Header            Header   `json:"header"`
	Lines             []Line   `json:"lines" validate:"required,min=1,dive"`
	Attachments       []string `json:"attachments,omitempty"`
}

// Totals sums each side including tax sub-lines.
func (d *VoucherDraft) Totals() (debit, credit float64) {
	for _, l := range d.Lines {
		switch l.Side {
		case Debit:
			debit += l.Total()
		case Credit:
			credit += l.Total()
		}
	}
	return Round2(debit), Round2(credit)
}

// Balanced reports whether debit equals credit to the cent.
func (d *VoucherDraft) Balanced() bool {
	dr, cr := d.Totals()
	return Equal(dr, cr)
}

// AccountCodes lists every account referenced by lines and tax sub-lines.
func (d *VoucherDraft) AccountCodes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(code string) {
		if code != "" && !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	for _, l := range d.Lines {
		add(l.AccountCode)
		if l.Tax != nil {
			add(l.Tax.AccountCode)
		}
	}
	return out
}

// Clone deep-copies the draft.
func (d *VoucherDraft) Clone() *VoucherDraft {
	c := *d
	c.Lines = make([]Line, len(d.Lines))
	for i, l := range d.Lines {
		c.Lines[i] = l
		if l.Tax != nil {
			t := *l.Tax
			c.Lines[i].Tax = &t
		}
	}
	c.Attachments = append([]string(nil), d.Attachments...)
	return &c
}

// Arguments freezes the draft as a tool argument payload.
func (d *VoucherDraft) Arguments() json.RawMessage {
	data, err := json.Marshal(d)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// ErrEmptyDraft is returned for payloads that are not a JSON object.
var ErrEmptyDraft = errors.New("voucher payload must be a JSON object")

// DecodeDraft builds a VoucherDraft from the loose shapes models produce:
// flat or nested headers, per-line debit/credit columns, numeric strings and
// field-name variants. Sides are kept as written; the engine normalizes them.
func DecodeDraft(raw json.RawMessage) (*VoucherDraft, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, ErrEmptyDraft
	}

	b := &builder{}
	b.header(m)
	if h, ok := m["header"].(map[string]any); ok {
		b.header(h)
	}
	b.d.DocumentSessionID = str(m, "documentSessionId", "document_session_id", "docSessionId")

	lines, _ := m["lines"].([]any)
	for i, item := range lines {
		lm, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("lines[%d] is not an object", i)
		}
		b.lines(lm)
	}

	if atts, ok := m["attachments"].([]any); ok {
		for _, a := range atts {
			switch v := a.(type) {
			case string:
				b.d.Attachments = append(b.d.Attachments, v)
			case float64:
				b.d.Attachments = append(b.d.Attachments, strconv.FormatFloat(v, 'f', -1, 64))
			case map[string]any:
				if id := str(v, "fileId", "id"); id != "" {
					b.d.Attachments = append(b.d.Attachments, id)
				}
			}
		}
	}
	return &b.d, nil
}

type builder struct {
	d VoucherDraft
}

func (b *builder) header(m map[string]any) {
	set := func(dst *string, keys ...string) {
		if v := str(m, keys...); v != "" {
			*dst = v
		}
	}
	h := &b.d.Header
	set(&h.PostingDate, "postingDate", "posting_date", "voucherDate", "date")
	set(&h.Summary, "summary", "description", "memo")
	set(&h.Currency, "currency", "currencyCode")
	set(&h.PartnerCode, "partnerCode", "partnerId", "customerCode", "vendorCode")
	set(&h.PartnerName, "partnerName", "vendorName", "customerName")
	set(&h.InvoiceRegistrationNo, "invoiceRegistrationNo", "registrationNo")
}

// lines appends one line, or two when a row carries both debit and credit columns.
func (b *builder) lines(m map[string]any) {
	base := Line{
		AccountCode:  str(m, "accountCode", "account", "code", "account_code"),
		Note:         str(m, "note", "memo", "description", "summary"),
		CustomerID:   str(m, "customerId", "customer_id", "customerCode"),
		VendorID:     str(m, "vendorId", "vendor_id", "vendorCode"),
		DepartmentID: str(m, "departmentId", "department_id", "departmentCode"),
		EmployeeID:   str(m, "employeeId", "employee_id"),
	}
	if t, ok := m["tax"].(map[string]any); ok {
		tax := &Tax{AccountCode: str(t, "accountCode", "account")}
		tax.Amount, _ = num(t, "amount")
		tax.Rate, _ = num(t, "rate")
		base.Tax = tax
	}

	if side := str(m, "side", "drcr", "dc", "direction", "entryType", "type"); side != "" {
		base.Side = Side(side)
		base.Amount, _ = num(m, "amount", "value")
		if base.Amount == 0 {
			if parsed, ok := ParseSide(side); ok {
				if parsed == Debit {
					base.Amount, _ = num(m, "debit", "debitAmount")
				} else {
					base.Amount, _ = num(m, "credit", "creditAmount")
				}
			}
		}
		b.d.Lines = append(b.d.Lines, base)
		return
	}

	dr, hasDR := num(m, "debit", "debitAmount")
	cr, hasCR := num(m, "credit", "creditAmount")
	if hasDR && dr != 0 {
		l := base
		l.Side, l.Amount = Debit, dr
		b.d.Lines = append(b.d.Lines, l)
		base.Tax = nil
	}
	if hasCR && cr != 0 {
		l := base
		l.Side, l.Amount = Credit, cr
		b.d.Lines = append(b.d.Lines, l)
	}
	if (!hasDR || dr == 0) && (!hasCR || cr == 0) {
		base.Amount, _ = num(m, "amount", "value")
		b.d.Lines = append(b.d.Lines, base)
	}
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func num(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := Number(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}
