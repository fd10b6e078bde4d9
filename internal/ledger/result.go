package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the outcome class of the consistency engine.
type Kind int

const (
	KindOk Kind = iota
	KindClarify
	KindFail
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindClarify:
		return "clarify"
	default:
		return "fail"
	}
}

// Sentinel failures.
var (
	ErrCreditOnly        = errors.New("credit-only voucher: regenerate the voucher with its debit lines")
	ErrNoAmounts         = errors.New("voucher has no amounts")
	ErrUnknownDocSession = errors.New("documentSessionId does not resolve to registered files")
	ErrDisallowedAccount = errors.New("account is not in the approved list")
	ErrMissingAccount    = errors.New("account does not exist in the chart of accounts")
	ErrBadAttachment     = errors.New("attachment is not part of the document session")
	ErrBadSide           = errors.New("line side is not DR or CR")
	ErrUnbalanced        = errors.New("debit and credit totals differ")
	ErrPeriodClosed      = errors.New("accounting period is closed")
)

// Result is Ok, Clarify or Fail. Draft is the normalized draft in every case
// where normalization got far enough to produce one.
type Result struct {
	Kind      Kind
	Draft     *VoucherDraft
	VoucherNo string
	// Reason is the user-facing question or failure sentence.
	Reason      string
	Fields      []string
	AccountCode string
	Err         error
	Warnings    []string
}

// Ok reports a committed or committable voucher.
func Ok(d *VoucherDraft, voucherNo string) Result {
	return Result{Kind: KindOk, Draft: d, VoucherNo: voucherNo}
}

// Clarify asks the user for fields before the draft can be retried.
func Clarify(d *VoucherDraft, reason string, fields ...string) Result {
	return Result{Kind: KindClarify, Draft: d, Reason: reason, Fields: fields}
}

// Fail rejects the draft. err is matched with errors.Is by callers.
func Fail(d *VoucherDraft, err error) Result {
	return Result{Kind: KindFail, Draft: d, Reason: err.Error(), Err: err}
}

func failf(d *VoucherDraft, sentinel error, format string, args ...any) Result {
	return Fail(d, fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...))
}

// MissingField is the first field a Clarify result asks for.
func (r Result) MissingField() string {
	if len(r.Fields) == 0 {
		return ""
	}
	return r.Fields[0]
}

func (r Result) String() string {
	var b strings.Builder
	b.WriteString(r.Kind.String())
	if r.VoucherNo != "" {
		b.WriteString(" " + r.VoucherNo)
	}
	if r.Reason != "" {
		b.WriteString(": " + r.Reason)
	}
	return b.String()
}
