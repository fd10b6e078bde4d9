// Package ledger holds the typed voucher draft and the consistency engine
// that normalizes, balances and validates a draft before it is committed.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/documents"
	"github.com/user/ledgerclaw/internal/types"
)

// Account is a chart-of-accounts entry.
type Account struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Aliases  []string `json:"aliases,omitempty"`
	// OpenItem accounts need a counterparty on every line.
	OpenItem bool `json:"openItem,omitempty"`
	// Requires lists line fields the account cannot be posted without.
	Requires []string `json:"requires,omitempty"`
}

// Account categories.
const (
	CategoryAsset     = "asset"
	CategoryLiability = "liability"
	CategoryEquity    = "equity"
	CategoryRevenue   = "revenue"
	CategoryExpense   = "expense"
)

// Chart looks accounts up. A missing account is nil, nil.
type Chart interface {
	Account(ctx context.Context, code string) (*Account, error)
}

// Periods answers whether a posting date falls in an open accounting period.
type Periods interface {
	PeriodOpen(ctx context.Context, date string) (bool, error)
}

// Committer persists a voucher. It is the only irrevocable step.
type Committer interface {
	CommitVoucher(ctx context.Context, d *VoucherDraft) (string, error)
}

// Documents is the run's view of registered files.
type Documents interface {
	FileIDs(docSession types.DocumentSessionID) []types.FileID
	Resolve(fileID types.FileID) (*documents.Document, bool)
	ResolveAttachmentToken(token string) (types.FileID, bool)
}

// Input is one voucher creation attempt.
type Input struct {
	Draft     *VoucherDraft
	Documents Documents
	Whitelist *Whitelist
}

// Engine runs the consistency checks. It is safe for concurrent use.
type Engine struct {
	chart     Chart
	periods   Periods
	committer Committer
	profile   CompanyProfile
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewEngine creates an Engine for one company profile.
func NewEngine(chart Chart, periods Periods, committer Committer, profile CompanyProfile, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		chart:     chart,
		periods:   periods,
		committer: committer,
		profile:   profile,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Profile returns the company profile the engine enforces.
func (e *Engine) Profile() CompanyProfile {
	return e.profile
}

var requiredFieldPattern = regexp.MustCompile(`lines\[(\d+)\]\.(\w+) required by account (\S+)`)

// Commit prepares the draft and, when it is consistent, commits it as the
// final step.
func (e *Engine) Commit(ctx context.Context, in Input) Result {
	res := e.Prepare(ctx, in)
	if res.Kind != KindOk {
		return res
	}
	d := res.Draft
	if !d.Balanced() {
		dr, cr := d.Totals()
		return failf(d, ErrUnbalanced, "debit %.2f, credit %.2f", dr, cr)
	}
	if err := ctx.Err(); err != nil {
		return Fail(d, err)
	}

	voucherNo, err := e.committer.CommitVoucher(ctx, d)
	if err != nil {
		return e.commitError(d, err)
	}
	e.logger.Info("voucher committed",
		zap.String("voucher_no", voucherNo),
		zap.String("document_session_id", d.DocumentSessionID))
	out := Ok(d, voucherNo)
	out.Warnings = res.Warnings
	return out
}

func (e *Engine) commitError(d *VoucherDraft, err error) Result {
	if m := requiredFieldPattern.FindStringSubmatch(err.Error()); m != nil {
		idx, _ := strconv.Atoi(m[1])
		field := "lines[" + m[1] + "]." + m[2]
		res := Clarify(d, fmt.Sprintf("Line %d (account %s) needs %s. Please provide it.", idx+1, m[3], fieldLabel(m[2])), field)
		res.AccountCode = m[3]
		return res
	}
	if errors.Is(err, ErrPeriodClosed) {
		return Clarify(d, periodQuestion(d.Header.PostingDate), "postingDate")
	}
	return Fail(d, fmt.Errorf("commit voucher: %w", err))
}

// Prepare runs every check short of committing. The returned draft is a
// normalized copy; the input draft is left untouched.
func (e *Engine) Prepare(ctx context.Context, in Input) Result {
	if in.Draft == nil {
		return Fail(nil, ErrEmptyDraft)
	}
	d := in.Draft.Clone()

	// 1. document session
	var files []types.FileID
	if d.DocumentSessionID != "" {
		if in.Documents != nil {
			files = in.Documents.FileIDs(types.DocumentSessionID(d.DocumentSessionID))
		}
		if len(files) == 0 {
			return failf(d, ErrUnknownDocSession, "%s", d.DocumentSessionID)
		}
	} else if len(d.Attachments) > 0 {
		return failf(d, ErrUnknownDocSession, "attachments given without a documentSessionId")
	}
	facts := documentFacts(in.Documents, files)

	// 2. sides, currency, posting date
	if res, ok := e.normalize(d, facts); !ok {
		return res
	}

	// 3. tax sub-lines
	e.foldTax(ctx, d, facts)

	// 4. balance
	if res, ok := e.balance(d); !ok {
		return res
	}
	if err := e.validate.Struct(d); err != nil {
		return Fail(d, fmt.Errorf("invalid voucher: %w", err))
	}

	// 5. whitelist
	if in.Whitelist != nil && in.Whitelist.Enforced() {
		var denied []string
		for _, l := range d.Lines {
			if !e.systemAccount(l.AccountCode) && !in.Whitelist.Allowed(l.AccountCode) {
				denied = append(denied, l.AccountCode)
			}
		}
		if len(denied) > 0 {
			return failf(d, ErrDisallowedAccount, "%s; allowed accounts: %s (call lookup_account instead of inventing codes)",
				strings.Join(unique(denied), ", "), strings.Join(in.Whitelist.Codes(), ", "))
		}
	}

	// 6. chart of accounts
	var missing []string
	for _, code := range d.AccountCodes() {
		acct, err := e.chart.Account(ctx, code)
		if err != nil {
			return Fail(d, fmt.Errorf("lookup account %s: %w", code, err))
		}
		if acct == nil {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		return failf(d, ErrMissingAccount, "%s", strings.Join(missing, ", "))
	}

	// 7. attachments
	if res, ok := resolveAttachments(d, in.Documents, files); !ok {
		return res
	}

	if e.periods != nil {
		open, err := e.periods.PeriodOpen(ctx, d.Header.PostingDate)
		if err != nil {
			return Fail(d, fmt.Errorf("check accounting period: %w", err))
		}
		if !open {
			return Clarify(d, periodQuestion(d.Header.PostingDate), "postingDate")
		}
	}

	res := Ok(d, "")
	res.Warnings = reconcile(d, facts)
	return res
}

func (e *Engine) normalize(d *VoucherDraft, facts docFacts) (Result, bool) {
	for i := range d.Lines {
		l := &d.Lines[i]
		side, ok := ParseSide(string(l.Side))
		if !ok {
			return failf(d, ErrBadSide, "lines[%d].side %q", i, l.Side), false
		}
		l.Side = side
		l.AccountCode = strings.TrimSpace(l.AccountCode)
		if l.Amount < 0 {
			l.Amount = -l.Amount
			if l.Side == Debit {
				l.Side = Credit
			} else {
				l.Side = Debit
			}
		}
		l.Amount = Round2(l.Amount)
		if l.Tax != nil {
			l.Tax.Amount = Round2(l.Tax.Amount)
			if l.Tax.AccountCode == "" {
				l.Tax.AccountCode = e.profile.InputTaxAccount
			}
		}
	}

	d.Header.Currency = e.profile.NormalizeCurrency(d.Header.Currency)

	date := d.Header.PostingDate
	if date == "" {
		date = facts.issueDate
	}
	if date == "" {
		return Clarify(d, "Which posting date should this voucher use?", "postingDate"), false
	}
	normalized, ok := NormalizeDate(date)
	if !ok {
		return Clarify(d, fmt.Sprintf("%q is not a date I can post on. Which posting date should be used (YYYY-MM-DD)?", date), "postingDate"), false
	}
	d.Header.PostingDate = normalized
	return Result{}, true
}

// foldTax moves a known tax split onto the matching expense or asset line.
func (e *Engine) foldTax(ctx context.Context, d *VoucherDraft, facts docFacts) {
	if facts.tax <= 0 || facts.gross <= facts.tax {
		return
	}
	gross := Round2(facts.gross)
	tax := Round2(facts.tax)
	net := Round2(gross - tax)

	taxIdx := -1
	for i, l := range d.Lines {
		if l.Side == Debit && l.Tax == nil && Equal(l.Amount, tax) &&
			(l.AccountCode == e.profile.InputTaxAccount || e.category(ctx, l.AccountCode) == "tax") {
			taxIdx = i
			break
		}
	}

	// A net line without a tax line only takes the split when the credit
	// side already carries the gross amount.
	_, cr := d.Totals()
	netSplit := taxIdx >= 0 || Equal(cr, gross)

	target := -1
	for i, l := range d.Lines {
		if i == taxIdx || l.Side != Debit || l.Tax != nil {
			continue
		}
		if !Equal(l.Amount, gross) && !(netSplit && Equal(l.Amount, net)) {
			continue
		}
		switch e.category(ctx, l.AccountCode) {
		case CategoryExpense, CategoryAsset, "":
			target = i
		}
		if target >= 0 {
			break
		}
	}
	if target < 0 {
		return
	}

	taxAccount := e.profile.InputTaxAccount
	if taxIdx >= 0 {
		taxAccount = d.Lines[taxIdx].AccountCode
	}
	rate := facts.rate
	if rate <= 0 {
		rate = Round2(tax / net * 100)
	}
	d.Lines[target].Amount = net
	d.Lines[target].Tax = &Tax{AccountCode: taxAccount, Amount: tax, Rate: rate}
	if taxIdx >= 0 {
		d.Lines = append(d.Lines[:taxIdx], d.Lines[taxIdx+1:]...)
	}
}

// category returns the account category, "tax" for the input tax account,
// or "" when the chart does not know the code.
func (e *Engine) category(ctx context.Context, code string) string {
	if code != "" && code == e.profile.InputTaxAccount {
		return "tax"
	}
	acct, err := e.chart.Account(ctx, code)
	if err != nil || acct == nil {
		return ""
	}
	return acct.Category
}

func (e *Engine) balance(d *VoucherDraft) (Result, bool) {
	dr, cr := d.Totals()
	switch {
	case dr == 0 && cr == 0:
		return Fail(d, ErrNoAmounts), false
	case dr == 0:
		return Fail(d, ErrCreditOnly), false
	case cr == 0:
		var credits []int
		for i, l := range d.Lines {
			if l.Side == Credit {
				credits = append(credits, i)
			}
		}
		if len(credits) == 1 {
			d.Lines[credits[0]].Amount = dr
		} else {
			kept := d.Lines[:0]
			for _, l := range d.Lines {
				if l.Side == Debit || l.Total() != 0 {
					kept = append(kept, l)
				}
			}
			d.Lines = append(kept, Line{
				AccountCode: e.profile.CashAccount,
				Amount:      dr,
				Side:        Credit,
				Note:        "cash (payment method not documented)",
			})
		}
		e.logger.Debug("synthesized credit side", zap.Float64("amount", dr))
	}

	dr, cr = d.Totals()
	diff := Round2(dr - cr)
	if diff == 0 {
		return Result{}, true
	}
	if limit := e.profile.MaxResidual; limit > 0 && math.Abs(diff) > limit+Epsilon/2 {
		return failf(d, ErrUnbalanced, "debit %.2f, credit %.2f: a difference of %.2f is too large to absorb", dr, cr, math.Abs(diff)), false
	}
	want := Credit
	if diff < 0 {
		want = Debit
		diff = -diff
	}
	e.logger.Debug("absorbed residual", zap.Float64("amount", diff), zap.String("side", string(want)))
	for i := range d.Lines {
		if d.Lines[i].Side == want {
			d.Lines[i].Amount = Round2(d.Lines[i].Amount + diff)
			break
		}
	}
	return Result{}, true
}

func (e *Engine) systemAccount(code string) bool {
	return code != "" && (code == e.profile.CashAccount || code == e.profile.InputTaxAccount)
}

func resolveAttachments(d *VoucherDraft, docs Documents, files []types.FileID) (Result, bool) {
	if len(files) == 0 {
		d.Attachments = nil
		return Result{}, true
	}
	if len(d.Attachments) == 0 {
		for _, f := range files {
			d.Attachments = append(d.Attachments, string(f))
		}
		return Result{}, true
	}
	inSession := make(map[types.FileID]bool, len(files))
	for _, f := range files {
		inSession[f] = true
	}
	resolved := make([]string, 0, len(d.Attachments))
	for _, token := range d.Attachments {
		id := types.FileID(token)
		if !inSession[id] {
			if docs == nil {
				return failf(d, ErrBadAttachment, "%s", token), false
			}
			var ok bool
			id, ok = docs.ResolveAttachmentToken(token)
			if !ok || !inSession[id] {
				return failf(d, ErrBadAttachment, "%s", token), false
			}
		}
		if !containsString(resolved, string(id)) {
			resolved = append(resolved, string(id))
		}
	}
	d.Attachments = resolved
	return Result{}, true
}

func reconcile(d *VoucherDraft, facts docFacts) []string {
	if facts.gross <= 0 {
		return nil
	}
	dr, _ := d.Totals()
	if Equal(dr, facts.gross) {
		return nil
	}
	return []string{fmt.Sprintf("voucher total %.2f differs from document total %.2f", dr, facts.gross)}
}

// docFacts are the amounts extracted from the document session's analyses.
type docFacts struct {
	gross     float64
	tax       float64
	rate      float64
	issueDate string
}

func documentFacts(docs Documents, files []types.FileID) docFacts {
	var facts docFacts
	if docs == nil {
		return facts
	}
	for _, id := range files {
		doc, ok := docs.Resolve(id)
		if !ok || len(doc.Analysis) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(doc.Analysis, &m); err != nil {
			continue
		}
		if facts.issueDate == "" {
			facts.issueDate = str(m, "issueDate", "invoiceDate", "date", "transactionDate")
		}
		if facts.gross > 0 {
			continue
		}
		if gross, ok := num(m, "totalAmount", "grossAmount", "total"); ok && gross > 0 {
			facts.gross = gross
			facts.tax, _ = num(m, "taxAmount", "tax", "consumptionTax")
			facts.rate, _ = num(m, "taxRate")
		}
	}
	return facts
}

func periodQuestion(date string) string {
	return fmt.Sprintf("The accounting period for %s is closed or not yet open. Which posting date should be used (YYYY-MM-DD)?", date)
}

func fieldLabel(field string) string {
	switch field {
	case "customerId":
		return "a customer"
	case "vendorId":
		return "a vendor"
	case "departmentId":
		return "a department"
	case "employeeId":
		return "an employee"
	}
	return field
}

func unique(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
