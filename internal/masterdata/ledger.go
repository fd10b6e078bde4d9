package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/types"
)

// Voucher is a committed voucher.
type Voucher struct {
	No        string               `json:"voucherNo"`
	Company   string               `json:"company"`
	CreatedAt time.Time            `json:"createdAt"`
	Draft     *ledger.VoucherDraft `json:"voucher"`
}

// RequiredFieldError reports a line missing a field its account needs.
// Its message has the form "lines[N].field required by account CODE".
type RequiredFieldError struct {
	Line    int
	Field   string
	Account string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("lines[%d].%s required by account %s", e.Line, e.Field, e.Account)
}

// PeriodOpen implements ledger.Periods. Dates that do not parse are treated
// as open and left for the engine to reject.
func (m *Memory) PeriodOpen(ctx context.Context, date string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d, ok := ledger.NormalizeDate(date)
	if !ok {
		return true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lockedThrough != "" && d <= m.lockedThrough {
		return false, nil
	}
	return !m.closed[d[:7]], nil
}

// ClosePeriod closes a month given as YYYY-MM.
func (m *Memory) ClosePeriod(month string) {
	m.mu.Lock()
	m.closed[month] = true
	m.mu.Unlock()
}

// CommitVoucher implements ledger.Committer. It rechecks balance, period and
// the line fields each account requires before numbering the voucher.
func (m *Memory) CommitVoucher(ctx context.Context, d *ledger.VoucherDraft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d == nil || len(d.Lines) == 0 {
		return "", ledger.ErrEmptyDraft
	}
	if !d.Balanced() {
		dr, cr := d.Totals()
		return "", fmt.Errorf("%w: debit %.2f, credit %.2f", ledger.ErrUnbalanced, dr, cr)
	}
	date, ok := ledger.NormalizeDate(d.Header.PostingDate)
	if !ok {
		return "", fmt.Errorf("invalid posting date %q", d.Header.PostingDate)
	}
	open, err := m.PeriodOpen(ctx, date)
	if err != nil {
		return "", err
	}
	if !open {
		return "", fmt.Errorf("%w: %s", ledger.ErrPeriodClosed, d.Header.PostingDate)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range d.Lines {
		acct, ok := m.accounts[l.AccountCode]
		if !ok {
			return "", fmt.Errorf("%w: %s", ledger.ErrMissingAccount, l.AccountCode)
		}
		for _, field := range acct.Requires {
			if lineField(l, field) == "" {
				return "", &RequiredFieldError{Line: i, Field: field, Account: acct.Code}
			}
		}
		if acct.OpenItem && l.CustomerID == "" && l.VendorID == "" {
			return "", &RequiredFieldError{Line: i, Field: counterpartyField(acct), Account: acct.Code}
		}
	}

	month := strings.ReplaceAll(date[:7], "-", "")
	prefix := "V" + month
	no := fmt.Sprintf("%s-%04d", prefix, m.next(prefix))
	m.vouchers[no] = &Voucher{No: no, Company: m.company, CreatedAt: m.now(), Draft: d.Clone()}
	m.logger.Info("voucher stored", zap.String("voucher_no", no), zap.Int("lines", len(d.Lines)))
	return no, nil
}

func lineField(l ledger.Line, field string) string {
	switch field {
	case "customerId":
		return l.CustomerID
	case "vendorId":
		return l.VendorID
	case "departmentId":
		return l.DepartmentID
	case "employeeId":
		return l.EmployeeID
	case "note":
		return l.Note
	}
	return "set"
}

func counterpartyField(a ledger.Account) string {
	if a.Category == ledger.CategoryLiability {
		return "vendorId"
	}
	return "customerId"
}

// VoucherByNumber returns a committed voucher.
func (m *Memory) VoucherByNumber(ctx context.Context, no string) (*Voucher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vouchers[strings.TrimSpace(no)]
	if !ok {
		return nil, fmt.Errorf("voucher %s: %w", no, types.ErrNotFound)
	}
	return v, nil
}

// ErrNoRate is returned when no exchange rate is configured for a pair.
var ErrNoRate = errors.New("no exchange rate configured")

// Rate returns the rate converting one unit of from into to.
func (m *Memory) Rate(ctx context.Context, from, to string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	from, to = strings.ToUpper(strings.TrimSpace(from)), strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return 1, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rates[from+"/"+to]; ok && r > 0 {
		return r, nil
	}
	if r, ok := m.rates[to+"/"+from]; ok && r > 0 {
		return 1 / r, nil
	}
	return 0, fmt.Errorf("%w: %s/%s", ErrNoRate, from, to)
}
