package agent

import (
	"github.com/user/ledgerclaw/internal/documents"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/types"
)

// PendingAnswer is a clarification answer the run must honor.
type PendingAnswer struct {
	QuestionID types.QuestionID
	Field      string
	Value      string
}

// ExecContext is the per-run state handed to every tool. A run owns its
// context exclusively; it is never shared between concurrent runs.
type ExecContext struct {
	SessionID   types.SessionID
	RunID       types.RunID
	TaskID      types.TaskID
	Company     string
	Language    string
	ScenarioKey string

	Registry  *documents.Registry
	Whitelist *ledger.Whitelist
	Pending   *PendingAnswer

	vouchers []string
}

// NewExecContext creates a context around registry. A nil registry gets an
// empty one.
func NewExecContext(sessionID types.SessionID, runID types.RunID, registry *documents.Registry) *ExecContext {
	if registry == nil {
		registry = documents.NewRegistry(0)
	}
	return &ExecContext{
		SessionID: sessionID,
		RunID:     runID,
		Registry:  registry,
		Whitelist: ledger.NewWhitelist(),
	}
}

// MarkVoucherCreated records a committed voucher number.
func (ec *ExecContext) MarkVoucherCreated(voucherNo string) {
	ec.vouchers = append(ec.vouchers, voucherNo)
}

// VoucherCreated reports whether this run committed any voucher.
func (ec *ExecContext) VoucherCreated() bool {
	return len(ec.vouchers) > 0
}

// Vouchers lists voucher numbers committed in this run.
func (ec *ExecContext) Vouchers() []string {
	return append([]string(nil), ec.vouchers...)
}

// ApproveAccount adds a looked-up account to the whitelist. It never turns
// enforcement on; only scenario account hints do that.
func (ec *ExecContext) ApproveAccount(code string) {
	ec.Whitelist.Approve(code, false)
}

// PendingValue returns the pending answer for field, if any.
func (ec *ExecContext) PendingValue(field string) (string, bool) {
	if ec.Pending == nil || ec.Pending.Field != field {
		return "", false
	}
	return ec.Pending.Value, true
}

// DefaultDocumentSession is the active document session, or the only one
// when exactly one is registered.
func (ec *ExecContext) DefaultDocumentSession() types.DocumentSessionID {
	if active := ec.Registry.Active(); active != "" {
		return active
	}
	if all := ec.Registry.DocumentSessions(); len(all) == 1 {
		return all[0]
	}
	return ""
}
