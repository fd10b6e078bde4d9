package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/ledger"
)

// CheckAccountingPeriod reports whether a posting date can be booked.
type CheckAccountingPeriod struct{ periods ledger.Periods }

func (c *CheckAccountingPeriod) Name() string { return "check_accounting_period" }
func (c *CheckAccountingPeriod) Description() string {
	return "Check whether the accounting period of a posting date is open for booking."
}
func (c *CheckAccountingPeriod) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {"posting_date": {"type": "string", "description": "YYYY-MM-DD"}},
		"required": ["posting_date"]
	}`)
}

func (c *CheckAccountingPeriod) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	raw := p.str("posting_date", "postingDate", "date")
	date, ok := ledger.NormalizeDate(raw)
	if !ok {
		return agent.Failure(fmt.Sprintf("posting_date %q is not a valid date", raw)), nil
	}
	open, err := c.periods.PeriodOpen(ctx, date)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(fmt.Sprintf("period check failed: %v", err)), nil
	}
	msg := fmt.Sprintf("The accounting period of %s is open.", date)
	if !open {
		msg = fmt.Sprintf("The accounting period of %s is closed. Ask the user for another posting date.", date)
	}
	return agent.Success(map[string]any{
		"postingDate": date,
		"exists":      true,
		"isOpen":      open,
		"message":     msg,
	}), nil
}

// VerifyInvoiceRegistration checks a qualified invoice registration number.
type VerifyInvoiceRegistration struct{ partners PartnerDirectory }

func (v *VerifyInvoiceRegistration) Name() string { return "verify_invoice_registration" }
func (v *VerifyInvoiceRegistration) Description() string {
	return "Validate an invoice registration number (T + 13 digits) and find the partner that holds it."
}
func (v *VerifyInvoiceRegistration) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {"registration_no": {"type": "string"}},
		"required": ["registration_no"]
	}`)
}

func (v *VerifyInvoiceRegistration) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	raw := p.str("registration_no", "registrationNo", "reg_no")
	if raw == "" {
		return agent.Failure("registration_no is required"), nil
	}
	check, err := v.partners.VerifyRegistration(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(fmt.Sprintf("registration check failed: %v", err)), nil
	}
	out := map[string]any{
		"valid":      check.FormatValid,
		"normalized": check.Normalized,
		"registered": check.Registered,
	}
	switch {
	case !check.FormatValid:
		out["reason"] = "expected T followed by 13 digits"
	case !check.Registered:
		out["reason"] = "format is valid but no known partner holds this number"
	default:
		out["partnerCode"] = check.Partner.Code
		out["partnerName"] = check.Partner.Name
	}
	return agent.Success(out), nil
}
