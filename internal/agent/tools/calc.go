package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/masterdata"
)

// CalculateTax splits an amount into net and consumption tax.
type CalculateTax struct{ defaultRate float64 }

func (c *CalculateTax) Name() string { return "calculate_tax" }
func (c *CalculateTax) Description() string {
	return "Split an amount into net amount and consumption tax. include_tax=true means the amount is tax-inclusive."
}
func (c *CalculateTax) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {
			"amount": {"type": "number", "description": "Amount, greater than zero"},
			"tax_rate": {"type": "number", "description": "Tax rate in percent (default 10)"},
			"include_tax": {"type": "boolean", "description": "Whether amount already includes tax (default true)"}
		},
		"required": ["amount"]
	}`)
}

func (c *CalculateTax) Execute(_ context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	amount, ok := p.num("amount")
	if !ok || amount <= 0 {
		return agent.Failure("amount must be a number greater than zero"), nil
	}
	rate, ok := p.num("tax_rate", "taxRate", "rate")
	if !ok {
		rate = c.defaultRate
		if rate <= 0 {
			rate = 10
		}
	}
	if rate < 0 || rate > 100 {
		return agent.Failure("tax_rate must be between 0 and 100"), nil
	}
	include := p.boolean(true, "include_tax", "includeTax")

	var gross, net, tax float64
	if include {
		gross = amount
		tax = math.Round(gross * rate / (100 + rate))
		net = gross - tax
	} else {
		net = amount
		tax = math.Round(net * rate / 100)
		gross = net + tax
	}
	return agent.Success(map[string]any{
		"grossAmount": gross,
		"netAmount":   net,
		"taxAmount":   tax,
		"taxRate":     rate,
		"includeTax":  include,
	}), nil
}

// ConvertCurrency converts with an explicit rate or a configured one.
type ConvertCurrency struct {
	rates   RateSource
	profile ledger.CompanyProfile
}

func (c *ConvertCurrency) Name() string { return "convert_currency" }
func (c *ConvertCurrency) Description() string {
	return "Convert an amount between currencies. Pass rate when the document states one."
}
func (c *ConvertCurrency) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {
			"amount": {"type": "number"},
			"from": {"type": "string", "description": "Source currency code"},
			"to": {"type": "string", "description": "Target currency code (default local currency)"},
			"rate": {"type": "number", "description": "Units of 'to' per unit of 'from'"}
		},
		"required": ["amount", "from"]
	}`)
}

func (c *ConvertCurrency) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	amount, ok := p.num("amount")
	if !ok {
		return agent.Failure("amount must be a number"), nil
	}
	local := c.profile.LocalCurrency
	if local == "" {
		local = "JPY"
	}
	from := strings.ToUpper(p.str("from", "from_currency", "fromCurrency"))
	to := strings.ToUpper(p.str("to", "to_currency", "toCurrency"))
	if from == "" {
		from = local
	}
	if to == "" {
		to = local
	}

	rate, explicit := p.num("rate", "exchange_rate", "exchangeRate")
	switch {
	case explicit && rate <= 0:
		return agent.Failure("rate must be greater than zero"), nil
	case explicit:
	case from == to:
		rate = 1
	case c.rates == nil:
		return agent.Failure(fmt.Sprintf("no exchange rate for %s/%s; pass rate explicitly", from, to)), nil
	default:
		r, err := c.rates.Rate(ctx, from, to)
		if errors.Is(err, masterdata.ErrNoRate) {
			return agent.Failure(fmt.Sprintf("no exchange rate for %s/%s; pass rate explicitly", from, to)), nil
		}
		if err != nil {
			return nil, err
		}
		rate = r
	}
	return agent.Success(map[string]any{
		"amount":    amount,
		"from":      from,
		"to":        to,
		"rate":      rate,
		"converted": ledger.Round2(amount * rate),
	}), nil
}

// FormatDate canonicalizes a date to YYYY-MM-DD.
type FormatDate struct{}

func (FormatDate) Name() string { return "format_date" }
func (FormatDate) Description() string {
	return "Normalize a date such as 2024/3/5 or 2024年3月5日 to YYYY-MM-DD."
}
func (FormatDate) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {"date": {"type": "string"}},
		"required": ["date"]
	}`)
}

func (FormatDate) Execute(_ context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	raw := p.str("date", "value")
	d, ok := ledger.NormalizeDate(raw)
	if !ok {
		return agent.Failure(fmt.Sprintf("%q is not a recognizable date", raw)), nil
	}
	return agent.Success(map[string]string{"date": d}), nil
}
