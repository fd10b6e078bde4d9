package ledger

import "strings"

// CompanyProfile is the per-company configuration the engine is built with.
type CompanyProfile struct {
	Code            string
	LocalCurrency   string
	Currencies      []string
	CashAccount     string
	InputTaxAccount string
	DefaultTaxRate  float64
	// MaxResidual is the largest debit/credit difference absorbed into a
	// line. Anything larger fails so the draft is regenerated.
	MaxResidual float64
	// AccountHints maps a scenario key to its pre-approved account codes.
	AccountHints map[string][]string
}

// DefaultProfile is used when a company has no configuration.
func DefaultProfile() CompanyProfile {
	return CompanyProfile{
		Code:            "default",
		LocalCurrency:   "JPY",
		Currencies:      []string{"JPY", "USD", "EUR", "CNY"},
		CashAccount:     "1000",
		InputTaxAccount: "1500",
		DefaultTaxRate:  10,
		MaxResidual:     1,
	}
}

var currencySynonyms = map[string]string{
	"円": "JPY", "YEN": "JPY", "¥": "JPY", "￥": "JPY",
	"元": "CNY", "RMB": "CNY", "人民币": "CNY",
	"$": "USD", "US$": "USD", "DOLLAR": "USD",
	"€": "EUR", "EURO": "EUR",
}

// NormalizeCurrency maps c onto the allow-list, defaulting to the local currency.
func (p CompanyProfile) NormalizeCurrency(c string) string {
	code := strings.ToUpper(strings.TrimSpace(c))
	if mapped, ok := currencySynonyms[code]; ok {
		code = mapped
	}
	local := strings.ToUpper(p.LocalCurrency)
	if local == "" {
		local = "JPY"
	}
	if code == local {
		return local
	}
	for _, allowed := range p.Currencies {
		if strings.EqualFold(allowed, code) {
			return strings.ToUpper(allowed)
		}
	}
	return local
}

// Hints returns the approved accounts configured for scenario.
func (p CompanyProfile) Hints(scenario string) []string {
	return p.AccountHints[scenario]
}
