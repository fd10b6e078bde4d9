// Package tools holds the operations the reasoning model may invoke.
package tools

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/masterdata"
	"github.com/user/ledgerclaw/internal/metrics"
)

// AccountSearcher resolves account names and codes.
type AccountSearcher interface {
	SearchAccounts(ctx context.Context, query string) (*masterdata.AccountMatch, error)
}

// PartnerDirectory looks up and registers business partners.
type PartnerDirectory interface {
	SearchPartners(ctx context.Context, kind, query string) ([]masterdata.Partner, error)
	CreatePartner(ctx context.Context, p masterdata.Partner) (masterdata.Partner, error)
	VerifyRegistration(ctx context.Context, regNo string) (masterdata.RegistrationCheck, error)
}

// MaterialSearcher looks up sellable materials.
type MaterialSearcher interface {
	SearchMaterials(ctx context.Context, query string) ([]masterdata.Material, error)
}

// RateSource returns exchange rates.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (float64, error)
}

// VoucherReader reads committed vouchers.
type VoucherReader interface {
	VoucherByNumber(ctx context.Context, no string) (*masterdata.Voucher, error)
}

// OrderTaker registers sales orders.
type OrderTaker interface {
	CreateSalesOrder(ctx context.Context, order masterdata.SalesOrder) (*masterdata.SalesOrder, error)
}

// Deps are the collaborators the tool set is built from.
type Deps struct {
	Accounts  AccountSearcher
	Partners  PartnerDirectory
	Materials MaterialSearcher
	Periods   ledger.Periods
	Rates     RateSource
	Vouchers  VoucherReader
	Orders    OrderTaker
	Engine    *ledger.Engine
	Profile   ledger.CompanyProfile
	Metrics   *metrics.Metrics
}

// FromMemory wires every collaborator to the in-memory master data.
func FromMemory(m *masterdata.Memory, engine *ledger.Engine, mx *metrics.Metrics) Deps {
	return Deps{
		Accounts:  m,
		Partners:  m,
		Materials: m,
		Periods:   m,
		Rates:     m,
		Vouchers:  m,
		Orders:    m,
		Engine:    engine,
		Profile:   engine.Profile(),
		Metrics:   mx,
	}
}

// All returns the full tool set.
func All(d Deps) []agent.Tool {
	return []agent.Tool{
		&LookupAccount{accounts: d.Accounts},
		&LookupPartner{partners: d.Partners, kind: masterdata.KindCustomer},
		&LookupPartner{partners: d.Partners, kind: masterdata.KindVendor},
		&LookupMaterial{materials: d.Materials},
		&CheckAccountingPeriod{periods: d.Periods},
		&VerifyInvoiceRegistration{partners: d.Partners},
		&CalculateTax{defaultRate: d.Profile.DefaultTaxRate},
		&ConvertCurrency{rates: d.Rates, profile: d.Profile},
		&FormatDate{},
		&ExtractInvoiceData{},
		&CreateVoucher{engine: d.Engine, metrics: d.Metrics},
		&GetVoucher{vouchers: d.Vouchers},
		&CreateSalesOrder{orders: d.Orders},
		&CreateBusinessPartner{partners: d.Partners},
		&RequestClarification{},
	}
}

// params is a decoded argument object. Models use several spellings for the
// same field, so every getter takes a list of keys.
type params map[string]any

func decode(args json.RawMessage) (params, *agent.Result) {
	var p params
	if err := json.Unmarshal(args, &p); err != nil || p == nil {
		return nil, agent.Failure("arguments must be a JSON object")
	}
	return p, nil
}

func (p params) str(keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
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

func (p params) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return ledger.Number(v)
		}
	}
	return 0, false
}

func (p params) boolean(def bool, keys ...string) bool {
	for _, k := range keys {
		switch v := p[k].(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "1":
				return true
			case "false", "no", "0":
				return false
			}
		}
	}
	return def
}

func (p params) object(key string) params {
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	return nil
}

func schema(s string) json.RawMessage {
	return json.RawMessage(s)
}
