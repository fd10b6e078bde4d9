// Package masterdata is an in-memory stand-in for the business collaborators
// the agent talks to: chart of accounts, partners, materials, accounting
// periods, the voucher ledger and sales orders. It is seeded from JSON.
package masterdata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/ledgerclaw/internal/ledger"
)

// Partner kinds.
const (
	KindCustomer = "customer"
	KindVendor   = "vendor"
)

// Partner is a customer or vendor.
type Partner struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	Aliases        []string `json:"aliases,omitempty"`
	RegistrationNo string   `json:"registrationNo,omitempty"`
}

// Material is a sellable item.
type Material struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
}

// Seed is the JSON document a Memory is built from.
type Seed struct {
	Company   string           `json:"company"`
	Accounts  []ledger.Account `json:"accounts"`
	Partners  []Partner        `json:"partners"`
	Materials []Material       `json:"materials"`
	// ClosedPeriods lists closed months as YYYY-MM.
	ClosedPeriods []string `json:"closedPeriods,omitempty"`
	// LockedThrough closes every date up to and including it.
	LockedThrough string `json:"lockedThrough,omitempty"`
	// Rates are keyed "FROM/TO", e.g. "USD/JPY".
	Rates map[string]float64 `json:"rates,omitempty"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var s Seed
	if err := json.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return s, nil
}

// DefaultSeed is a small chart and partner list good enough to run the agent
// without any company data.
func DefaultSeed() Seed {
	return Seed{
		Company: "default",
		Accounts: []ledger.Account{
			{Code: "1000", Name: "Cash", Category: ledger.CategoryAsset, Aliases: []string{"現金", "现金"}},
			{Code: "1010", Name: "Bank deposits", Category: ledger.CategoryAsset, Aliases: []string{"普通預金", "银行存款"}},
			{Code: "1100", Name: "Accounts receivable", Category: ledger.CategoryAsset, Aliases: []string{"売掛金", "应收账款"}, OpenItem: true, Requires: []string{"customerId"}},
			{Code: "1500", Name: "Input tax", Category: ledger.CategoryAsset, Aliases: []string{"仮払消費税", "进项税"}},
			{Code: "2100", Name: "Accounts payable", Category: ledger.CategoryLiability, Aliases: []string{"買掛金", "应付账款"}, OpenItem: true, Requires: []string{"vendorId"}},
			{Code: "2200", Name: "Accrued expenses", Category: ledger.CategoryLiability, Aliases: []string{"未払金"}},
			{Code: "4000", Name: "Sales", Category: ledger.CategoryRevenue, Aliases: []string{"売上高", "销售收入"}},
			{Code: "6100", Name: "Travel expenses", Category: ledger.CategoryExpense, Aliases: []string{"旅費交通費", "差旅费"}},
			{Code: "6200", Name: "Supplies", Category: ledger.CategoryExpense, Aliases: []string{"消耗品費", "办公用品"}},
			{Code: "6300", Name: "Entertainment", Category: ledger.CategoryExpense, Aliases: []string{"交際費", "招待费"}},
			{Code: "6400", Name: "Communication", Category: ledger.CategoryExpense, Aliases: []string{"通信費", "通讯费"}},
		},
		Partners: []Partner{
			{Code: "C001", Name: "Acme Corporation", Kind: KindCustomer, Aliases: []string{"Acme"}},
			{Code: "C002", Name: "Globex Trading", Kind: KindCustomer},
			{Code: "V001", Name: "Tokyo Office Supply", Kind: KindVendor, RegistrationNo: "T1234567890123"},
		},
		Materials: []Material{
			{Code: "SKU1", Name: "Standard widget", Unit: "pcs", UnitPrice: 1200},
			{Code: "SKU2", Name: "Premium widget", Unit: "pcs", UnitPrice: 2500},
		},
		Rates: map[string]float64{"USD/JPY": 150, "EUR/JPY": 160, "CNY/JPY": 20},
	}
}

// Memory holds one company's master data. It is safe for concurrent use.
type Memory struct {
	mu            sync.RWMutex
	company       string
	accounts      map[string]ledger.Account
	accountOrder  []string
	partners      []Partner
	materials     map[string]Material
	closed        map[string]bool
	lockedThrough string
	rates         map[string]float64
	vouchers      map[string]*Voucher
	orders        map[string]*SalesOrder
	seq           map[string]int
	now           func() time.Time
	logger        *zap.Logger
}

// New builds a Memory from seed.
func New(seed Seed, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Memory{
		company:       seed.Company,
		accounts:      make(map[string]ledger.Account, len(seed.Accounts)),
		materials:     make(map[string]Material, len(seed.Materials)),
		closed:        make(map[string]bool, len(seed.ClosedPeriods)),
		lockedThrough: seed.LockedThrough,
		rates:         make(map[string]float64, len(seed.Rates)),
		vouchers:      make(map[string]*Voucher),
		orders:        make(map[string]*SalesOrder),
		seq:           make(map[string]int),
		now:           time.Now,
		logger:        logger,
	}
	for _, a := range seed.Accounts {
		if _, dup := m.accounts[a.Code]; !dup {
			m.accountOrder = append(m.accountOrder, a.Code)
		}
		m.accounts[a.Code] = a
	}
	sort.Strings(m.accountOrder)
	m.partners = append(m.partners, seed.Partners...)
	for _, mat := range seed.Materials {
		m.materials[mat.Code] = mat
	}
	for _, p := range seed.ClosedPeriods {
		m.closed[strings.TrimSpace(p)] = true
	}
	for k, v := range seed.Rates {
		m.rates[strings.ToUpper(k)] = v
	}
	return m
}

// Company returns the company code the data belongs to.
func (m *Memory) Company() string {
	return m.company
}

// SetClock replaces the clock used for numbering.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) next(prefix string) int {
	m.seq[prefix]++
	return m.seq[prefix]
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
