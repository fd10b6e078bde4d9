package masterdata

import (
	"context"
	"strings"

	"github.com/user/ledgerclaw/internal/ledger"
)

// Match modes reported by SearchAccounts.
const (
	MatchCode  = "code"
	MatchName  = "name"
	MatchAlias = "alias"
	MatchFuzzy = "fuzzy"
)

// AccountMatch is the result of an account search.
type AccountMatch struct {
	Account ledger.Account
	Mode    string
}

// Account implements ledger.Chart.
func (m *Memory) Account(ctx context.Context, code string) (*ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[strings.TrimSpace(code)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// Accounts lists the chart in code order.
func (m *Memory) Accounts(ctx context.Context) ([]ledger.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Account, 0, len(m.accountOrder))
	for _, code := range m.accountOrder {
		out = append(out, m.accounts[code])
	}
	return out, nil
}

// SearchAccounts tries an exact code, then an exact name, then an exact
// alias, then a substring of name or alias. The first hit wins.
func (m *Memory) SearchAccounts(ctx context.Context, query string) (*AccountMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if a, ok := m.accounts[q]; ok {
		return &AccountMatch{Account: a, Mode: MatchCode}, nil
	}
	lq := fold(q)
	for _, code := range m.accountOrder {
		if a := m.accounts[code]; fold(a.Name) == lq {
			return &AccountMatch{Account: a, Mode: MatchName}, nil
		}
	}
	for _, code := range m.accountOrder {
		a := m.accounts[code]
		for _, alias := range a.Aliases {
			if fold(alias) == lq {
				return &AccountMatch{Account: a, Mode: MatchAlias}, nil
			}
		}
	}
	for _, code := range m.accountOrder {
		a := m.accounts[code]
		if strings.Contains(fold(a.Name), lq) {
			return &AccountMatch{Account: a, Mode: MatchFuzzy}, nil
		}
		for _, alias := range a.Aliases {
			if strings.Contains(fold(alias), lq) {
				return &AccountMatch{Account: a, Mode: MatchFuzzy}, nil
			}
		}
	}
	return nil, nil
}
