package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/masterdata"
)

var querySchema = schema(`{
	"type": "object",
	"properties": {
		"query": {"type": "string", "description": "Code, name or alias to search for"}
	},
	"required": ["query"]
}`)

// LookupAccount resolves an account and approves it for vouchers in this run.
type LookupAccount struct{ accounts AccountSearcher }

func (l *LookupAccount) Name() string { return "lookup_account" }
func (l *LookupAccount) Description() string {
	return "Find a chart-of-accounts entry by code, name or alias. Only accounts found here may be used in vouchers."
}
func (l *LookupAccount) Parameters() json.RawMessage { return querySchema }

func (l *LookupAccount) Execute(ctx context.Context, args json.RawMessage, ec *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	q := p.str("query", "name", "code", "account")
	if q == "" {
		return agent.Failure("query is required"), nil
	}
	match, err := l.accounts.SearchAccounts(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(fmt.Sprintf("account search failed: %v", err)), nil
	}
	if match == nil {
		return agent.Success(map[string]any{
			"found":   false,
			"query":   q,
			"message": fmt.Sprintf("No account matches %q. Try another name or ask the user.", q),
		}), nil
	}
	ec.ApproveAccount(match.Account.Code)
	return agent.Success(map[string]any{
		"found":       true,
		"query":       q,
		"accountCode": match.Account.Code,
		"accountName": match.Account.Name,
		"category":    match.Account.Category,
		"aliases":     match.Account.Aliases,
		"matchMode":   match.Mode,
		"requires":    match.Account.Requires,
	}), nil
}

// LookupPartner searches customers or vendors.
type LookupPartner struct {
	partners PartnerDirectory
	kind     string
}

func (l *LookupPartner) Name() string { return "lookup_" + l.kind }
func (l *LookupPartner) Description() string {
	return fmt.Sprintf("Find a %s by code, name or alias. Returns up to 5 candidates.", l.kind)
}
func (l *LookupPartner) Parameters() json.RawMessage { return querySchema }

func (l *LookupPartner) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	q := p.str("query", "name", "code")
	if q == "" {
		return agent.Failure("query is required"), nil
	}
	found, err := l.partners.SearchPartners(ctx, l.kind, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(fmt.Sprintf("%s search failed: %v", l.kind, err)), nil
	}
	results := make([]map[string]any, 0, len(found))
	for _, pt := range found {
		results = append(results, map[string]any{
			"code":           pt.Code,
			"name":           pt.Name,
			"registrationNo": pt.RegistrationNo,
		})
	}
	return agent.Success(map[string]any{"found": len(results) > 0, "query": q, "results": results}), nil
}

// LookupMaterial searches sellable materials.
type LookupMaterial struct{ materials MaterialSearcher }

func (l *LookupMaterial) Name() string { return "lookup_material" }
func (l *LookupMaterial) Description() string {
	return "Find a material (item) by code or name. Returns up to 5 candidates with unit prices."
}
func (l *LookupMaterial) Parameters() json.RawMessage { return querySchema }

func (l *LookupMaterial) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	q := p.str("query", "name", "code")
	if q == "" {
		return agent.Failure("query is required"), nil
	}
	found, err := l.materials.SearchMaterials(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(fmt.Sprintf("material search failed: %v", err)), nil
	}
	if found == nil {
		found = []masterdata.Material{}
	}
	return agent.Success(map[string]any{"found": len(found) > 0, "query": q, "results": found}), nil
}
