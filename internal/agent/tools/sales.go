package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/masterdata"
)

// CreateSalesOrder registers a sales order.
type CreateSalesOrder struct{ orders OrderTaker }

func (c *CreateSalesOrder) Name() string { return "create_sales_order" }
func (c *CreateSalesOrder) Description() string {
	return "Register a sales order. Resolve customerCode with lookup_customer and material codes with lookup_material first."
}
func (c *CreateSalesOrder) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {
			"customerCode": {"type": "string"},
			"orderDate": {"type": "string", "description": "YYYY-MM-DD, defaults to today"},
			"lines": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"materialCode": {"type": "string"},
						"quantity": {"type": "number"},
						"unitPrice": {"type": "number"}
					},
					"required": ["materialCode", "quantity"]
				}
			}
		},
		"required": ["customerCode", "lines"]
	}`)
}

func (c *CreateSalesOrder) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	customer := p.str("customerCode", "customer_code")
	if customer == "" {
		if obj := p.object("customer"); obj != nil {
			customer = obj.str("code", "customerCode")
		}
	}
	if customer == "" {
		return agent.Failure("customerCode is required"), nil
	}

	rawLines, _ := p["lines"].([]any)
	if len(rawLines) == 0 {
		return agent.Failure("lines must contain at least one item"), nil
	}
	order := masterdata.SalesOrder{CustomerCode: customer, OrderDate: p.str("orderDate", "order_date")}
	for i, item := range rawLines {
		m, ok := item.(map[string]any)
		if !ok {
			return agent.Failure(fmt.Sprintf("lines[%d] must be an object", i)), nil
		}
		lp := params(m)
		code := lp.str("materialCode", "material_code", "code")
		if code == "" {
			return agent.Failure(fmt.Sprintf("lines[%d].materialCode is required", i)), nil
		}
		qty, ok := lp.num("quantity", "qty")
		if !ok || qty <= 0 {
			return agent.Failure(fmt.Sprintf("lines[%d].quantity must be greater than zero", i)), nil
		}
		price, _ := lp.num("unitPrice", "unit_price", "price")
		order.Lines = append(order.Lines, masterdata.SalesOrderLine{MaterialCode: code, Quantity: qty, UnitPrice: price})
	}

	created, err := c.orders.CreateSalesOrder(ctx, order)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(err.Error()), nil
	}
	return agent.Success(map[string]any{
		"status":       "created",
		"orderNo":      created.No,
		"customerCode": created.CustomerCode,
		"orderDate":    created.OrderDate,
		"amount":       created.Amount,
		"lines":        created.Lines,
	}, fmt.Sprintf("Sales order %s registered for %s (amount %s).", created.No, created.CustomerCode, formatAmount(created.Amount))), nil
}

// CreateBusinessPartner registers a customer or vendor.
type CreateBusinessPartner struct{ partners PartnerDirectory }

func (c *CreateBusinessPartner) Name() string { return "create_business_partner" }
func (c *CreateBusinessPartner) Description() string {
	return "Register a new customer or vendor. Only call this after lookup found nothing and the user confirmed."
}
func (c *CreateBusinessPartner) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"kind": {"type": "string", "enum": ["customer", "vendor"]},
			"registrationNo": {"type": "string"},
			"aliases": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["name", "kind"]
	}`)
}

func (c *CreateBusinessPartner) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	partner := masterdata.Partner{
		Name:           p.str("name"),
		Kind:           strings.ToLower(p.str("kind", "type")),
		RegistrationNo: masterdata.NormalizeRegistrationNo(p.str("registrationNo", "registration_no")),
	}
	if aliases, ok := p["aliases"].([]any); ok {
		for _, a := range aliases {
			if s, ok := a.(string); ok && strings.TrimSpace(s) != "" {
				partner.Aliases = append(partner.Aliases, strings.TrimSpace(s))
			}
		}
	}
	created, err := c.partners.CreatePartner(ctx, partner)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return agent.Failure(err.Error()), nil
	}
	return agent.Success(map[string]any{
		"status": "created",
		"code":   created.Code,
		"name":   created.Name,
		"kind":   created.Kind,
	}, fmt.Sprintf("Registered %s %s as %s.", created.Kind, created.Name, created.Code)), nil
}

// formatAmount renders an amount with thousands separators.
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
