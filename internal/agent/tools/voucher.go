package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/ledger"
	"github.com/user/ledgerclaw/internal/metrics"
	"github.com/user/ledgerclaw/internal/types"
)

// CreateVoucherName is the tool whose frozen drafts clarifications patch.
const CreateVoucherName = "create_voucher"

// CreateVoucher runs a draft through the consistency engine and commits it.
type CreateVoucher struct {
	engine  *ledger.Engine
	metrics *metrics.Metrics
}

func (c *CreateVoucher) Name() string { return CreateVoucherName }
func (c *CreateVoucher) Description() string {
	return "Create a double-entry voucher. Lines must balance; use only account codes returned by lookup_account. " +
		"Attachments must be files of the given documentSessionId."
}
func (c *CreateVoucher) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {
			"documentSessionId": {"type": "string"},
			"header": {
				"type": "object",
				"properties": {
					"postingDate": {"type": "string", "description": "YYYY-MM-DD"},
					"summary": {"type": "string"},
					"currency": {"type": "string"},
					"partnerCode": {"type": "string"},
					"partnerName": {"type": "string"},
					"invoiceRegistrationNo": {"type": "string"}
				},
				"required": ["postingDate"]
			},
			"lines": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"accountCode": {"type": "string"},
						"amount": {"type": "number"},
						"side": {"type": "string", "enum": ["DR", "CR"]},
						"note": {"type": "string"},
						"customerId": {"type": "string"},
						"vendorId": {"type": "string"},
						"tax": {
							"type": "object",
							"properties": {
								"accountCode": {"type": "string"},
								"amount": {"type": "number"},
								"rate": {"type": "number"}
							}
						}
					},
					"required": ["accountCode", "amount", "side"]
				}
			},
			"attachments": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["header", "lines"]
	}`)
}

func (c *CreateVoucher) Execute(ctx context.Context, args json.RawMessage, ec *agent.ExecContext) (*agent.Result, error) {
	draft, err := ledger.DecodeDraft(args)
	if err != nil {
		return agent.Failure(err.Error()), nil
	}
	if draft.DocumentSessionID == "" {
		draft.DocumentSessionID = string(ec.DefaultDocumentSession())
	}
	if ec.Pending != nil && ec.Pending.Field != "" {
		// The user's answer wins over whatever the model proposed.
		if err := draft.Patch(ec.Pending.Field, ec.Pending.Value); err != nil && !errors.Is(err, ledger.ErrUnknownField) {
			return agent.Failure(err.Error()), nil
		}
	}

	res := c.engine.Commit(ctx, ledger.Input{Draft: draft, Documents: ec.Registry, Whitelist: ec.Whitelist})
	c.metrics.Voucher(res.Kind.String())

	switch res.Kind {
	case ledger.KindOk:
		ec.MarkVoucherCreated(res.VoucherNo)
		dr, cr := res.Draft.Totals()
		return agent.Success(map[string]any{
			"status":      "created",
			"voucherNo":   res.VoucherNo,
			"debitTotal":  ledger.Round2(dr),
			"creditTotal": ledger.Round2(cr),
			"voucher":     res.Draft,
			"warnings":    res.Warnings,
		}, fmt.Sprintf("Voucher %s created (debit %s = credit %s %s).",
			res.VoucherNo, formatAmount(dr), formatAmount(cr), res.Draft.Header.Currency)), nil

	case ledger.KindClarify:
		data, _ := json.Marshal(map[string]any{
			"status":   "clarification_required",
			"question": res.Reason,
			"fields":   res.Fields,
		})
		q := &types.ClarificationRequest{
			Question:     res.Reason,
			Detail:       "voucher:" + res.MissingField(),
			MissingField: res.MissingField(),
			AccountCode:  res.AccountCode,
		}
		if res.Draft != nil {
			q.DocumentSessionID = types.DocumentSessionID(res.Draft.DocumentSessionID)
			q.Draft = &types.DraftOperation{Tool: CreateVoucherName, Arguments: res.Draft.Arguments()}
		}
		return &agent.Result{Model: data, Clarification: q}, nil
	}

	if ctx.Err() != nil && errors.Is(res.Err, ctx.Err()) {
		return nil, res.Err
	}
	return agent.Failure(res.Reason), nil
}

// GetVoucher reads a committed voucher.
type GetVoucher struct{ vouchers VoucherReader }

func (g *GetVoucher) Name() string        { return "get_voucher_by_number" }
func (g *GetVoucher) Description() string { return "Fetch a committed voucher by its number." }
func (g *GetVoucher) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {"voucher_no": {"type": "string"}},
		"required": ["voucher_no"]
	}`)
}

func (g *GetVoucher) Execute(ctx context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	no := p.str("voucher_no", "voucherNo", "number")
	if no == "" {
		return agent.Failure("voucher_no is required"), nil
	}
	v, err := g.vouchers.VoucherByNumber(ctx, no)
	if errors.Is(err, types.ErrNotFound) {
		return agent.Success(map[string]any{"found": false, "voucherNo": no}), nil
	}
	if err != nil {
		return nil, err
	}
	return agent.Success(map[string]any{"found": true, "voucherNo": v.No, "createdAt": v.CreatedAt, "voucher": v.Draft}), nil
}

// ExtractInvoiceData returns what intake extracted from a registered document.
type ExtractInvoiceData struct{}

func (ExtractInvoiceData) Name() string { return "extract_invoice_data" }
func (ExtractInvoiceData) Description() string {
	return "Return the extracted fields of a document. Name it by file id or documentSessionId. " +
		"\"#n\" selects the n-th page of the current document, not document label #n. Defaults to the current document."
}
func (ExtractInvoiceData) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {"document": {"type": "string", "description": "File id or documentSessionId; #n is the n-th page of the current document"}}
	}`)
}

func (ExtractInvoiceData) Execute(_ context.Context, args json.RawMessage, ec *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	fileID := ec.Registry.DefaultFile()
	if token := p.str("document", "fileId", "label", "documentSessionId"); token != "" {
		id, ok := ec.Registry.ResolveAttachmentToken(token)
		if !ok {
			return agent.Failure(fmt.Sprintf("unknown document %q", token)), nil
		}
		fileID = id
	}
	if fileID == "" {
		return agent.Failure("no document is selected; name one by file id or documentSessionId"), nil
	}
	d, ok := ec.Registry.Resolve(fileID)
	if !ok {
		return agent.Failure(fmt.Sprintf("unknown document %q", fileID)), nil
	}
	if len(d.Analysis) == 0 {
		return agent.Failure(fmt.Sprintf("no extracted data for %s; ask the user for the figures", d.Label)), nil
	}
	return agent.Success(map[string]any{
		"fileId":            d.FileID,
		"documentSessionId": d.DocumentSessionID,
		"label":             d.Label,
		"fileName":          d.FileName,
		"analysis":          d.Analysis,
	}), nil
}
