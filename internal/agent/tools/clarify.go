package tools

import (
	"context"
	"encoding/json"

	"github.com/user/ledgerclaw/internal/agent"
	"github.com/user/ledgerclaw/internal/types"
)

// RequestClarification asks the user and ends the loop.
type RequestClarification struct{}

func (RequestClarification) Name() string { return "request_clarification" }
func (RequestClarification) Description() string {
	return "Ask the user for missing or ambiguous information instead of guessing. The turn ends after this call."
}
func (RequestClarification) Parameters() json.RawMessage {
	return schema(`{
		"type": "object",
		"properties": {
			"question": {"type": "string"},
			"missing_field": {"type": "string", "description": "Field the answer fills, e.g. postingDate or lines[0].customerId"},
			"documentSessionId": {"type": "string"},
			"accountCode": {"type": "string"},
			"detail": {"type": "string"}
		},
		"required": ["question"]
	}`)
}

func (RequestClarification) Execute(_ context.Context, args json.RawMessage, _ *agent.ExecContext) (*agent.Result, error) {
	p, bad := decode(args)
	if bad != nil {
		return bad, nil
	}
	q := p.str("question", "message")
	if q == "" {
		return agent.Failure("question is required"), nil
	}
	data, _ := json.Marshal(map[string]string{"status": "clarification_requested"})
	return &agent.Result{
		Model:     data,
		BreakLoop: true,
		Clarification: &types.ClarificationRequest{
			Question:          q,
			Detail:            p.str("detail"),
			MissingField:      p.str("missing_field", "missingField", "field"),
			DocumentSessionID: types.DocumentSessionID(p.str("documentSessionId", "document_session_id")),
			AccountCode:       p.str("accountCode", "account_code"),
		},
	}, nil
}
