package clarify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/ledgerclaw/internal/ledger"
)

// DraftPatcher writes an answer into a frozen tool payload.
type DraftPatcher interface {
	Patch(args json.RawMessage, field, value string) (json.RawMessage, error)
}

// PatcherFunc adapts a function to DraftPatcher.
type PatcherFunc func(args json.RawMessage, field, value string) (json.RawMessage, error)

func (f PatcherFunc) Patch(args json.RawMessage, field, value string) (json.RawMessage, error) {
	return f(args, field, value)
}

// VoucherPatcher patches voucher payloads through the typed draft.
var VoucherPatcher = PatcherFunc(func(args json.RawMessage, field, value string) (json.RawMessage, error) {
	d, err := ledger.DecodeDraft(args)
	if err != nil {
		return nil, err
	}
	if err := d.Patch(field, value); err != nil {
		return nil, err
	}
	return d.Arguments(), nil
})

// GenericPatcher sets a dotted path ("customer.code") on a JSON object,
// creating intermediate objects as needed.
var GenericPatcher = PatcherFunc(func(args json.RawMessage, field, value string) (json.RawMessage, error) {
	root := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &root); err != nil {
			return nil, fmt.Errorf("frozen payload is not a JSON object: %w", err)
		}
	}
	parts := strings.Split(field, ".")
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
	return json.Marshal(root)
})
