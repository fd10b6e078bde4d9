package ledger

import "strings"

// Whitelist holds the accounts a run may post to. It only restricts once
// enforcement is switched on.
type Whitelist struct {
	enforce bool
	codes   map[string]bool
	order   []string
}

// NewWhitelist returns an unenforced, empty whitelist.
func NewWhitelist() *Whitelist {
	return &Whitelist{codes: make(map[string]bool)}
}

// Approve adds code; enforce switches enforcement on.
func (w *Whitelist) Approve(code string, enforce bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	if !w.codes[code] {
		w.codes[code] = true
		w.order = append(w.order, code)
	}
	if enforce {
		w.enforce = true
	}
}

// Enforced reports whether unknown codes are rejected.
func (w *Whitelist) Enforced() bool {
	return w != nil && w.enforce
}

// Allowed reports whether code may be used.
func (w *Whitelist) Allowed(code string) bool {
	if !w.Enforced() {
		return true
	}
	return w.codes[strings.TrimSpace(code)]
}

// Codes returns approved codes in approval order.
func (w *Whitelist) Codes() []string {
	if w == nil {
		return nil
	}
	return append([]string(nil), w.order...)
}
