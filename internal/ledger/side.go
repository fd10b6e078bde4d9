package ledger

import "strings"

// Side is the debit or credit column of a line.
type Side string

const (
	Debit  Side = "DR"
	Credit Side = "CR"
)

var sideSynonyms = map[string]Side{
	"dr": Debit, "d": Debit, "debit": Debit, "借": Debit, "借方": Debit, "debe": Debit,
	"cr": Credit, "c": Credit, "credit": Credit, "貸": Credit, "貸方": Credit, "贷": Credit, "贷方": Credit, "haber": Credit,
}

// ParseSide maps any accepted side label to DR or CR.
func ParseSide(s string) (Side, bool) {
	side, ok := sideSynonyms[strings.ToLower(strings.TrimSpace(s))]
	return side, ok
}
