package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Epsilon is the tolerance for debit/credit equality.
const Epsilon = 0.01

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Equal compares two amounts to the cent.
func Equal(a, b float64) bool {
	return math.Abs(Round2(a)-Round2(b)) < Epsilon/2
}

// Number reads a loosely typed amount: JSON numbers, or strings such as
// "11,000", "¥11,000" and "1 234.50".
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		s = strings.NewReplacer(",", "", " ", "", "¥", "", "￥", "", "$", "", "€", "", "円", "", "元", "").Replace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
