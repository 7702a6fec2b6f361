package extract

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a Brazilian-formatted monetary value where "." groups
// thousands and "," separates decimals. Unparseable input yields nil.
func ParseAmount(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
