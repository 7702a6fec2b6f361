// Package aggregate cleans consolidated records, resolves the account
// hierarchy and computes per-operator expense statistics.
package aggregate

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
)

// Drop reasons reported in a DropSummary.
const (
	ReasonNegativeOrMissingAmount = "negative_or_missing_amount"
	ReasonMissingTaxID            = "missing_tax_id"
	ReasonMissingGroupKey         = "missing_group_key"
)

// DropSummary counts records removed per reason.
type DropSummary map[string]int

// Total returns the number of dropped records.
func (d DropSummary) Total() int {
	n := 0
	for _, c := range d {
		n += c
	}
	return n
}

// Reasons returns the reasons with at least one drop, sorted.
func (d DropSummary) Reasons() []string {
	out := make([]string, 0, len(d))
	for r, c := range d {
		if c > 0 {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// Clean drops records with a null or negative amount and records without a
// tax id. Input order is preserved.
func Clean(records []model.RawRecord) ([]model.RawRecord, DropSummary) {
	drops := DropSummary{}
	out := make([]model.RawRecord, 0, len(records))
	for _, r := range records {
		switch {
		case r.Amount == nil || r.Amount.IsNegative():
			drops[ReasonNegativeOrMissingAmount]++
		case r.TaxID == nil || *r.TaxID == "":
			drops[ReasonMissingTaxID]++
		default:
			out = append(out, r)
		}
	}

	if n := drops.Total(); n > 0 {
		zap.L().With(zap.String("component", "aggregate.clean")).Info("records dropped",
			zap.Int("dropped", n),
			zap.Int("kept", len(out)),
			zap.Any("reasons", map[string]int(drops)),
		)
	}
	return out, drops
}
