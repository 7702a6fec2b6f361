package aggregate

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
)

// DedupResult is the outcome of DeduplicateHierarchy.
type DedupResult struct {
	Records []model.RawRecord
	// Fallback is set when no grand-total row existed and the component
	// accounts were kept instead.
	Fallback bool
}

// DeduplicateHierarchy keeps only expense-subtree rows and, when any row
// carries the grand-total account, only those rows. Summing a total with its
// components would count the same expense twice.
func DeduplicateHierarchy(records []model.RawRecord) DedupResult {
	log := zap.L().With(zap.String("component", "aggregate.dedup"))

	var subtree, totals []model.RawRecord
	for _, r := range records {
		if !strings.HasPrefix(r.AccountCode, model.ExpensePrefix) {
			continue
		}
		subtree = append(subtree, r)
		if r.AccountCode == model.ExpenseTotalAccount {
			totals = append(totals, r)
		}
	}

	if len(totals) > 0 {
		log.Info("using grand-total account", zap.Int("rows", len(totals)))
		return DedupResult{Records: totals}
	}

	log.Warn("grand-total account not found, keeping component accounts",
		zap.Int("rows", len(subtree)),
	)
	return DedupResult{Records: subtree, Fallback: true}
}
