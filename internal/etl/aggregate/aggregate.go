package aggregate

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/model"
)

type groupKey struct {
	legalName string
	state     string
}

type periodKey struct {
	group   groupKey
	year    string
	quarter string
}

// QuarterlyTotals sums amounts per operator-state and period. Records with
// a null legal name or state cannot be grouped and are counted in drops.
func QuarterlyTotals(records []model.RawRecord, drops DropSummary) []model.QuarterlyTotal {
	idx := make(map[periodKey]int)
	var totals []model.QuarterlyTotal
	for _, r := range records {
		if r.LegalName == nil || r.State == nil || r.Amount == nil {
			if drops != nil {
				drops[ReasonMissingGroupKey]++
			}
			continue
		}
		k := periodKey{
			group:   groupKey{legalName: *r.LegalName, state: *r.State},
			year:    r.Year,
			quarter: r.Quarter,
		}
		i, ok := idx[k]
		if !ok {
			i = len(totals)
			idx[k] = i
			totals = append(totals, model.QuarterlyTotal{
				LegalName: k.group.legalName,
				State:     k.group.state,
				Year:      k.year,
				Quarter:   k.quarter,
				Sum:       decimal.Zero,
			})
		}
		totals[i].Sum = totals[i].Sum.Add(*r.Amount)
	}
	return totals
}

// Aggregate computes lifetime statistics per operator-state over the
// quarterly sums. The standard deviation is the sample (n-1) deviation and
// is 0 for groups with a single quarter. Output is ordered by total
// descending; ties keep (legal name, state) order.
func Aggregate(records []model.RawRecord, drops DropSummary) []model.AggregateStat {
	quarterly := QuarterlyTotals(records, drops)

	values := make(map[groupKey][]decimal.Decimal)
	var keys []groupKey
	for _, q := range quarterly {
		k := groupKey{legalName: q.LegalName, state: q.State}
		if _, ok := values[k]; !ok {
			keys = append(keys, k)
		}
		values[k] = append(values[k], q.Sum)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].legalName != keys[j].legalName {
			return keys[i].legalName < keys[j].legalName
		}
		return keys[i].state < keys[j].state
	})

	stats := make([]model.AggregateStat, 0, len(keys))
	for _, k := range keys {
		total, mean, sd := describe(values[k])
		stats = append(stats, model.AggregateStat{
			LegalName:       k.legalName,
			State:           k.state,
			TotalAmount:     total,
			MeanQuarterly:   mean,
			StdDevQuarterly: sd,
			QuarterCount:    len(values[k]),
		})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].TotalAmount > stats[j].TotalAmount
	})

	zap.L().With(zap.String("component", "aggregate")).Info("aggregation complete",
		zap.Int("quarterly_totals", len(quarterly)),
		zap.Int("groups", len(stats)),
	)
	return stats
}

// describe returns sum, mean and sample standard deviation.
func describe(vals []decimal.Decimal) (float64, float64, float64) {
	n := len(vals)
	if n == 0 {
		return 0, 0, 0
	}
	sum := decimal.Sum(vals[0], vals[1:]...)
	mean := sum.Div(decimal.NewFromInt(int64(n)))
	if n < 2 {
		return sum.InexactFloat64(), mean.InexactFloat64(), 0
	}

	m := mean.InexactFloat64()
	var ss float64
	for _, v := range vals {
		d := v.InexactFloat64() - m
		ss += d * d
	}
	return sum.InexactFloat64(), m, math.Sqrt(ss / float64(n-1))
}
