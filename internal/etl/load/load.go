// Package load persists consolidated records and aggregate statistics to Postgres.
package load

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/db"
	"github.com/sells-group/ans-cli/internal/model"
)

// Table names.
const (
	OperatorTable  = "dim_operadoras"
	ExpenseTable   = "fato_despesas"
	AggregateTable = "analise_agregada"
)

// ExpenseBatchSize is the number of fact rows sent per COPY.
const ExpenseBatchSize = 5000

var (
	operatorColumns  = []string{"registro_ans", "cnpj", "razao_social", "uf", "modalidade"}
	expenseColumns   = []string{"registro_ans", "ano", "trimestre", "conta", "valor"}
	aggregateColumns = []string{"razao_social", "uf", "valor_total", "media_trimestral", "desvio_padrao", "qtd_trimestres"}
)

// Loader writes ETL output to the relational store.
type Loader struct {
	pool db.Pool
	log  *zap.Logger
}

// NewLoader creates a Loader backed by pool.
func NewLoader(pool db.Pool) *Loader {
	return &Loader{
		pool: pool,
		log:  zap.L().With(zap.String("component", "load")),
	}
}

// Operators derives the operator dimension from records. The first record
// seen for a registration id wins; records without one are skipped.
func Operators(records []model.RawRecord) []model.Operator {
	seen := make(map[string]bool)
	var ops []model.Operator
	for _, r := range records {
		if r.RegistryID == "" || seen[r.RegistryID] {
			continue
		}
		seen[r.RegistryID] = true
		ops = append(ops, model.Operator{
			RegistryID: r.RegistryID,
			TaxID:      r.TaxID,
			LegalName:  r.LegalName,
			State:      r.State,
			Category:   r.Category,
		})
	}
	return ops
}

// LoadOperators inserts operators, ignoring registration ids already present.
// Existing rows are never refreshed. An insert failure is logged and treated
// as an already-loaded dimension.
func (l *Loader) LoadOperators(ctx context.Context, ops []model.Operator) (int64, error) {
	rows := make([][]any, len(ops))
	for i, op := range ops {
		rows[i] = []any{op.RegistryID, op.TaxID, op.LegalName, op.State, op.Category}
	}

	n, err := db.BulkInsertIgnore(ctx, l.pool, db.InsertConfig{
		Table:        OperatorTable,
		Columns:      operatorColumns,
		ConflictKeys: []string{"registro_ans"},
	}, rows)
	if err != nil {
		l.log.Warn("operator load failed, assuming dimension already loaded",
			zap.Int("operators", len(ops)),
			zap.Error(err),
		)
		return 0, nil
	}

	l.log.Info("operators loaded", zap.Int("candidates", len(ops)), zap.Int64("inserted", n))
	return n, nil
}

// ExpenseRows converts records into fact rows. Records without a
// registration id or with a non-numeric year cannot be stored and are
// counted in skipped.
func ExpenseRows(records []model.RawRecord) (rows [][]any, skipped int) {
	rows = make([][]any, 0, len(records))
	for _, r := range records {
		year, err := strconv.Atoi(r.Year)
		if r.RegistryID == "" || err != nil {
			skipped++
			continue
		}
		var amount any
		if r.Amount != nil {
			amount = r.Amount.InexactFloat64()
		}
		rows = append(rows, []any{r.RegistryID, year, r.Quarter, model.StrPtr(r.AccountCode), amount})
	}
	return rows, skipped
}

// LoadExpenses appends fact rows in batches. Rows are never deduplicated, so
// loading the same records twice stores them twice.
func (l *Loader) LoadExpenses(ctx context.Context, records []model.RawRecord) (int64, error) {
	rows, skipped := ExpenseRows(records)
	if skipped > 0 {
		l.log.Warn("expense rows skipped", zap.Int("skipped", skipped))
	}

	n, err := db.CopyInBatches(ctx, l.pool, ExpenseTable, expenseColumns, rows, ExpenseBatchSize)
	if err != nil {
		return n, eris.Wrap(err, "load: expenses")
	}

	l.log.Info("expenses loaded", zap.Int64("rows", n))
	return n, nil
}

// ReplaceAggregates swaps the aggregate table contents for stats.
func (l *Loader) ReplaceAggregates(ctx context.Context, stats []model.AggregateStat) (int64, error) {
	rows := make([][]any, len(stats))
	for i, s := range stats {
		rows[i] = []any{s.LegalName, s.State, s.TotalAmount, s.MeanQuarterly, s.StdDevQuarterly, s.QuarterCount}
	}

	n, err := db.ReplaceTable(ctx, l.pool, AggregateTable, aggregateColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "load: aggregates")
	}

	l.log.Info("aggregates replaced", zap.Int64("rows", n))
	return n, nil
}
