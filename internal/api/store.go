// Package api serves read-only access to the loaded operator, expense and
// aggregate tables.
package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ans-cli/internal/db"
	"github.com/sells-group/ans-cli/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("api: not found")

// Store queries the warehouse tables.
type Store struct {
	pool db.Pool
}

// NewStore creates a Store backed by pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

const operatorColumns = "registro_ans, cnpj, razao_social, uf, modalidade"

// ListOperators returns one page of operators ordered by legal name and the
// total number of matches. A non-empty search matches legal names
// case-insensitively and tax ids by substring.
func (s *Store) ListOperators(ctx context.Context, page, limit int, search string) ([]model.Operator, int, error) {
	where := ""
	var args []any
	if search != "" {
		where = " WHERE razao_social ILIKE $1 OR cnpj LIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM dim_operadoras"+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "api: count operators")
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM dim_operadoras%s ORDER BY razao_social LIMIT $%d OFFSET $%d",
		operatorColumns, where, n+1, n+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "api: list operators")
	}
	defer rows.Close()

	ops := make([]model.Operator, 0, limit)
	for rows.Next() {
		var op model.Operator
		if err := rows.Scan(&op.RegistryID, &op.TaxID, &op.LegalName, &op.State, &op.Category); err != nil {
			return nil, 0, eris.Wrap(err, "api: scan operator")
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, eris.Wrap(err, "api: iterate operators")
	}
	return ops, total, nil
}

// GetOperator finds an operator by registration id or tax id.
func (s *Store) GetOperator(ctx context.Context, id string) (*model.Operator, error) {
	var op model.Operator
	err := s.pool.QueryRow(ctx,
		"SELECT "+operatorColumns+" FROM dim_operadoras WHERE registro_ans = $1 OR cnpj = $1 LIMIT 1",
		id,
	).Scan(&op.RegistryID, &op.TaxID, &op.LegalName, &op.State, &op.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "api: get operator %s", id)
	}
	return &op, nil
}

// ExpenseHistory returns an operator's expense rows, most recent period first.
func (s *Store) ExpenseHistory(ctx context.Context, registryID string) ([]model.Expense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ano, trimestre, COALESCE(conta, ''), COALESCE(valor, 0)::float8
		 FROM fato_despesas
		 WHERE registro_ans = $1
		 ORDER BY ano DESC, trimestre DESC`,
		registryID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "api: expense history %s", registryID)
	}
	defer rows.Close()

	expenses := []model.Expense{}
	for rows.Next() {
		var e model.Expense
		if err := rows.Scan(&e.Year, &e.Quarter, &e.AccountCode, &e.Amount); err != nil {
			return nil, eris.Wrap(err, "api: scan expense")
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "api: iterate expenses")
	}
	return expenses, nil
}

// TopStatistics returns the limit operator-state pairs with the highest total expense.
func (s *Store) TopStatistics(ctx context.Context, limit int) ([]model.AggregateStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT razao_social, uf, valor_total::float8, media_trimestral::float8, desvio_padrao::float8, qtd_trimestres
		 FROM analise_agregada
		 ORDER BY valor_total DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "api: top statistics")
	}
	defer rows.Close()

	stats := []model.AggregateStat{}
	for rows.Next() {
		var st model.AggregateStat
		if err := rows.Scan(&st.LegalName, &st.State, &st.TotalAmount, &st.MeanQuarterly, &st.StdDevQuarterly, &st.QuarterCount); err != nil {
			return nil, eris.Wrap(err, "api: scan statistic")
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "api: iterate statistics")
	}
	return stats, nil
}
