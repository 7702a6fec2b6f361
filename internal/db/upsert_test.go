package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operatorCfg = InsertConfig{
	Table:        "dim_operadoras",
	Columns:      []string{"registro_ans", "cnpj"},
	ConflictKeys: []string{"registro_ans"},
}

func TestBulkInsertIgnore_EmptyRows(t *testing.T) {
	n, err := BulkInsertIgnore(context.Background(), nil, operatorCfg, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkInsertIgnore_NoColumns(t *testing.T) {
	_, err := BulkInsertIgnore(context.Background(), nil, InsertConfig{
		Table:        "dim_operadoras",
		ConflictKeys: []string{"registro_ans"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkInsertIgnore_NoConflictKeys(t *testing.T) {
	_, err := BulkInsertIgnore(context.Background(), nil, InsertConfig{
		Table:   "dim_operadoras",
		Columns: []string{"registro_ans"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkInsertIgnore_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_dim_operadoras"}, operatorCfg.Columns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("registro_ans"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkInsertIgnore(context.Background(), mock, operatorCfg, [][]any{{"1", "a"}, {"2", "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only rows that did not conflict are counted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertIgnore_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_dim_operadoras"}, operatorCfg.Columns).WillReturnResult(1)
	mock.ExpectExec("INSERT INTO").WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	_, err = BulkInsertIgnore(context.Background(), mock, operatorCfg, [][]any{{"1", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INSERT ON CONFLICT for dim_operadoras")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"razao_social", "valor_total"}
	mock.ExpectBegin()
	mock.ExpectExec(`TRUNCATE TABLE "analise_agregada"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"analise_agregada"}, cols).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := ReplaceTable(context.Background(), mock, "analise_agregada", cols, [][]any{{"A", 1.0}, {"B", 2.0}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_EmptyStillTruncates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCommit()

	n, err := ReplaceTable(context.Background(), mock, "analise_agregada", []string{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_TruncateError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE").WillReturnError(fmt.Errorf("locked"))
	mock.ExpectRollback()

	_, err = ReplaceTable(context.Background(), mock, "analise_agregada", []string{"x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncate analise_agregada")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"etl.run_log", `"etl"."run_log"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, identifier(tt.input).Sanitize())
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"registro_ans", "cnpj"`, quoteAndJoin([]string{"registro_ans", "cnpj"}))
}
