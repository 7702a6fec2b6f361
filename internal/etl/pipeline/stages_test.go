package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ans-cli/internal/etl/artifact"
	"github.com/sells-group/ans-cli/internal/fetcher"
)

func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func listingPage(hrefs ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<html><body><pre><a href=\"../\">Parent Directory</a>\n")
	for _, h := range hrefs {
		fmt.Fprintf(&buf, "<a href=\"%s\">%s</a>\n", h, h)
	}
	buf.WriteString("</pre></body></html>")
	return buf.Bytes()
}

// newSourceServer serves a listing with one folder-layout and one
// file-layout quarter plus the operator registry.
func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	header := "REG_ANS;CD_CONTA_CONTABIL;DESCRICAO;VL_SALDO_FINAL\n"
	pages := map[string][]byte{
		"/demonstracoes/":         listingPage("2024/"),
		"/demonstracoes/2024/":    listingPage("1T/", "2T2024.zip"),
		"/demonstracoes/2024/1T/": listingPage("Leia-me.pdf", "1T2024.zip"),
	}
	pages["/demonstracoes/2024/1T/1T2024.zip"] = zipBytes(t, "1T2024.csv",
		header+"123456;4;DESPESAS;100,00\n123456;41;EVENTOS;100,00\n123456;31;RECEITAS;5.000,00\n")
	pages["/demonstracoes/2024/2T2024.zip"] = zipBytes(t, "2T2024.csv", header+"123456;4;DESPESAS;300,00\n")
	pages["/cadop.csv"] = []byte("Registro_ANS;CNPJ;Razao_Social;Modalidade;UF\n" +
		"123456;11222333000144;OPERADORA ALFA;Medicina de Grupo;SP\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testPaths(t *testing.T) Paths {
	dir := t.TempDir()
	return NewPaths(
		filepath.Join(dir, "raw"),
		filepath.Join(dir, "processed"),
		"consolidado_despesas.csv",
		"despesas_agregadas.csv",
		"run_summary.yaml",
		"despesas.xlsx",
	)
}

func expectLoad(mock pgxmock.PgxPoolIface, facts, aggregates int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_dim_operadoras"},
		[]string{"registro_ans", "cnpj", "razao_social", "uf", "modalidade"}).WillReturnResult(1)
	mock.ExpectExec("ON CONFLICT").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectCopyFrom(pgx.Identifier{"fato_despesas"},
		[]string{"registro_ans", "ano", "trimestre", "conta", "valor"}).WillReturnResult(facts)
	mock.ExpectBegin()
	mock.ExpectExec("TRUNCATE TABLE").WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"analise_agregada"},
		[]string{"razao_social", "uf", "valor_total", "media_trimestral", "desvio_padrao", "qtd_trimestres"}).
		WillReturnResult(aggregates)
	mock.ExpectCommit()
}

func TestEngine_EndToEnd(t *testing.T) {
	srv := newSourceServer(t)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1, RateLimit: 1000})
	paths := testPaths(t)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	expectLoad(mock, 3, 1)

	e := NewEngine(nil,
		&DiscoverStage{Fetcher: f, BaseURL: srv.URL + "/demonstracoes/", Limit: 3},
		&ExtractStage{Fetcher: f, RegistryURL: srv.URL + "/cadop.csv"},
		&AggregateStage{},
		&LoadStage{Pool: mock},
	)

	summary, err := e.Run(context.Background(), RunOpts{Paths: paths})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.NotNil(t, summary.Retrieve)
	assert.Equal(t, 2, summary.Retrieve.Downloaded)
	assert.FileExists(t, filepath.Join(paths.RawDir, "2024_1T.zip"))
	assert.FileExists(t, filepath.Join(paths.RawDir, "2024_2T.zip"))

	require.NotNil(t, summary.Extract)
	assert.Equal(t, 3, summary.Extract.Rows)
	assert.Equal(t, 3, summary.Extract.Enriched)

	require.NotNil(t, summary.Aggregate)
	assert.False(t, summary.Aggregate.Fallback)
	assert.Equal(t, 2, summary.Aggregate.Deduplicated)

	stats, err := artifact.ReadAggregated(paths.Aggregated)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "OPERADORA ALFA", stats[0].LegalName)
	assert.Equal(t, "SP", stats[0].State)
	assert.Equal(t, 400.0, stats[0].TotalAmount)
	assert.Equal(t, 200.0, stats[0].MeanQuarterly)
	assert.InDelta(t, 141.42, stats[0].StdDevQuarterly, 0.01)
	assert.Equal(t, 2, stats[0].QuarterCount)
	assert.FileExists(t, paths.Report)

	require.NotNil(t, summary.Load)
	assert.Equal(t, int64(1), summary.Load.Operators)
	assert.Equal(t, int64(3), summary.Load.Expenses)
	assert.Equal(t, int64(1), summary.Load.Aggregates)

	written, err := ReadSummary(paths.Summary)
	require.NoError(t, err)
	assert.Len(t, written.Stages, 4)
}

func TestExtractStage_RegistryUnavailable(t *testing.T) {
	srv := newSourceServer(t)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, MaxRetries: 1, RateLimit: 1000})
	paths := testPaths(t)

	require.NoError(t, os.MkdirAll(paths.RawDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(paths.RawDir, "2024_1T.zip"),
		zipBytes(t, "1T2024.csv", "REG_ANS;CD_CONTA_CONTABIL;VL_SALDO_FINAL\n123456;4;10,00\n"), 0o644))

	state := NewState(uuid.New(), paths)
	res, err := (&ExtractStage{Fetcher: f, RegistryURL: srv.URL + "/missing.csv"}).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rows)
	assert.Equal(t, 0, state.Summary.Extract.Enriched)

	records, err := artifact.ReadConsolidated(paths.Consolidated)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].TaxID)
}

func TestAggregateStage_MissingConsolidated(t *testing.T) {
	paths := testPaths(t)
	_, err := (&AggregateStage{}).Run(context.Background(), NewState(uuid.New(), paths))
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrMissingArtifact)

	_, statErr := os.Stat(paths.Aggregated)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAggregateStage_FallbackFlagged(t *testing.T) {
	paths := testPaths(t)
	paths.Report = ""
	state := NewState(uuid.New(), paths)

	require.NoError(t, artifact.WriteConsolidated(paths.Consolidated, nil))
	_, err := (&AggregateStage{}).Run(context.Background(), state)
	require.NoError(t, err)
	assert.True(t, state.Summary.Aggregate.Fallback)
	assert.Equal(t, 0, state.Summary.Aggregate.Groups)
}

func TestLoadStage_MissingAggregatedIsSkipped(t *testing.T) {
	paths := testPaths(t)
	require.NoError(t, artifact.WriteConsolidated(paths.Consolidated, nil))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	state := NewState(uuid.New(), paths)
	res, err := (&LoadStage{Pool: mock}).Run(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Rows)
	assert.True(t, state.Summary.Load.AggregatesSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadStage_MissingConsolidated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = (&LoadStage{Pool: mock}).Run(context.Background(), NewState(uuid.New(), testPaths(t)))
	assert.ErrorIs(t, err, artifact.ErrMissingArtifact)
}
