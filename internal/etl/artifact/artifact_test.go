package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ans-cli/internal/model"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestConsolidated_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed", "consolidado_despesas.csv")
	in := []model.RawRecord{
		{
			RegistryID:  "123456",
			TaxID:       model.StrPtr("11222333000144"),
			LegalName:   model.StrPtr("OPERADORA SAÚDE, LTDA"),
			State:       model.StrPtr("SP"),
			Category:    model.StrPtr("Medicina de Grupo"),
			Year:        "2024",
			Quarter:     "1T",
			AccountCode: "4",
			Amount:      dec("1000.50"),
		},
		{RegistryID: "999999", Year: "2024", Quarter: "1T", AccountCode: "41"},
	}

	require.NoError(t, WriteConsolidated(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "REG_ANS,CNPJ,RazaoSocial,UF,Modalidade,Trimestre,Ano,VALOR,CONTA", lines[0])
	assert.Equal(t, `123456,11222333000144,"OPERADORA SAÚDE, LTDA",SP,Medicina de Grupo,1T,2024,1000.5,4`, lines[1])
	assert.Equal(t, "999999,,,,,1T,2024,,41", lines[2])

	out, err := ReadConsolidated(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "OPERADORA SAÚDE, LTDA", model.Deref(out[0].LegalName))
	require.NotNil(t, out[0].Amount)
	assert.True(t, in[0].Amount.Equal(*out[0].Amount))
	assert.Nil(t, out[1].TaxID)
	assert.Nil(t, out[1].Amount)
	assert.Equal(t, "41", out[1].AccountCode)

	_, err = os.Stat(path + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestConsolidated_EmptyWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.csv")
	require.NoError(t, WriteConsolidated(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "REG_ANS,CNPJ,RazaoSocial,UF,Modalidade,Trimestre,Ano,VALOR,CONTA\n", string(data))

	out, err := ReadConsolidated(path)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReadConsolidated_Missing(t *testing.T) {
	_, err := ReadConsolidated(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingArtifact))
}

func TestAggregated_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "despesas_agregadas.csv")
	in := []model.AggregateStat{
		{LegalName: "A", State: "SP", TotalAmount: 400, MeanQuarterly: 200, StdDevQuarterly: 141.4213562, QuarterCount: 2},
		{LegalName: "B", State: "RJ", TotalAmount: 100.005, MeanQuarterly: 100.005, QuarterCount: 1},
	}

	require.NoError(t, WriteAggregated(path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "RazaoSocial,UF,Valor_Total,Media_Trimestral,Desvio_Padrao,Qtd_Trimestres", lines[0])
	assert.Equal(t, "A,SP,400.00,200.00,141.42,2", lines[1])

	out, err := ReadAggregated(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].LegalName)
	assert.InDelta(t, 141.42, out[0].StdDevQuarterly, 1e-9)
	assert.Equal(t, 2, out[0].QuarterCount)
	assert.Equal(t, 0.0, out[1].StdDevQuarterly)
}

func TestReadAggregated_Missing(t *testing.T) {
	_, err := ReadAggregated(filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, ErrMissingArtifact)
}

func TestReadAggregated_BadNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("RazaoSocial,UF,Valor_Total,Media_Trimestral,Desvio_Padrao,Qtd_Trimestres\nA,SP,abc,1,0,1\n"), 0o644))

	_, err := ReadAggregated(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingArtifact)
}
