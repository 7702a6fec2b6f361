// Package artifact reads and writes the CSV files handed between pipeline stages.
package artifact

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ans-cli/internal/model"
)

// ErrMissingArtifact is returned when a stage input file does not exist.
var ErrMissingArtifact = errors.New("artifact: missing input")

type consolidatedRow struct {
	RegistryID  string           `csv:"REG_ANS"`
	TaxID       *string          `csv:"CNPJ"`
	LegalName   *string          `csv:"RazaoSocial"`
	State       *string          `csv:"UF"`
	Category    *string          `csv:"Modalidade"`
	Quarter     string           `csv:"Trimestre"`
	Year        string           `csv:"Ano"`
	Amount      *decimal.Decimal `csv:"VALOR"`
	AccountCode string           `csv:"CONTA"`
}

// money renders with two decimal places.
type money float64

func (m money) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(m), 'f', 2, 64)), nil
}

func (m *money) UnmarshalText(b []byte) error {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*m = money(v)
	return nil
}

type aggregatedRow struct {
	LegalName    string `csv:"RazaoSocial"`
	State        string `csv:"UF"`
	Total        money  `csv:"Valor_Total"`
	Mean         money  `csv:"Media_Trimestral"`
	StdDev       money  `csv:"Desvio_Padrao"`
	QuarterCount int    `csv:"Qtd_Trimestres"`
}

// WriteConsolidated writes raw records to path.
func WriteConsolidated(path string, records []model.RawRecord) error {
	rows := make([]consolidatedRow, len(records))
	for i, r := range records {
		rows[i] = consolidatedRow{
			RegistryID:  r.RegistryID,
			TaxID:       r.TaxID,
			LegalName:   r.LegalName,
			State:       r.State,
			Category:    r.Category,
			Quarter:     r.Quarter,
			Year:        r.Year,
			Amount:      r.Amount,
			AccountCode: r.AccountCode,
		}
	}
	return writeCSV(path, rows, consolidatedRow{})
}

// ReadConsolidated loads the file written by WriteConsolidated.
func ReadConsolidated(path string) ([]model.RawRecord, error) {
	var records []model.RawRecord
	err := readCSV(path, func(dec *csvutil.Decoder) error {
		var row consolidatedRow
		if err := dec.Decode(&row); err != nil {
			return err
		}
		records = append(records, model.RawRecord{
			RegistryID:  row.RegistryID,
			TaxID:       row.TaxID,
			LegalName:   row.LegalName,
			State:       row.State,
			Category:    row.Category,
			Year:        row.Year,
			Quarter:     row.Quarter,
			AccountCode: row.AccountCode,
			Amount:      row.Amount,
		})
		return nil
	})
	return records, err
}

// WriteAggregated writes statistics to path with two-decimal amounts.
func WriteAggregated(path string, stats []model.AggregateStat) error {
	rows := make([]aggregatedRow, len(stats))
	for i, s := range stats {
		rows[i] = aggregatedRow{
			LegalName:    s.LegalName,
			State:        s.State,
			Total:        money(s.TotalAmount),
			Mean:         money(s.MeanQuarterly),
			StdDev:       money(s.StdDevQuarterly),
			QuarterCount: s.QuarterCount,
		}
	}
	return writeCSV(path, rows, aggregatedRow{})
}

// ReadAggregated loads the file written by WriteAggregated.
func ReadAggregated(path string) ([]model.AggregateStat, error) {
	var stats []model.AggregateStat
	err := readCSV(path, func(dec *csvutil.Decoder) error {
		var row aggregatedRow
		if err := dec.Decode(&row); err != nil {
			return err
		}
		stats = append(stats, model.AggregateStat{
			LegalName:       row.LegalName,
			State:           row.State,
			TotalAmount:     float64(row.Total),
			MeanQuarterly:   float64(row.Mean),
			StdDevQuarterly: float64(row.StdDev),
			QuarterCount:    row.QuarterCount,
		})
		return nil
	})
	return stats, err
}

func writeCSV[T any](path string, rows []T, header T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "artifact: create dir for %s", path)
	}

	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrapf(err, "artifact: create %s", tmp)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if len(rows) == 0 {
		err = enc.EncodeHeader(header)
	} else {
		err = enc.Encode(rows)
	}
	if err == nil {
		w.Flush()
		err = w.Error()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "artifact: write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "artifact: rename %s", path)
	}
	return nil
}

func readCSV(path string, next func(*csvutil.Decoder) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(ErrMissingArtifact, "artifact: %s", path)
	}
	if err != nil {
		return eris.Wrapf(err, "artifact: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "artifact: read header %s", path)
	}
	for {
		err := next(dec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "artifact: decode %s", path)
		}
	}
}
