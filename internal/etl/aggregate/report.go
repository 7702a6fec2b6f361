package aggregate

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ans-cli/internal/model"
)

// ReportSheet is the worksheet name of the xlsx report.
const ReportSheet = "Despesas"

var reportHeader = []string{"RazaoSocial", "UF", "Valor_Total", "Media_Trimestral", "Desvio_Padrao", "Qtd_Trimestres"}

// WriteReport writes stats as an xlsx workbook at path.
func WriteReport(path string, stats []model.AggregateStat) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(ReportSheet)
	if err != nil {
		return eris.Wrap(err, "aggregate: add report sheet")
	}

	header := sheet.AddRow()
	for _, h := range reportHeader {
		header.AddCell().SetString(h)
	}
	for _, s := range stats {
		row := sheet.AddRow()
		row.AddCell().SetString(s.LegalName)
		row.AddCell().SetString(s.State)
		row.AddCell().SetFloatWithFormat(s.TotalAmount, "#,##0.00")
		row.AddCell().SetFloatWithFormat(s.MeanQuarterly, "#,##0.00")
		row.AddCell().SetFloatWithFormat(s.StdDevQuarterly, "#,##0.00")
		row.AddCell().SetInt(s.QuarterCount)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "aggregate: create report dir")
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "aggregate: save report %s", path)
	}
	return nil
}
