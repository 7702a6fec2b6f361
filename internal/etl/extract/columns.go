package extract

import (
	"strings"
)

// Field is a canonical column of an expense table.
type Field string

const (
	FieldAmount   Field = "amount"
	FieldAccount  Field = "account"
	FieldRegistry Field = "registry"
)

// ColumnAliases lists, per canonical field, the source header names that
// map to it in priority order.
var ColumnAliases = map[Field][]string{
	FieldAmount:   {"VL_SALDO_FINAL", "VALOR", "Valor", "DESPESA"},
	FieldAccount:  {"CD_CONTA_CONTABIL", "CD_CONTA", "Conta"},
	FieldRegistry: {"REG_ANS", "RegistroANS"},
}

var fieldOrder = []Field{FieldRegistry, FieldAccount, FieldAmount}

// Columns maps canonical fields to header positions.
type Columns struct {
	index   map[Field]int
	Unknown []string
}

// Index returns the position of f and whether the table carries it.
func (c Columns) Index(f Field) (int, bool) {
	i, ok := c.index[f]
	return i, ok
}

// Value returns the trimmed cell for f in row, or "" when absent.
func (c Columns) Value(row []string, f Field) string {
	i, ok := c.index[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ResolveColumns matches header names against ColumnAliases. Matching
// ignores case and underscores. Headers that map to no field are returned
// in Unknown.
func ResolveColumns(header []string) Columns {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	cols := Columns{index: make(map[Field]int)}
	claimed := make(map[int]bool)
	for _, f := range fieldOrder {
		for _, alias := range ColumnAliases[f] {
			want := normalizeHeader(alias)
			idx := -1
			for i, n := range normalized {
				if n == want && !claimed[i] {
					idx = i
					break
				}
			}
			if idx >= 0 {
				cols.index[f] = idx
				claimed[idx] = true
				break
			}
		}
	}
	for i, h := range header {
		if !claimed[i] {
			cols.Unknown = append(cols.Unknown, strings.TrimSpace(h))
		}
	}
	return cols
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimPrefix(h, "\u00ef\u00bb\u00bf")
	h = strings.TrimSpace(h)
	return strings.ToUpper(strings.ReplaceAll(h, "_", ""))
}
