package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/fetcher"
	"github.com/sells-group/ans-cli/internal/model"
)

// UnknownState fills state and category when the registry lacks the column.
const UnknownState = "ND"

// OperatorInfo is the registry data attached to expense rows.
type OperatorInfo struct {
	TaxID     *string
	LegalName *string
	State     *string
	Category  *string
}

// Registry maps registration identifiers to operator data.
type Registry struct {
	entries map[string]OperatorInfo
}

// NewRegistry builds a registry from explicit entries.
func NewRegistry(entries map[string]OperatorInfo) *Registry {
	if entries == nil {
		entries = make(map[string]OperatorInfo)
	}
	return &Registry{entries: entries}
}

// Lookup returns the operator registered under id.
func (r *Registry) Lookup(id string) (OperatorInfo, bool) {
	if r == nil {
		return OperatorInfo{}, false
	}
	info, ok := r.entries[strings.TrimSpace(id)]
	return info, ok
}

// Len returns the number of registered operators.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// LoadRegistry downloads and parses the active-operator export at url. On
// failure it returns an empty registry alongside the error so callers can
// continue with unenriched rows.
func LoadRegistry(ctx context.Context, f fetcher.Fetcher, url string) (*Registry, error) {
	log := zap.L().With(zap.String("component", "extract.registry"))

	body, err := f.Download(ctx, url)
	if err != nil {
		return NewRegistry(nil), eris.Wrap(err, "extract: download registry")
	}
	defer body.Close() //nolint:errcheck

	raw, err := io.ReadAll(body)
	if err != nil {
		return NewRegistry(nil), eris.Wrap(err, "extract: read registry")
	}

	reg, err := ParseRegistry(raw)
	if err != nil {
		return reg, err
	}
	log.Info("registry loaded", zap.Int("operators", reg.Len()))
	return reg, nil
}

// ParseRegistry decodes a semicolon-delimited registry export. UTF-8 is
// tried first and Latin-1 is the fallback.
func ParseRegistry(raw []byte) (*Registry, error) {
	enc := Latin1
	if UTF8.valid(raw) {
		enc = UTF8
	}

	cr := csv.NewReader(enc.NewReader(bytes.NewReader(raw)))
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return NewRegistry(nil), eris.Wrap(err, "extract: read registry header")
	}

	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}
	find := func(key string) int {
		for i, n := range normalized {
			if strings.Contains(n, key) {
				return i
			}
		}
		return -1
	}

	regCol, taxCol, nameCol := find("REGISTRO"), find("CNPJ"), find("RAZAO")
	stateCol, catCol := find("UF"), find("MODALIDADE")
	if regCol < 0 || taxCol < 0 || nameCol < 0 {
		return NewRegistry(nil), eris.Errorf("extract: registry missing key columns in header %v", header)
	}

	cell := func(row []string, i int) *string {
		if i < 0 || i >= len(row) {
			return nil
		}
		return model.StrPtr(strings.TrimSpace(row[i]))
	}
	orDefault := func(row []string, i int) *string {
		if i < 0 {
			return model.StrPtr(UnknownState)
		}
		return cell(row, i)
	}

	entries := make(map[string]OperatorInfo)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return NewRegistry(entries), eris.Wrap(err, "extract: read registry row")
		}
		id := cell(row, regCol)
		if id == nil {
			continue
		}
		entries[*id] = OperatorInfo{
			TaxID:     cell(row, taxCol),
			LegalName: cell(row, nameCol),
			State:     orDefault(row, stateCol),
			Category:  orDefault(row, catCol),
		}
	}
	return NewRegistry(entries), nil
}
