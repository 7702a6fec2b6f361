package model

import "github.com/shopspring/decimal"

// ExpensePrefix is the account-code prefix of the expense subtree.
const ExpensePrefix = "4"

// ExpenseTotalAccount is the synthetic grand-total account of the expense subtree.
const ExpenseTotalAccount = "4"

// RawRecord is one expense line item after extraction and enrichment.
// Optional fields are nil when the source or the operator registry had no value.
type RawRecord struct {
	RegistryID  string
	TaxID       *string
	LegalName   *string
	State       *string
	Category    *string
	Year        string
	Quarter     string
	AccountCode string
	Amount      *decimal.Decimal
}

// QuarterlyTotal is the summed expense of one operator-state in one period.
type QuarterlyTotal struct {
	LegalName string
	State     string
	Year      string
	Quarter   string
	Sum       decimal.Decimal
}

// AggregateStat holds lifetime statistics for one operator-state pair.
type AggregateStat struct {
	LegalName       string  `json:"razao_social"`
	State           string  `json:"uf"`
	TotalAmount     float64 `json:"valor_total"`
	MeanQuarterly   float64 `json:"media_trimestral"`
	StdDevQuarterly float64 `json:"desvio_padrao"`
	QuarterCount    int     `json:"qtd_trimestres"`
}

// Operator is the operator dimension row.
type Operator struct {
	RegistryID string  `json:"registro_ans"`
	TaxID      *string `json:"cnpj"`
	LegalName  *string `json:"razao_social"`
	State      *string `json:"uf"`
	Category   *string `json:"modalidade"`
}

// Expense is one row of an operator's expense history.
type Expense struct {
	Year        int     `json:"ano"`
	Quarter     string  `json:"trimestre"`
	AccountCode string  `json:"conta"`
	Amount      float64 `json:"valor"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
