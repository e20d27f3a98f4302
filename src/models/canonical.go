package models

import "fmt"

// RawRow is one tabular input row keyed by source column header.
type RawRow map[string]string

// AmountStrategy selects how a row's amount columns are interpreted.
type AmountStrategy string

const (
	AmountSigned        AmountStrategy = "signed"
	AmountInflowOutflow AmountStrategy = "inflow_outflow"
)

// DateLocale is a hint for ambiguous slash dates.
type DateLocale string

const (
	LocaleMDY DateLocale = "mdy"
	LocaleDMY DateLocale = "dmy"
)

// ColumnMapping maps canonical fields to source column headers as confirmed
// by the user. Principal and Interest are optional loan-export columns that
// drive split generation.
type ColumnMapping struct {
	Date        string `json:"date"`
	Payee       string `json:"payee,omitempty"`
	Description string `json:"description,omitempty"`
	Memo        string `json:"memo,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Inflow      string `json:"inflow,omitempty"`
	Outflow     string `json:"outflow,omitempty"`
	Status      string `json:"status,omitempty"`
	Principal   string `json:"principal,omitempty"`
	Interest    string `json:"interest,omitempty"`
}

// Validate reports whether the mapping can possibly produce canonical rows.
// A mapping failure is batch-fatal: it is caught before any row is processed.
func (m ColumnMapping) Validate(strategy AmountStrategy) error {
	if m.Date == "" {
		return fmt.Errorf("column mapping missing date column")
	}
	switch strategy {
	case AmountSigned:
		if m.Amount == "" {
			return fmt.Errorf("amount strategy %q requires an amount column", strategy)
		}
	case AmountInflowOutflow:
		if m.Inflow == "" && m.Outflow == "" {
			return fmt.Errorf("amount strategy %q requires an inflow or outflow column", strategy)
		}
	default:
		return fmt.Errorf("unknown amount strategy %q", strategy)
	}
	if m.Payee == "" && m.Description == "" {
		return fmt.Errorf("column mapping requires a payee or description column")
	}
	return nil
}

// CanonicalTransaction is the unified, intermediate representation of a
// transaction row, normalized from any source format.
type CanonicalTransaction struct {
	RowNumber      int    `json:"row_number"`
	Date           string `json:"date"` // YYYY-MM-DD
	Payee          string `json:"payee"`
	Description    string `json:"description"`
	AmountCents    int64  `json:"amount_cents"`
	Reference      string `json:"reference,omitempty"`
	Status         string `json:"status,omitempty"`
	SourceSystem   string `json:"source_system,omitempty"`
	RowHash        string `json:"row_hash"`
	PrincipalCents int64  `json:"principal_cents,omitempty"`
	InterestCents  int64  `json:"interest_cents,omitempty"`
}

// RowError is a row-level validation failure. Row errors accumulate per
// import batch and never abort it.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d, field %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// ExtractedTransaction is one noisy row pulled out of an externally parsed
// statement (AI/OCR).
type ExtractedTransaction struct {
	Date        string `json:"date"` // YYYY-MM-DD
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	IdentityTag string `json:"identity_tag,omitempty"`
}

// ExtractedStatement is the structured result of statement extraction,
// before the sanitizer pass.
type ExtractedStatement struct {
	PeriodStart           string                 `json:"period_start"`
	PeriodEnd             string                 `json:"period_end"`
	BeginningBalanceCents int64                  `json:"beginning_balance_cents"`
	EndingBalanceCents    int64                  `json:"ending_balance_cents"`
	Transactions          []ExtractedTransaction `json:"transactions"`
}
