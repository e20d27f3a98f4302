package parsers

import (
	"fmt"
	"strings"
	"time"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

const isoDate = "2006-01-02"

// nativeDateLayouts are tried before the locale-dependent slash formats.
var nativeDateLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-Jan-2006",
}

// Transformer converts raw rows into canonical transactions under a
// user-confirmed column mapping.
type Transformer struct {
	Mapping      models.ColumnMapping
	Strategy     models.AmountStrategy
	Locale       models.DateLocale
	SourceSystem string
}

func NewTransformer(mapping models.ColumnMapping, strategy models.AmountStrategy, locale models.DateLocale, sourceSystem string) *Transformer {
	if locale == "" {
		locale = models.LocaleMDY
	}
	return &Transformer{Mapping: mapping, Strategy: strategy, Locale: locale, SourceSystem: sourceSystem}
}

// Transform normalizes one raw row. A validation failure returns a
// field-tagged RowError; the caller accumulates these per row number and
// continues with the rest of the batch.
func (t *Transformer) Transform(row models.RawRow, rowNumber int) (models.CanonicalTransaction, *models.RowError) {
	var canon models.CanonicalTransaction
	canon.RowNumber = rowNumber
	canon.SourceSystem = t.SourceSystem

	date, err := t.parseDate(row[t.Mapping.Date])
	if err != nil {
		return canon, &models.RowError{Row: rowNumber, Field: "date", Message: err.Error()}
	}
	canon.Date = date

	amount, rowErr := t.parseRowAmount(row, rowNumber)
	if rowErr != nil {
		return canon, rowErr
	}
	canon.AmountCents = amount

	payee := strings.TrimSpace(row[t.Mapping.Payee])
	description := firstNonBlank(
		row[t.Mapping.Description],
		row[t.Mapping.Memo],
		row[t.Mapping.Reference],
		payee,
	)
	if payee == "" {
		payee = description
	}
	if payee == "" && description == "" {
		return canon, &models.RowError{Row: rowNumber, Field: "payee", Message: "row has no payee or description"}
	}
	canon.Payee = payee
	canon.Description = description
	canon.Reference = strings.TrimSpace(row[t.Mapping.Reference])
	canon.Status = strings.TrimSpace(row[t.Mapping.Status])

	if t.Mapping.Principal != "" {
		if v := strings.TrimSpace(row[t.Mapping.Principal]); v != "" {
			cents, err := utils.ParseAmount(v)
			if err != nil {
				return canon, &models.RowError{Row: rowNumber, Field: "principal", Message: err.Error()}
			}
			canon.PrincipalCents = cents
		}
	}
	if t.Mapping.Interest != "" {
		if v := strings.TrimSpace(row[t.Mapping.Interest]); v != "" {
			cents, err := utils.ParseAmount(v)
			if err != nil {
				return canon, &models.RowError{Row: rowNumber, Field: "interest", Message: err.Error()}
			}
			canon.InterestCents = cents
		}
	}

	canon.RowHash = utils.RowHash(
		canon.RowNumber, canon.Date, canon.Payee, canon.Description,
		canon.AmountCents, canon.Reference, canon.Status, canon.SourceSystem,
	)
	return canon, nil
}

func (t *Transformer) parseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("missing date")
	}
	for _, layout := range nativeDateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.Format(isoDate), nil
		}
	}
	slashLayout := "01/02/2006"
	if t.Locale == models.LocaleDMY {
		slashLayout = "02/01/2006"
	}
	if parsed, err := time.Parse(slashLayout, s); err == nil {
		return parsed.Format(isoDate), nil
	}
	return "", fmt.Errorf("unparseable date %q", s)
}

func (t *Transformer) parseRowAmount(row models.RawRow, rowNumber int) (int64, *models.RowError) {
	switch t.Strategy {
	case models.AmountInflowOutflow:
		inflowRaw := strings.TrimSpace(row[t.Mapping.Inflow])
		outflowRaw := strings.TrimSpace(row[t.Mapping.Outflow])
		if inflowRaw == "" && outflowRaw == "" {
			return 0, &models.RowError{Row: rowNumber, Field: "amount", Message: "both inflow and outflow are blank"}
		}
		var inflow, outflow int64
		if inflowRaw != "" {
			v, err := utils.ParseAmount(inflowRaw)
			if err != nil {
				return 0, &models.RowError{Row: rowNumber, Field: "inflow", Message: err.Error()}
			}
			inflow = v
		}
		if outflowRaw != "" {
			v, err := utils.ParseAmount(outflowRaw)
			if err != nil {
				return 0, &models.RowError{Row: rowNumber, Field: "outflow", Message: err.Error()}
			}
			outflow = v
		}
		return inflow - outflow, nil
	default:
		v, err := utils.ParseAmount(row[t.Mapping.Amount])
		if err != nil {
			return 0, &models.RowError{Row: rowNumber, Field: "amount", Message: err.Error()}
		}
		return v, nil
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
