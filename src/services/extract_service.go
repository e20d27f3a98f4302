package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

// ExtractionReport is the outcome of one statement extraction: the sanitized
// rows saved on the statement plus the advisory validation findings. Findings
// never block ingestion.
type ExtractionReport struct {
	Statement *models.ExtractedStatement `json:"statement"`
	Dropped   int                        `json:"dropped_rows"`
	Findings  []ValidationFinding        `json:"findings,omitempty"`
}

// ValidationFinding is one advisory check result.
type ValidationFinding struct {
	Check    string `json:"check"`
	Severity string `json:"severity"` // pass | warn | fail
	Message  string `json:"message"`
}

// SanitizeOptions controls the cleanup pass applied to raw extraction output.
type SanitizeOptions struct {
	// Statement period; rows outside it by more than GraceDays are dropped.
	PeriodStart string
	PeriodEnd   string
	GraceDays   int
	// Accepted identity tags. Empty means tags pass through unchecked.
	TagWhitelist []string
}

// ValidateOptions tunes the advisory validation pass.
type ValidateOptions struct {
	BalanceToleranceCents    int64
	LargeAmountSentinelCents int64
}

type extractServiceImpl struct {
	db            *sql.DB
	apiKey        string
	model         string
	timeout       time.Duration
	graceDays     int
	tagWhitelist  []string
	largeSentinel int64
}

func NewExtractService(db *sql.DB, apiKey, model string, timeout time.Duration, graceDays int, tagWhitelist []string, largeSentinel int64) ExtractService {
	return &extractServiceImpl{
		db:            db,
		apiKey:        apiKey,
		model:         model,
		timeout:       timeout,
		graceDays:     graceDays,
		tagWhitelist:  tagWhitelist,
		largeSentinel: largeSentinel,
	}
}

const extractPrompt = `You are a financial statement parser for bank and credit card PDF statements.

Task:
- Parse the statement period, printed beginning and ending balances, and ALL transactions in the attached statement.
- Output STRICT JSON only (no comments, no trailing commas, no extra text).

Output a single JSON object with these fields:
- "period_start": string, ISO format "YYYY-MM-DD"
- "period_end": string, ISO format "YYYY-MM-DD"
- "beginning_balance": number (dollars, as printed)
- "ending_balance": number (dollars, as printed)
- "transactions": array of objects, each with:
  - "date": string, ISO format "YYYY-MM-DD"
  - "description": string
  - "amount": number (dollars; positive for deposits/credits, negative for withdrawals/charges, in the statement's own convention)
  - "identity_tag": string or null (cardholder name or account suffix when the statement attributes the line to one)

Rules:
- If the statement has separate debit/credit columns, convert to a single signed "amount".
- Include interest and fee lines as transactions.
- Return ONLY valid raw JSON.
- Do NOT wrap the response in code fences.
- Do NOT use ` + "```json" + ` or any Markdown.
- Output must begin with "{" and end with "}".`

// rawExtraction is the wire shape the model is asked for. Amounts arrive as
// dollars and are converted to cents immediately.
type rawExtraction struct {
	PeriodStart      string           `json:"period_start"`
	PeriodEnd        string           `json:"period_end"`
	BeginningBalance float64          `json:"beginning_balance"`
	EndingBalance    float64          `json:"ending_balance"`
	Transactions     []rawExtractedTx `json:"transactions"`
}

type rawExtractedTx struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	IdentityTag *string `json:"identity_tag"`
}

// ExtractStatement sends the document to the model, sanitizes the result,
// runs the advisory validation pass and saves the rows on the statement.
func (s *extractServiceImpl) ExtractStatement(ctx context.Context, statementID int64, document []byte, mimeType string) (*ExtractionReport, error) {
	if s.apiKey == "" {
		return nil, ErrExtractorDisabled
	}
	stmt, err := store.GetStatement(s.db, statementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrStatementNotFound
		}
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.callModel(ctx, document, mimeType)
	if err != nil {
		return nil, err
	}

	extracted := toExtractedStatement(raw)
	opts := SanitizeOptions{
		PeriodStart:  stmt.PeriodStart,
		PeriodEnd:    stmt.PeriodEnd,
		GraceDays:    s.graceDays,
		TagWhitelist: s.tagWhitelist,
	}
	sanitized, dropped := SanitizeExtraction(extracted, opts)

	findings := ValidateExtraction(sanitized, stmt, ValidateOptions{
		BalanceToleranceCents:    0,
		LargeAmountSentinelCents: s.largeSentinel,
	})
	for _, f := range findings {
		if f.Severity != "pass" {
			logger.L.Warn("Extraction validation finding", "statementID", statementID,
				"check", f.Check, "severity", f.Severity, "message", f.Message)
		}
	}

	if err := store.SaveExtracted(s.db, statementID, sanitized); err != nil {
		return nil, err
	}
	logger.L.Info("Statement extraction saved", "statementID", statementID,
		"rows", len(sanitized.Transactions), "dropped", dropped)

	return &ExtractionReport{Statement: sanitized, Dropped: dropped, Findings: findings}, nil
}

func (s *extractServiceImpl) callModel(ctx context.Context, document []byte, mimeType string) (*rawExtraction, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      s.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	if mimeType == "" {
		mimeType = "application/pdf"
	}
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractPrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: document}},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate content: %v", ErrParsingFailed, err)
	}
	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty response from model", ErrParsingFailed)
	}

	clean := cleanModelJSON(rawText)
	var raw rawExtraction
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding model output: %v", ErrParsingFailed, err)
	}
	return &raw, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}

func toExtractedStatement(raw *rawExtraction) *models.ExtractedStatement {
	out := &models.ExtractedStatement{
		PeriodStart:           raw.PeriodStart,
		PeriodEnd:             raw.PeriodEnd,
		BeginningBalanceCents: utils.CentsFromFloat(raw.BeginningBalance),
		EndingBalanceCents:    utils.CentsFromFloat(raw.EndingBalance),
	}
	for _, tx := range raw.Transactions {
		row := models.ExtractedTransaction{
			Date:        strings.TrimSpace(tx.Date),
			Description: strings.TrimSpace(tx.Description),
			AmountCents: utils.CentsFromFloat(tx.Amount),
		}
		if tx.IdentityTag != nil {
			row.IdentityTag = strings.TrimSpace(*tx.IdentityTag)
		}
		out.Transactions = append(out.Transactions, row)
	}
	return out
}

// SanitizeExtraction cleans raw extraction output: rows with unknown
// identity tags or dates far outside the period are dropped, dates just
// outside it are clamped into the period, repeated interest lines collapse
// to the latest, and exact repeats deduplicate. Returns the cleaned
// statement and the number of rows dropped.
func SanitizeExtraction(extracted *models.ExtractedStatement, opts SanitizeOptions) (*models.ExtractedStatement, int) {
	out := &models.ExtractedStatement{
		PeriodStart:           extracted.PeriodStart,
		PeriodEnd:             extracted.PeriodEnd,
		BeginningBalanceCents: extracted.BeginningBalanceCents,
		EndingBalanceCents:    extracted.EndingBalanceCents,
	}
	dropped := 0

	whitelist := make(map[string]bool, len(opts.TagWhitelist))
	for _, tag := range opts.TagWhitelist {
		whitelist[strings.ToLower(strings.TrimSpace(tag))] = true
	}

	seen := make(map[string]bool)
	lastInterest := -1

	for _, row := range extracted.Transactions {
		if len(whitelist) > 0 && row.IdentityTag != "" && !whitelist[strings.ToLower(row.IdentityTag)] {
			dropped++
			continue
		}

		date, ok := clampDate(row.Date, opts.PeriodStart, opts.PeriodEnd, opts.GraceDays)
		if !ok {
			dropped++
			continue
		}
		row.Date = date

		key := row.Date + "|" + strings.ToLower(row.Description) + "|" + fmt.Sprint(row.AmountCents)
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true

		if isInterestLine(row.Description) {
			if lastInterest >= 0 {
				// Statements repeat the running interest line per page;
				// only the last occurrence is the real charge.
				out.Transactions[lastInterest] = row
				dropped++
				continue
			}
			lastInterest = len(out.Transactions)
		}
		out.Transactions = append(out.Transactions, row)
	}
	return out, dropped
}

// clampDate keeps in-period dates, pulls dates within the grace window to
// the nearest period edge, and rejects the rest.
func clampDate(date, periodStart, periodEnd string, graceDays int) (string, bool) {
	t, err := time.Parse(isoDate, date)
	if err != nil {
		return "", false
	}
	start, errS := time.Parse(isoDate, periodStart)
	end, errE := time.Parse(isoDate, periodEnd)
	if errS != nil || errE != nil {
		return date, true
	}
	if !t.Before(start) && !t.After(end) {
		return date, true
	}
	grace := time.Duration(graceDays) * 24 * time.Hour
	if t.Before(start) && start.Sub(t) <= grace {
		return periodStart, true
	}
	if t.After(end) && t.Sub(end) <= grace {
		return periodEnd, true
	}
	return "", false
}

func isInterestLine(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "interest charge") || strings.Contains(d, "interest charged")
}

// ValidateExtraction runs the advisory checks: the extraction is saved no
// matter what these report.
func ValidateExtraction(extracted *models.ExtractedStatement, stmt *models.BankStatement, opts ValidateOptions) []ValidationFinding {
	var findings []ValidationFinding
	add := func(check, severity, format string, args ...any) {
		findings = append(findings, ValidationFinding{Check: check, Severity: severity, Message: fmt.Sprintf(format, args...)})
	}

	var sum int64
	for _, row := range extracted.Transactions {
		sum += row.AmountCents
	}
	diff := extracted.BeginningBalanceCents + sum - extracted.EndingBalanceCents
	if diff == 0 {
		add("balance_reconciliation", "pass", "transactions reconcile beginning to ending balance")
	} else if utils.AbsInt64(diff) <= opts.BalanceToleranceCents {
		add("balance_reconciliation", "warn", "balances reconcile within tolerance (off by %s)", utils.FormatCents(diff))
	} else {
		add("balance_reconciliation", "fail", "transactions do not reconcile balances (off by %s)", utils.FormatCents(diff))
	}

	if extracted.BeginningBalanceCents == stmt.BeginningBalanceCents && extracted.EndingBalanceCents == stmt.EndingBalanceCents {
		add("summary_cross_check", "pass", "extracted balances match the statement record")
	} else {
		add("summary_cross_check", "warn", "extracted balances differ from the statement record (beginning %s vs %s, ending %s vs %s)",
			utils.FormatCents(extracted.BeginningBalanceCents), utils.FormatCents(stmt.BeginningBalanceCents),
			utils.FormatCents(extracted.EndingBalanceCents), utils.FormatCents(stmt.EndingBalanceCents))
	}

	outOfPeriod := 0
	for _, row := range extracted.Transactions {
		if row.Date < stmt.PeriodStart || row.Date > stmt.PeriodEnd {
			outOfPeriod++
		}
	}
	if outOfPeriod == 0 {
		add("date_containment", "pass", "all transaction dates fall within the period")
	} else {
		add("date_containment", "warn", "%d transaction dates fall outside the period", outOfPeriod)
	}

	seen := make(map[string]int)
	for _, row := range extracted.Transactions {
		seen[row.Date+"|"+strings.ToLower(row.Description)+"|"+fmt.Sprint(row.AmountCents)]++
	}
	duplicates := 0
	for _, n := range seen {
		if n > 1 {
			duplicates += n - 1
		}
	}
	if duplicates == 0 {
		add("duplicates", "pass", "no repeated transactions")
	} else {
		add("duplicates", "warn", "%d repeated transactions remain after sanitization", duplicates)
	}

	if n := len(extracted.Transactions); n == 0 {
		add("count_plausibility", "fail", "no transactions extracted")
	} else if n > 2000 {
		add("count_plausibility", "warn", "%d transactions extracted, unusually many for one statement", n)
	} else {
		add("count_plausibility", "pass", "%d transactions extracted", n)
	}

	if opts.LargeAmountSentinelCents > 0 {
		large := 0
		for _, row := range extracted.Transactions {
			if utils.AbsInt64(row.AmountCents) >= opts.LargeAmountSentinelCents {
				large++
			}
		}
		if large == 0 {
			add("large_amounts", "pass", "no amounts at or above the sentinel")
		} else {
			add("large_amounts", "warn", "%d amounts at or above %s, worth a manual look",
				large, utils.FormatCents(opts.LargeAmountSentinelCents))
		}
	}
	return findings
}
