package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/metrics"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

const (
	ckStatementSummary = "summary_stmt_%d"

	dateScoreWeight = 0.6
	descScoreWeight = 0.4

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// ReconciliationSummary is the full working state of one statement: computed
// balances, cleared activity, the in-period ledger rows and any extracted
// rows still lacking a ledger counterpart. Balances follow the statement's
// printed sign convention.
type ReconciliationSummary struct {
	StatementID int64                  `json:"statement_id"`
	AccountID   int64                  `json:"account_id"`
	Status      models.StatementStatus `json:"status"`
	PeriodStart string                 `json:"period_start"`
	PeriodEnd   string                 `json:"period_end"`

	BeginningBalanceCents     int64 `json:"beginning_balance_cents"`
	ClearedDepositsCents      int64 `json:"cleared_deposits_cents"`
	ClearedWithdrawalsCents   int64 `json:"cleared_withdrawals_cents"`
	ComputedEndingCents       int64 `json:"computed_ending_cents"`
	StatementEndingCents      int64 `json:"statement_ending_cents"`
	DifferenceCents           int64 `json:"difference_cents"`
	Reconcilable              bool  `json:"reconcilable"`
	ClearedTransactionCount   int   `json:"cleared_transaction_count"`
	UnclearedTransactionCount int   `json:"uncleared_transaction_count"`

	Transactions       []models.Transaction          `json:"transactions"`
	UnmatchedExtracted []models.ExtractedTransaction `json:"unmatched_extracted,omitempty"`
}

// ExtractedMatch records one extracted row cleared against a ledger row.
type ExtractedMatch struct {
	TransactionID int64   `json:"transaction_id"`
	Date          string  `json:"date"`
	Description   string  `json:"description"`
	AmountCents   int64   `json:"amount_cents"`
	Score         float64 `json:"score"`
}

// MatchReport summarizes one extracted-row matching pass.
type MatchReport struct {
	Matched   int                           `json:"matched"`
	Created   int                           `json:"created"`
	Matches   []ExtractedMatch              `json:"matches,omitempty"`
	Unmatched []models.ExtractedTransaction `json:"unmatched,omitempty"`
}

type reconcileServiceImpl struct {
	db          *sql.DB
	reportCache *cache.Cache

	bankToleranceDays int
	cardToleranceDays int
}

func NewReconcileService(db *sql.DB, reportCache *cache.Cache, bankToleranceDays, cardToleranceDays int) ReconcileService {
	return &reconcileServiceImpl{
		db:                db,
		reportCache:       reportCache,
		bankToleranceDays: bankToleranceDays,
		cardToleranceDays: cardToleranceDays,
	}
}

func (s *reconcileServiceImpl) CreateStatement(stmt *models.BankStatement) error {
	if _, err := store.GetAccountByID(s.db, stmt.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	if err := store.InsertStatement(s.db, stmt); err != nil {
		return err
	}
	logger.L.Info("Statement created", "statementID", stmt.ID, "accountID", stmt.AccountID,
		"period", stmt.PeriodStart+".."+stmt.PeriodEnd)
	return nil
}

func (s *reconcileServiceImpl) GetSummary(statementID int64) (*ReconciliationSummary, error) {
	cacheKey := fmt.Sprintf(ckStatementSummary, statementID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		if summary, ok := cached.(*ReconciliationSummary); ok {
			return summary, nil
		}
	}
	summary, err := s.buildSummary(statementID)
	if err != nil {
		return nil, err
	}
	s.reportCache.Set(cacheKey, summary, cache.DefaultExpiration)
	return summary, nil
}

func (s *reconcileServiceImpl) buildSummary(statementID int64) (*ReconciliationSummary, error) {
	stmt, account, err := s.loadStatement(statementID)
	if err != nil {
		return nil, err
	}
	sign := polaritySign(account)

	beginning, err := s.beginningBalance(stmt, account, sign)
	if err != nil {
		return nil, err
	}

	clearedTxs, err := store.ListByStatement(s.db, statementID)
	if err != nil {
		return nil, err
	}
	var deposits, withdrawals int64
	for i := range clearedTxs {
		printed := sign * clearedTxs[i].AmountCents
		if printed >= 0 {
			deposits += printed
		} else {
			withdrawals += -printed
		}
	}

	inPeriod, err := store.ListTransactions(s.db, stmt.AccountID, stmt.PeriodStart, stmt.PeriodEnd)
	if err != nil {
		return nil, err
	}
	cleared, uncleared := 0, 0
	for i := range inPeriod {
		if inPeriod[i].StatementID != nil && *inPeriod[i].StatementID == statementID &&
			inPeriod[i].ReconcileStatus != models.ReconcileUnreconciled {
			cleared++
		} else {
			uncleared++
		}
	}

	computedEnding := beginning + deposits - withdrawals
	difference := stmt.EndingBalanceCents - computedEnding

	summary := &ReconciliationSummary{
		StatementID: stmt.ID,
		AccountID:   stmt.AccountID,
		Status:      stmt.Status,
		PeriodStart: stmt.PeriodStart,
		PeriodEnd:   stmt.PeriodEnd,

		BeginningBalanceCents:     beginning,
		ClearedDepositsCents:      deposits,
		ClearedWithdrawalsCents:   withdrawals,
		ComputedEndingCents:       computedEnding,
		StatementEndingCents:      stmt.EndingBalanceCents,
		DifferenceCents:           difference,
		Reconcilable:              difference == 0,
		ClearedTransactionCount:   cleared,
		UnclearedTransactionCount: uncleared,

		Transactions: inPeriod,
	}

	if extracted, err := store.GetExtracted(s.db, statementID); err == nil {
		summary.UnmatchedExtracted = unmatchedExtracted(extracted, clearedTxs, sign,
			account.MatchToleranceDays(s.bankToleranceDays, s.cardToleranceDays))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return summary, nil
}

// beginningBalance anchors on the prior reconciled statement's printed
// ending balance; lacking one, it derives the balance from the account's
// opening balance plus all ledger activity before the period.
func (s *reconcileServiceImpl) beginningBalance(stmt *models.BankStatement, account *models.Account, sign int64) (int64, error) {
	prior, err := store.PriorReconciledStatement(s.db, stmt.AccountID, stmt.PeriodStart)
	if err == nil {
		return prior.EndingBalanceCents, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	priorSum, err := store.SumAmountsBefore(s.db, stmt.AccountID, stmt.PeriodStart)
	if err != nil {
		return 0, err
	}
	return account.OpeningBalanceCents + sign*priorSum, nil
}

func (s *reconcileServiceImpl) SetCleared(statementID int64, transactionIDs []int64, cleared bool) error {
	stmt, _, err := s.loadStatement(statementID)
	if err != nil {
		return err
	}
	for _, txID := range transactionIDs {
		if cleared {
			err = store.MarkCleared(s.db, txID, statementID, "manual")
		} else {
			err = store.Unclear(s.db, txID, statementID)
		}
		if err != nil {
			return err
		}
	}
	if cleared {
		metrics.ReconcileMatches.WithLabelValues("manual").Add(float64(len(transactionIDs)))
	}
	s.markInProgress(stmt)
	s.invalidate(statementID)
	return nil
}

// AutoMatchByHash clears every in-period row that carries a source hash.
// Rows a bank feed stamped with a stable identity need no fuzzy matching.
func (s *reconcileServiceImpl) AutoMatchByHash(statementID int64) (int, error) {
	stmt, _, err := s.loadStatement(statementID)
	if err != nil {
		return 0, err
	}
	candidates, err := store.ListHashedUncleared(s.db, stmt.AccountID, stmt.PeriodStart, stmt.PeriodEnd)
	if err != nil {
		return 0, err
	}
	matched := 0
	for i := range candidates {
		if err := store.MarkCleared(s.db, candidates[i].ID, statementID, "hash"); err != nil {
			return matched, err
		}
		matched++
	}
	if matched > 0 {
		metrics.ReconcileMatches.WithLabelValues("hash").Add(float64(matched))
		s.markInProgress(stmt)
		s.invalidate(statementID)
	}
	logger.L.Info("Hash auto-match complete", "statementID", statementID, "matched", matched)
	return matched, nil
}

// MatchExtracted pairs extracted statement rows with uncleared ledger rows:
// exact cents, a date window sized by account type, and a fuzzy score over
// date distance and description similarity. Greedy, in extraction order;
// each ledger row is claimed at most once. The caller may supply the rows
// directly; an empty list falls back to the statement's stored extraction.
// With createMissing, unmatched rows become new cleared transactions
// carrying a synthetic source hash.
func (s *reconcileServiceImpl) MatchExtracted(statementID int64, rows []models.ExtractedTransaction, createMissing bool) (*MatchReport, error) {
	stmt, account, err := s.loadStatement(statementID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		extracted, err := store.GetExtracted(s.db, statementID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNoExtractedRows
			}
			return nil, err
		}
		rows = extracted.Transactions
	}

	tolerance := account.MatchToleranceDays(s.bankToleranceDays, s.cardToleranceDays)
	sign := polaritySign(account)

	poolFrom := addDays(stmt.PeriodStart, -tolerance)
	poolTo := addDays(stmt.PeriodEnd, tolerance)
	candidates, err := store.ListMatchCandidates(s.db, stmt.AccountID, poolFrom, poolTo)
	if err != nil {
		return nil, err
	}

	report := &MatchReport{}
	claimed := make(map[int64]bool)

	for _, row := range rows {
		best := -1
		bestScore := 0.0
		for i := range candidates {
			tx := &candidates[i]
			if claimed[tx.ID] || tx.AmountCents != sign*row.AmountCents {
				continue
			}
			days := daysBetween(row.Date, tx.Date)
			if days < 0 || days > tolerance {
				continue
			}
			score := matchScore(days, tolerance, row.Description, tx.Description)
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			report.Unmatched = append(report.Unmatched, row)
			continue
		}
		tx := &candidates[best]
		if err := store.MarkCleared(s.db, tx.ID, statementID, "fuzzy"); err != nil {
			return nil, err
		}
		claimed[tx.ID] = true
		report.Matched++
		report.Matches = append(report.Matches, ExtractedMatch{
			TransactionID: tx.ID,
			Date:          row.Date,
			Description:   row.Description,
			AmountCents:   row.AmountCents,
			Score:         bestScore,
		})
	}

	if createMissing {
		created, err := s.createFromExtracted(stmt, sign, report.Unmatched)
		if err != nil {
			return nil, err
		}
		report.Created = created
		report.Unmatched = nil
	}

	if report.Matched > 0 {
		metrics.ReconcileMatches.WithLabelValues("fuzzy").Add(float64(report.Matched))
	}
	if report.Created > 0 {
		metrics.ReconcileMatches.WithLabelValues("extracted").Add(float64(report.Created))
	}
	s.markInProgress(stmt)
	s.invalidate(statementID)
	logger.L.Info("Extracted matching complete", "statementID", statementID,
		"matched", report.Matched, "created", report.Created, "unmatched", len(report.Unmatched))
	return report, nil
}

// createFromExtracted materializes unmatched extracted rows as cleared
// ledger transactions. The synthetic source hash keeps repeat runs from
// duplicating them.
func (s *reconcileServiceImpl) createFromExtracted(stmt *models.BankStatement, sign int64, rows []models.ExtractedTransaction) (int, error) {
	created := 0
	for _, row := range rows {
		tx := &models.Transaction{
			AccountID:       stmt.AccountID,
			Date:            row.Date,
			Payee:           row.Description,
			Description:     row.Description,
			AmountCents:     sign * row.AmountCents,
			ReconcileStatus: models.ReconcileCleared,
			StatementID:     &stmt.ID,
			MatchMethod:     "extracted",
			SourceSystem:    "statement_extract",
			SourceHash:      utils.SyntheticSourceHash(stmt.ID, row.Date, row.Description, row.AmountCents),
		}
		inserted, err := store.InsertTransaction(s.db, tx)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

// Reconcile finalizes a statement. A nonzero difference is a structured
// refusal carrying the remaining gap; nothing is mutated in that case.
func (s *reconcileServiceImpl) Reconcile(statementID int64) error {
	s.invalidate(statementID)
	summary, err := s.buildSummary(statementID)
	if err != nil {
		return err
	}
	if !summary.Reconcilable {
		return fmt.Errorf("%w: off by %s", ErrNotReconcilable, utils.FormatCents(summary.DifferenceCents))
	}
	if err := store.LockStatementReconciled(s.db, statementID); err != nil {
		return err
	}
	if err := store.SetStatementStatus(s.db, statementID, models.StatementReconciled); err != nil {
		return err
	}
	metrics.StatementsReconciled.Inc()
	s.invalidate(statementID)
	logger.L.Info("Statement reconciled", "statementID", statementID,
		"endingBalance", utils.FormatCents(summary.StatementEndingCents))
	return nil
}

// Unreconcile reopens a reconciled statement, demoting its locked rows back
// to cleared.
func (s *reconcileServiceImpl) Unreconcile(statementID int64) error {
	stmt, _, err := s.loadStatement(statementID)
	if err != nil {
		return err
	}
	if stmt.Status != models.StatementReconciled {
		return ErrNotReconciled
	}
	if err := store.UnlockStatementReconciled(s.db, statementID); err != nil {
		return err
	}
	if err := store.SetStatementStatus(s.db, statementID, models.StatementInProgress); err != nil {
		return err
	}
	s.invalidate(statementID)
	logger.L.Info("Statement unreconciled", "statementID", statementID)
	return nil
}

func (s *reconcileServiceImpl) loadStatement(statementID int64) (*models.BankStatement, *models.Account, error) {
	stmt, err := store.GetStatement(s.db, statementID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrStatementNotFound
		}
		return nil, nil, err
	}
	account, err := store.GetAccountByID(s.db, stmt.AccountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrAccountNotFound
		}
		return nil, nil, err
	}
	return stmt, account, nil
}

func (s *reconcileServiceImpl) markInProgress(stmt *models.BankStatement) {
	if stmt.Status != models.StatementPending {
		return
	}
	if err := store.SetStatementStatus(s.db, stmt.ID, models.StatementInProgress); err != nil {
		logger.L.Warn("Failed to mark statement in progress", "statementID", stmt.ID, "error", err)
	}
}

func (s *reconcileServiceImpl) invalidate(statementID int64) {
	s.reportCache.Delete(fmt.Sprintf(ckStatementSummary, statementID))
}

// polaritySign converts between the ledger's asset-centric amounts and the
// statement's printed sign convention. Liability statements print charges
// as positive balances owed.
func polaritySign(account *models.Account) int64 {
	if account.IsLiability() {
		return -1
	}
	return 1
}

// matchScore weighs date proximity against description similarity.
func matchScore(days, tolerance int, extractedDesc, ledgerDesc string) float64 {
	dateScore := 1.0 - float64(days)/float64(tolerance+1)
	return dateScoreWeight*dateScore + descScoreWeight*descSimilarity(extractedDesc, ledgerDesc)
}

// descSimilarity scores two descriptions: exact 1.0, containment 0.8,
// otherwise the longest-common-substring share of the longer string.
func descSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(longestCommonSubstring(a, b)) / float64(longer)
}

func longestCommonSubstring(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return best
}

// unmatchedExtracted lists extracted rows with no cleared counterpart by
// amount and date window.
func unmatchedExtracted(extracted *models.ExtractedStatement, clearedTxs []models.Transaction, sign int64, tolerance int) []models.ExtractedTransaction {
	claimed := make(map[int64]bool)
	var unmatched []models.ExtractedTransaction
	for _, row := range extracted.Transactions {
		found := false
		for i := range clearedTxs {
			tx := &clearedTxs[i]
			if claimed[tx.ID] || tx.AmountCents != sign*row.AmountCents {
				continue
			}
			if days := daysBetween(row.Date, tx.Date); days >= 0 && days <= tolerance {
				claimed[tx.ID] = true
				found = true
				break
			}
		}
		if !found {
			unmatched = append(unmatched, row)
		}
	}
	return unmatched
}

const isoDate = "2006-01-02"

// daysBetween returns the absolute day distance between two ISO dates, or -1
// when either fails to parse.
func daysBetween(a, b string) int {
	ta, errA := time.Parse(isoDate, a)
	tb, errB := time.Parse(isoDate, b)
	if errA != nil || errB != nil {
		return -1
	}
	days := int(ta.Sub(tb).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

func addDays(date string, days int) string {
	t, err := time.Parse(isoDate, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format(isoDate)
}
