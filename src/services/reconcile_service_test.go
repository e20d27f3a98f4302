package services

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/patrickmn/go-cache"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
)

func newReconcileService(db *sql.DB) *reconcileServiceImpl {
	return &reconcileServiceImpl{
		db:                db,
		reportCache:       cache.New(DefaultCacheExpiration, 0),
		bankToleranceDays: 1,
		cardToleranceDays: 3,
	}
}

func seedLedgerTx(t *testing.T, db *sql.DB, accountID int64, date string, amountCents int64, payee, sourceHash string) int64 {
	t.Helper()
	tx := &models.Transaction{
		AccountID: accountID, Date: date, Payee: payee, Description: payee,
		AmountCents: amountCents, SourceHash: sourceHash,
	}
	inserted, err := store.InsertTransaction(db, tx)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("seed transaction was deduplicated")
	}
	return tx.ID
}

func seedStatement(t *testing.T, db *sql.DB, accountID int64, from, to string, beginning, ending int64) int64 {
	t.Helper()
	s := &models.BankStatement{
		AccountID: accountID, PeriodStart: from, PeriodEnd: to,
		BeginningBalanceCents: beginning, EndingBalanceCents: ending,
	}
	if err := store.InsertStatement(db, s); err != nil {
		t.Fatal(err)
	}
	return s.ID
}

func TestSummaryBalanceArithmetic(t *testing.T) {
	db := newTestDB(t)
	account := &models.Account{Name: "Checking", Type: models.AccountChecking, OpeningBalanceCents: 100000}
	if err := store.CreateAccount(db, account); err != nil {
		t.Fatal(err)
	}
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, account.ID, "2026-02-01", "2026-02-28", 100000, 117500)
	deposit := seedLedgerTx(t, db, account.ID, "2026-02-10", 25000, "CLIENT PAYMENT", "")
	withdrawal := seedLedgerTx(t, db, account.ID, "2026-02-15", -7500, "OFFICE RENT", "")
	seedLedgerTx(t, db, account.ID, "2026-02-20", -999, "UNCLEARED COFFEE", "")

	if err := svc.SetCleared(stmtID, []int64{deposit, withdrawal}, true); err != nil {
		t.Fatal(err)
	}

	summary, err := svc.GetSummary(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.BeginningBalanceCents != 100000 {
		t.Fatalf("beginning = %d, want 100000", summary.BeginningBalanceCents)
	}
	if summary.ClearedDepositsCents != 25000 || summary.ClearedWithdrawalsCents != 7500 {
		t.Fatalf("deposits=%d withdrawals=%d, want 25000/7500",
			summary.ClearedDepositsCents, summary.ClearedWithdrawalsCents)
	}
	if summary.ComputedEndingCents != 117500 {
		t.Fatalf("computed ending = %d, want 117500", summary.ComputedEndingCents)
	}
	if summary.DifferenceCents != 0 || !summary.Reconcilable {
		t.Fatalf("expected reconcilable with zero difference, got diff=%d", summary.DifferenceCents)
	}
	if summary.ClearedTransactionCount != 2 || summary.UnclearedTransactionCount != 1 {
		t.Fatalf("cleared=%d uncleared=%d, want 2/1",
			summary.ClearedTransactionCount, summary.UnclearedTransactionCount)
	}
}

func TestSummaryBeginningFromPriorActivity(t *testing.T) {
	db := newTestDB(t)
	account := &models.Account{Name: "Checking", Type: models.AccountChecking, OpeningBalanceCents: 50000}
	if err := store.CreateAccount(db, account); err != nil {
		t.Fatal(err)
	}
	svc := newReconcileService(db)

	seedLedgerTx(t, db, account.ID, "2026-01-10", 30000, "JANUARY DEPOSIT", "")
	seedLedgerTx(t, db, account.ID, "2026-01-20", -10000, "JANUARY RENT", "")
	stmtID := seedStatement(t, db, account.ID, "2026-02-01", "2026-02-28", 70000, 70000)

	summary, err := svc.GetSummary(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.BeginningBalanceCents != 70000 {
		t.Fatalf("beginning = %d, want opening 50000 + prior 20000", summary.BeginningBalanceCents)
	}
}

func TestSummaryLiabilitySignFlip(t *testing.T) {
	db := newTestDB(t)
	account := &models.Account{Name: "Business Card", Type: models.AccountCreditCard}
	if err := store.CreateAccount(db, account); err != nil {
		t.Fatal(err)
	}
	svc := newReconcileService(db)

	// Charges are negative in the ledger; the card statement prints the
	// balance owed as positive.
	stmtID := seedStatement(t, db, account.ID, "2026-03-01", "2026-03-31", 0, 5000)
	charge := seedLedgerTx(t, db, account.ID, "2026-03-12", -5000, "HOSTING", "")

	if err := svc.SetCleared(stmtID, []int64{charge}, true); err != nil {
		t.Fatal(err)
	}
	summary, err := svc.GetSummary(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ClearedDepositsCents != 5000 {
		t.Fatalf("charge should print as +5000 on a liability statement, got %d", summary.ClearedDepositsCents)
	}
	if summary.ComputedEndingCents != 5000 || !summary.Reconcilable {
		t.Fatalf("computed=%d reconcilable=%v, want 5000/true", summary.ComputedEndingCents, summary.Reconcilable)
	}
}

func TestReconcileRefusesNonzeroDifference(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 100)

	err := svc.Reconcile(stmtID)
	if !errors.Is(err, ErrNotReconcilable) {
		t.Fatalf("expected ErrNotReconcilable, got %v", err)
	}
	stmt, err := store.GetStatement(db, stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if stmt.Status == models.StatementReconciled {
		t.Fatal("refused statement must not be marked reconciled")
	}
}

func TestReconcileAndUnreconcileLifecycle(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 25000)
	txID := seedLedgerTx(t, db, accountID, "2026-02-10", 25000, "CLIENT PAYMENT", "")
	if err := svc.SetCleared(stmtID, []int64{txID}, true); err != nil {
		t.Fatal(err)
	}

	if err := svc.Reconcile(stmtID); err != nil {
		t.Fatal(err)
	}
	stmt, _ := store.GetStatement(db, stmtID)
	if stmt.Status != models.StatementReconciled || stmt.ReconciledAt == nil {
		t.Fatalf("expected reconciled statement, got %+v", stmt)
	}
	tx, _ := store.GetTransactionByID(db, txID)
	if tx.ReconcileStatus != models.ReconcileReconciled {
		t.Fatalf("cleared row should lock to reconciled, got %q", tx.ReconcileStatus)
	}

	// Locked rows cannot be uncleared.
	if err := svc.SetCleared(stmtID, []int64{txID}, false); err != nil {
		t.Fatal(err)
	}
	tx, _ = store.GetTransactionByID(db, txID)
	if tx.ReconcileStatus != models.ReconcileReconciled {
		t.Fatal("reconciled row must not revert via SetCleared")
	}

	if err := svc.Unreconcile(stmtID); err != nil {
		t.Fatal(err)
	}
	stmt, _ = store.GetStatement(db, stmtID)
	if stmt.Status != models.StatementInProgress || stmt.ReconciledAt != nil {
		t.Fatalf("expected reopened statement, got %+v", stmt)
	}
	tx, _ = store.GetTransactionByID(db, txID)
	if tx.ReconcileStatus != models.ReconcileCleared {
		t.Fatalf("unreconcile should demote to cleared, got %q", tx.ReconcileStatus)
	}

	if err := svc.Unreconcile(stmtID); !errors.Is(err, ErrNotReconciled) {
		t.Fatalf("expected ErrNotReconciled on repeat, got %v", err)
	}
}

func TestAutoMatchByHash(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 0)
	seedLedgerTx(t, db, accountID, "2026-02-05", -2000, "HASHED A", "hash-a")
	seedLedgerTx(t, db, accountID, "2026-02-06", -3000, "HASHED B", "hash-b")
	seedLedgerTx(t, db, accountID, "2026-02-07", -4000, "NO HASH", "")
	seedLedgerTx(t, db, accountID, "2026-03-07", -5000, "OUT OF PERIOD", "hash-c")

	matched, err := svc.AutoMatchByHash(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if matched != 2 {
		t.Fatalf("expected 2 hash matches, got %d", matched)
	}
	txs, err := store.ListByStatement(db, stmtID)
	if err != nil {
		t.Fatal(err)
	}
	for _, tx := range txs {
		if tx.MatchMethod != "hash" || tx.ReconcileStatus != models.ReconcileCleared {
			t.Fatalf("unexpected match state %+v", tx)
		}
	}

	// Second pass finds nothing new.
	matched, err = svc.AutoMatchByHash(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if matched != 0 {
		t.Fatalf("repeat auto-match should be a no-op, got %d", matched)
	}
}

func TestMatchExtractedPrefersCloserCandidate(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 0)
	exact := seedLedgerTx(t, db, accountID, "2026-02-10", -4500, "COFFEE SUPPLY CO", "")
	seedLedgerTx(t, db, accountID, "2026-02-11", -4500, "SOMETHING ELSE", "")

	extracted := &models.ExtractedStatement{
		PeriodStart: "2026-02-01", PeriodEnd: "2026-02-28",
		Transactions: []models.ExtractedTransaction{
			{Date: "2026-02-10", Description: "COFFEE SUPPLY CO", AmountCents: -4500},
		},
	}
	if err := store.SaveExtracted(db, stmtID, extracted); err != nil {
		t.Fatal(err)
	}

	report, err := svc.MatchExtracted(stmtID, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Matched != 1 || len(report.Matches) != 1 {
		t.Fatalf("expected exactly one match, got %+v", report)
	}
	if report.Matches[0].TransactionID != exact {
		t.Fatalf("matched transaction %d, want the same-day exact-description row %d",
			report.Matches[0].TransactionID, exact)
	}
	tx, _ := store.GetTransactionByID(db, exact)
	if tx.ReconcileStatus != models.ReconcileCleared || tx.MatchMethod != "fuzzy" {
		t.Fatalf("unexpected cleared state %+v", tx)
	}
}

func TestMatchExtractedCreateMissingIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 0)
	extracted := &models.ExtractedStatement{
		PeriodStart: "2026-02-01", PeriodEnd: "2026-02-28",
		Transactions: []models.ExtractedTransaction{
			{Date: "2026-02-14", Description: "WIRE FEE", AmountCents: -1500},
		},
	}
	if err := store.SaveExtracted(db, stmtID, extracted); err != nil {
		t.Fatal(err)
	}

	report, err := svc.MatchExtracted(stmtID, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || report.Matched != 0 {
		t.Fatalf("expected one created row, got %+v", report)
	}
	txs, err := store.ListByStatement(db, stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].MatchMethod != "extracted" || txs[0].SourceHash == "" {
		t.Fatalf("unexpected created row %+v", txs)
	}

	// A repeat run matches nothing new and creates nothing: the created row
	// is cleared (out of the candidate pool) and its synthetic hash blocks
	// re-insertion.
	report, err = svc.MatchExtracted(stmtID, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 0 {
		t.Fatalf("repeat run created %d rows, want 0", report.Created)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after repeat run, got %d", count)
	}
}

func TestMatchExtractedPrefersDescriptionMatch(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)
	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 0)

	// same day, same amount: only the description decides. A payee match on
	// the other row must not outrank the description match.
	decoy := &models.Transaction{
		AccountID: accountID, Date: "2026-02-10", Payee: "COFFEE SUPPLY CO",
		Description: "POS DEBIT 1234", AmountCents: -4500,
	}
	if _, err := store.InsertTransaction(db, decoy); err != nil {
		t.Fatal(err)
	}
	target := &models.Transaction{
		AccountID: accountID, Date: "2026-02-10", Payee: "CARD 9921",
		Description: "COFFEE SUPPLY CO", AmountCents: -4500,
	}
	if _, err := store.InsertTransaction(db, target); err != nil {
		t.Fatal(err)
	}

	rows := []models.ExtractedTransaction{
		{Date: "2026-02-10", Description: "COFFEE SUPPLY CO", AmountCents: -4500},
	}
	report, err := svc.MatchExtracted(stmtID, rows, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Matched != 1 || report.Matches[0].TransactionID != target.ID {
		t.Fatalf("expected the description-matching row %d, got %+v", target.ID, report)
	}
}

func TestMatchExtractedCallerSuppliedRows(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	// no stored extraction: the caller's row list drives the pass
	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 0)
	txID := seedLedgerTx(t, db, accountID, "2026-02-10", -4500, "COFFEE SUPPLY CO", "")

	rows := []models.ExtractedTransaction{
		{Date: "2026-02-10", Description: "COFFEE SUPPLY CO", AmountCents: -4500},
	}
	report, err := svc.MatchExtracted(stmtID, rows, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Matched != 1 || report.Matches[0].TransactionID != txID {
		t.Fatalf("expected the supplied row to match %d, got %+v", txID, report)
	}
}

func TestMatchExtractedWithoutExtraction(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)
	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 0)

	if _, err := svc.MatchExtracted(stmtID, nil, false); !errors.Is(err, ErrNoExtractedRows) {
		t.Fatalf("expected ErrNoExtractedRows, got %v", err)
	}
}

func TestSummaryCacheInvalidation(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newReconcileService(db)

	stmtID := seedStatement(t, db, accountID, "2026-02-01", "2026-02-28", 0, 10000)
	txID := seedLedgerTx(t, db, accountID, "2026-02-10", 10000, "CLIENT PAYMENT", "")

	before, err := svc.GetSummary(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if before.Reconcilable {
		t.Fatal("nothing cleared yet, difference should be nonzero")
	}

	if err := svc.SetCleared(stmtID, []int64{txID}, true); err != nil {
		t.Fatal(err)
	}
	after, err := svc.GetSummary(stmtID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.Reconcilable {
		t.Fatal("summary should recompute after the cleared-flag mutation")
	}
}
