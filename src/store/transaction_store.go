package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

const txColumns = `id, account_id, date, payee, payee_display, description, amount_cents, category_id,
	review_status, reconcile_status, statement_id, match_method,
	is_transfer, transfer_account_id, transfer_group_id,
	source_system, source_id, source_hash, batch_id, row_number, row_hash, has_splits`

// InsertTransaction performs the idempotent upsert: an insert-if-absent on
// the (account, source hash) and (batch, row hash) unique indexes. It returns
// false when the row already existed; a duplicate is success-by-idempotence,
// never an error.
func InsertTransaction(db *sql.DB, t *models.Transaction) (bool, error) {
	res, err := db.Exec(`INSERT OR IGNORE INTO transactions
		(account_id, date, payee, payee_display, description, amount_cents, category_id,
		 review_status, reconcile_status, statement_id, match_method,
		 is_transfer, transfer_account_id, transfer_group_id,
		 source_system, source_id, source_hash, batch_id, row_number, row_hash, has_splits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.Date, t.Payee, t.PayeeDisplay, t.Description, t.AmountCents, t.CategoryID,
		string(orDefault(t.ReviewStatus, models.ReviewNeedsReview)),
		string(orDefaultRecon(t.ReconcileStatus, models.ReconcileUnreconciled)),
		t.StatementID, nullable(t.MatchMethod),
		t.IsTransfer, t.TransferAccountID, nullable(t.TransferGroupID),
		nullable(t.SourceSystem), nullable(t.SourceID), nullable(t.SourceHash),
		t.BatchID, t.RowNumber, nullable(t.RowHash), t.HasSplits)
	if err != nil {
		return false, fmt.Errorf("inserting transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return true, err
	}
	t.ID = id
	return true, nil
}

// InsertTransactions writes a chunk of rows inside one database transaction,
// with the same insert-if-absent semantics as InsertTransaction. It returns
// the number of rows actually inserted. On any failure the whole chunk rolls
// back and the caller falls back to row-at-a-time inserts.
func InsertTransactions(db *sql.DB, txs []*models.Transaction) (int, error) {
	dbTx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning chunk insert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT OR IGNORE INTO transactions
		(account_id, date, payee, payee_display, description, amount_cents, category_id,
		 review_status, reconcile_status, statement_id, match_method,
		 is_transfer, transfer_account_id, transfer_group_id,
		 source_system, source_id, source_hash, batch_id, row_number, row_hash, has_splits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range txs {
		res, err := stmt.Exec(
			t.AccountID, t.Date, t.Payee, t.PayeeDisplay, t.Description, t.AmountCents, t.CategoryID,
			string(orDefault(t.ReviewStatus, models.ReviewNeedsReview)),
			string(orDefaultRecon(t.ReconcileStatus, models.ReconcileUnreconciled)),
			t.StatementID, nullable(t.MatchMethod),
			t.IsTransfer, t.TransferAccountID, nullable(t.TransferGroupID),
			nullable(t.SourceSystem), nullable(t.SourceID), nullable(t.SourceHash),
			t.BatchID, t.RowNumber, nullable(t.RowHash), t.HasSplits)
		if err != nil {
			return 0, fmt.Errorf("inserting chunk row %d: %w", t.RowNumber, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if n == 1 {
			inserted++
			if id, err := res.LastInsertId(); err == nil {
				t.ID = id
			}
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("committing chunk insert: %w", err)
	}
	return inserted, nil
}

// InsertSplits writes a transaction's split legs and flags the parent. The
// caller is responsible for having validated the zero-sum invariant first.
func InsertSplits(db *sql.DB, transactionID int64, splits []models.TransactionSplit) error {
	dbTx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning split insert: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transaction_splits (transaction_id, account_id, category_id, amount_cents, memo)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing split insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range splits {
		if _, err := stmt.Exec(transactionID, s.AccountID, s.CategoryID, s.AmountCents, s.Memo); err != nil {
			return fmt.Errorf("inserting split leg: %w", err)
		}
	}
	if _, err := dbTx.Exec(`UPDATE transactions SET has_splits = TRUE WHERE id = ?`, transactionID); err != nil {
		return fmt.Errorf("flagging split parent: %w", err)
	}
	return dbTx.Commit()
}

func GetTransactionByID(db *sql.DB, id int64) (*models.Transaction, error) {
	row := db.QueryRow(`SELECT `+txColumns+` FROM transactions WHERE id = ? AND deleted_at IS NULL`, id)
	t, err := scanTransactionRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying transaction %d: %w", id, err)
	}
	return t, nil
}

// ListTransactions scans an account's ledger in a date range (inclusive).
func ListTransactions(db *sql.DB, accountID int64, from, to string) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND date >= ? AND date <= ? AND deleted_at IS NULL
		ORDER BY date ASC, id ASC`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying transactions for account %d: %w", accountID, err)
	}
	return collectTransactions(rows)
}

// ListUnpairedOnDate returns an account's non-transfer rows on one date, the
// left-hand legs the transfer pairing pass starts from.
func ListUnpairedOnDate(db *sql.DB, accountID int64, date string) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND date = ? AND NOT is_transfer AND deleted_at IS NULL
		ORDER BY id ASC`, accountID, date)
	if err != nil {
		return nil, fmt.Errorf("querying unpaired transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListTransferCandidates returns same-day rows on other accounts whose amount
// is the exact negation and which are not already tagged as transfers.
func ListTransferCandidates(db *sql.DB, excludeAccountID int64, date string, negatedAmount int64) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE account_id != ? AND date = ? AND amount_cents = ? AND NOT is_transfer AND deleted_at IS NULL
		ORDER BY id ASC`, excludeAccountID, date, negatedAmount)
	if err != nil {
		return nil, fmt.Errorf("querying transfer candidates: %w", err)
	}
	return collectTransactions(rows)
}

// MarkTransferPair tags both legs of a detected transfer with a shared group
// identifier and each other's account. Both legs must still be untagged;
// when either was claimed by a concurrent pass the whole tag rolls back so
// no one-legged group is ever written.
func MarkTransferPair(db *sql.DB, sourceID, pairedID, sourceAccountID, pairedAccountID int64, groupID string) error {
	dbTx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transfer tag: %w", err)
	}
	defer dbTx.Rollback()

	tag := `UPDATE transactions SET is_transfer = TRUE, transfer_account_id = ?, transfer_group_id = ? WHERE id = ? AND NOT is_transfer`
	res, err := dbTx.Exec(tag, pairedAccountID, groupID, sourceID)
	if err != nil {
		return fmt.Errorf("tagging transfer source %d: %w", sourceID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("transfer source %d already tagged", sourceID)
	}
	res, err = dbTx.Exec(tag, sourceAccountID, groupID, pairedID)
	if err != nil {
		return fmt.Errorf("tagging transfer pair %d: %w", pairedID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("transfer pair %d already tagged", pairedID)
	}
	return dbTx.Commit()
}

// SumAmountsBefore totals an account's ledger strictly before a date.
func SumAmountsBefore(db *sql.DB, accountID int64, dateExclusive string) (int64, error) {
	var sum sql.NullInt64
	err := db.QueryRow(`SELECT SUM(amount_cents) FROM transactions
		WHERE account_id = ? AND date < ? AND deleted_at IS NULL`, accountID, dateExclusive).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing prior amounts for account %d: %w", accountID, err)
	}
	return sum.Int64, nil
}

// ListHashedUncleared returns in-period rows that carry a source hash and are
// not yet cleared, the inputs to hash auto-matching.
func ListHashedUncleared(db *sql.DB, accountID int64, from, to string) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND date >= ? AND date <= ?
		AND source_hash IS NOT NULL AND reconcile_status = ? AND deleted_at IS NULL
		ORDER BY date ASC, id ASC`, accountID, from, to, models.ReconcileUnreconciled)
	if err != nil {
		return nil, fmt.Errorf("querying hashed uncleared transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListMatchCandidates returns uncleared in-period rows, the candidate pool
// for extracted-transaction fuzzy matching.
func ListMatchCandidates(db *sql.DB, accountID int64, from, to string) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE account_id = ? AND date >= ? AND date <= ?
		AND reconcile_status = ? AND deleted_at IS NULL
		ORDER BY date ASC, id ASC`, accountID, from, to, models.ReconcileUnreconciled)
	if err != nil {
		return nil, fmt.Errorf("querying match candidates: %w", err)
	}
	return collectTransactions(rows)
}

func ListByStatement(db *sql.DB, statementID int64) ([]models.Transaction, error) {
	rows, err := db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE statement_id = ? AND deleted_at IS NULL ORDER BY date ASC, id ASC`, statementID)
	if err != nil {
		return nil, fmt.Errorf("querying statement transactions: %w", err)
	}
	return collectTransactions(rows)
}

// MarkCleared associates a transaction with a statement. Already-reconciled
// rows are left untouched.
func MarkCleared(db *sql.DB, transactionID, statementID int64, method string) error {
	_, err := db.Exec(`UPDATE transactions
		SET reconcile_status = ?, statement_id = ?, match_method = ?
		WHERE id = ? AND reconcile_status != ?`,
		models.ReconcileCleared, statementID, method, transactionID, models.ReconcileReconciled)
	if err != nil {
		return fmt.Errorf("clearing transaction %d: %w", transactionID, err)
	}
	return nil
}

// Unclear detaches cleared (not reconciled) transactions from a statement.
func Unclear(db *sql.DB, transactionID, statementID int64) error {
	_, err := db.Exec(`UPDATE transactions
		SET reconcile_status = ?, statement_id = NULL, match_method = NULL
		WHERE id = ? AND statement_id = ? AND reconcile_status = ?`,
		models.ReconcileUnreconciled, transactionID, statementID, models.ReconcileCleared)
	if err != nil {
		return fmt.Errorf("unclearing transaction %d: %w", transactionID, err)
	}
	return nil
}

// LockStatementReconciled promotes a statement's cleared rows to reconciled.
func LockStatementReconciled(db *sql.DB, statementID int64) error {
	_, err := db.Exec(`UPDATE transactions SET reconcile_status = ?
		WHERE statement_id = ? AND reconcile_status = ?`,
		models.ReconcileReconciled, statementID, models.ReconcileCleared)
	if err != nil {
		return fmt.Errorf("locking statement %d transactions: %w", statementID, err)
	}
	return nil
}

// UnlockStatementReconciled reverts a statement's reconciled rows to cleared,
// the explicit un-reconciliation path.
func UnlockStatementReconciled(db *sql.DB, statementID int64) error {
	_, err := db.Exec(`UPDATE transactions SET reconcile_status = ?
		WHERE statement_id = ? AND reconcile_status = ?`,
		models.ReconcileCleared, statementID, models.ReconcileReconciled)
	if err != nil {
		return fmt.Errorf("unlocking statement %d transactions: %w", statementID, err)
	}
	return nil
}

// SoftDeleteTransaction tombstones a transaction; rows are never purged.
func SoftDeleteTransaction(db *sql.DB, id int64) error {
	res, err := db.Exec(`UPDATE transactions SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTransactionCategory reclassifies a transaction; the amount itself is
// never re-signed.
func SetTransactionCategory(db *sql.DB, id int64, categoryID *int64) error {
	res, err := db.Exec(`UPDATE transactions SET category_id = ? WHERE id = ? AND deleted_at IS NULL`, categoryID, id)
	if err != nil {
		return fmt.Errorf("recategorizing transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func ApproveTransaction(db *sql.DB, id int64) error {
	res, err := db.Exec(`UPDATE transactions SET review_status = ? WHERE id = ? AND deleted_at IS NULL`,
		models.ReviewApproved, id)
	if err != nil {
		return fmt.Errorf("approving transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DistinctBatchDates lists the dates a batch touched, for the post-import
// transfer pairing pass.
func DistinctBatchDates(db *sql.DB, batchID int64) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT date FROM transactions WHERE batch_id = ? ORDER BY date ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("querying batch dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning batch date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// PayeeCategory is one historical payee→category pairing handed to the
// external suggester for context.
type PayeeCategory struct {
	Payee    string `json:"payee"`
	Category string `json:"category"`
}

// RecentPayeeCategories returns the most recent approved payee→category
// pairs, newest first.
func RecentPayeeCategories(db *sql.DB, limit int) ([]PayeeCategory, error) {
	rows, err := db.Query(`SELECT t.payee, c.name FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.review_status = ? AND t.deleted_at IS NULL
		ORDER BY t.id DESC LIMIT ?`, models.ReviewApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent payee categories: %w", err)
	}
	defer rows.Close()

	var pairs []PayeeCategory
	for rows.Next() {
		var p PayeeCategory
		if err := rows.Scan(&p.Payee, &p.Category); err != nil {
			return nil, fmt.Errorf("scanning payee category: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()
	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func scanTransactionRow(scan func(dest ...any) error) (*models.Transaction, error) {
	var t models.Transaction
	var payeeDisplay, description, matchMethod, transferGroup, sourceSystem, sourceID, sourceHash, rowHash sql.NullString
	var rowNumber sql.NullInt64
	err := scan(
		&t.ID, &t.AccountID, &t.Date, &t.Payee, &payeeDisplay, &description, &t.AmountCents, &t.CategoryID,
		&t.ReviewStatus, &t.ReconcileStatus, &t.StatementID, &matchMethod,
		&t.IsTransfer, &t.TransferAccountID, &transferGroup,
		&sourceSystem, &sourceID, &sourceHash, &t.BatchID, &rowNumber, &rowHash, &t.HasSplits,
	)
	if err != nil {
		return nil, err
	}
	t.PayeeDisplay = payeeDisplay.String
	t.Description = description.String
	t.MatchMethod = matchMethod.String
	t.TransferGroupID = transferGroup.String
	t.SourceSystem = sourceSystem.String
	t.SourceID = sourceID.String
	t.SourceHash = sourceHash.String
	t.RowNumber = int(rowNumber.Int64)
	t.RowHash = rowHash.String
	return &t, nil
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func orDefault(s, def models.ReviewStatus) models.ReviewStatus {
	if s == "" {
		return def
	}
	return s
}

func orDefaultRecon(s, def models.ReconcileStatus) models.ReconcileStatus {
	if s == "" {
		return def
	}
	return s
}
