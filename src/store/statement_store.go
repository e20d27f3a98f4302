package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

func InsertStatement(db *sql.DB, s *models.BankStatement) error {
	res, err := db.Exec(`INSERT INTO bank_statements
		(account_id, period_start, period_end, beginning_balance_cents, ending_balance_cents, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.AccountID, s.PeriodStart, s.PeriodEnd, s.BeginningBalanceCents, s.EndingBalanceCents, models.StatementPending)
	if err != nil {
		return fmt.Errorf("inserting bank statement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	s.Status = models.StatementPending
	return nil
}

func GetStatement(db *sql.DB, id int64) (*models.BankStatement, error) {
	var s models.BankStatement
	var reconciledAt sql.NullTime
	err := db.QueryRow(`SELECT id, account_id, period_start, period_end,
		beginning_balance_cents, ending_balance_cents, status, created_at, reconciled_at
		FROM bank_statements WHERE id = ?`, id).
		Scan(&s.ID, &s.AccountID, &s.PeriodStart, &s.PeriodEnd,
			&s.BeginningBalanceCents, &s.EndingBalanceCents, &s.Status, &s.CreatedAt, &reconciledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying statement %d: %w", id, err)
	}
	if reconciledAt.Valid {
		s.ReconciledAt = &reconciledAt.Time
	}
	return &s, nil
}

// PriorReconciledStatement returns the most recent reconciled statement whose
// period ends before the given date, the anchor for beginning balances.
func PriorReconciledStatement(db *sql.DB, accountID int64, beforeDate string) (*models.BankStatement, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM bank_statements
		WHERE account_id = ? AND period_end < ? AND status = ?
		ORDER BY period_end DESC LIMIT 1`,
		accountID, beforeDate, models.StatementReconciled).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying prior reconciled statement: %w", err)
	}
	return GetStatement(db, id)
}

func SetStatementStatus(db *sql.DB, id int64, status models.StatementStatus) error {
	var err error
	if status == models.StatementReconciled {
		_, err = db.Exec(`UPDATE bank_statements SET status = ?, reconciled_at = ? WHERE id = ?`, status, time.Now(), id)
	} else {
		_, err = db.Exec(`UPDATE bank_statements SET status = ?, reconciled_at = NULL WHERE id = ?`, status, id)
	}
	if err != nil {
		return fmt.Errorf("updating statement %d status: %w", id, err)
	}
	return nil
}

// SaveExtracted persists the sanitized extraction result on the statement.
func SaveExtracted(db *sql.DB, id int64, extracted *models.ExtractedStatement) error {
	payload, err := json.Marshal(extracted)
	if err != nil {
		return fmt.Errorf("encoding extracted statement: %w", err)
	}
	_, err = db.Exec(`UPDATE bank_statements SET extracted_json = ? WHERE id = ?`, string(payload), id)
	if err != nil {
		return fmt.Errorf("saving extracted statement %d: %w", id, err)
	}
	return nil
}

// GetExtracted loads the stored extraction result, or ErrNotFound when the
// statement has none.
func GetExtracted(db *sql.DB, id int64) (*models.ExtractedStatement, error) {
	var payload sql.NullString
	err := db.QueryRow(`SELECT extracted_json FROM bank_statements WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying extracted statement %d: %w", id, err)
	}
	if !payload.Valid || payload.String == "" {
		return nil, ErrNotFound
	}
	var extracted models.ExtractedStatement
	if err := json.Unmarshal([]byte(payload.String), &extracted); err != nil {
		return nil, fmt.Errorf("decoding extracted statement %d: %w", id, err)
	}
	return &extracted, nil
}
