package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

func InsertBatch(db *sql.DB, b *models.ImportBatch) error {
	res, err := db.Exec(`INSERT INTO import_batches (account_id, file_name, file_size, file_hash, status)
		VALUES (?, ?, ?, ?, ?)`,
		b.AccountID, b.FileName, b.FileSize, b.FileHash, models.BatchQueued)
	if err != nil {
		return fmt.Errorf("inserting import batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	b.Status = models.BatchQueued
	return nil
}

func GetBatch(db *sql.DB, id int64) (*models.ImportBatch, error) {
	var b models.ImportBatch
	var errorMessage, rowErrors sql.NullString
	var startedAt, finishedAt sql.NullTime
	err := db.QueryRow(`SELECT id, account_id, file_name, file_size, file_hash, status,
		total_rows, processed_rows, inserted_rows, skipped_rows, error_rows,
		error_message, row_errors, created_at, started_at, finished_at
		FROM import_batches WHERE id = ?`, id).
		Scan(&b.ID, &b.AccountID, &b.FileName, &b.FileSize, &b.FileHash, &b.Status,
			&b.TotalRows, &b.ProcessedRows, &b.InsertedRows, &b.SkippedRows, &b.ErrorRows,
			&errorMessage, &rowErrors, &b.CreatedAt, &startedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying import batch %d: %w", id, err)
	}
	b.ErrorMessage = errorMessage.String
	if rowErrors.Valid && rowErrors.String != "" {
		if err := json.Unmarshal([]byte(rowErrors.String), &b.RowErrors); err != nil {
			return nil, fmt.Errorf("decoding row errors for batch %d: %w", id, err)
		}
	}
	if startedAt.Valid {
		b.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		b.FinishedAt = &finishedAt.Time
	}
	return &b, nil
}

// GetBatchStatus re-reads only the status column, the cancellation check the
// import runner issues at every chunk boundary.
func GetBatchStatus(db *sql.DB, id int64) (models.BatchStatus, error) {
	var status models.BatchStatus
	err := db.QueryRow(`SELECT status FROM import_batches WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying batch %d status: %w", id, err)
	}
	return status, nil
}

// FindActiveBatch returns an in-flight (queued or running) batch for the same
// account and file content, the guard against duplicate runs of one upload.
func FindActiveBatch(db *sql.DB, accountID int64, fileHash string) (*models.ImportBatch, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM import_batches
		WHERE account_id = ? AND file_hash = ? AND status IN (?, ?)
		ORDER BY id DESC LIMIT 1`,
		accountID, fileHash, models.BatchQueued, models.BatchRunning).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying active batch: %w", err)
	}
	return GetBatch(db, id)
}

// ClaimBatch is the queued→running compare-and-swap. Exactly one of two
// concurrent workers wins; the loser sees false and must not run the batch.
func ClaimBatch(db *sql.DB, id int64, startedAt time.Time) (bool, error) {
	res, err := db.Exec(`UPDATE import_batches SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		models.BatchRunning, startedAt, id, models.BatchQueued)
	if err != nil {
		return false, fmt.Errorf("claiming batch %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateBatchProgress durably records counters and the bounded row-error
// sample. Called after every chunk so progress is visible mid-run.
func UpdateBatchProgress(db *sql.DB, b *models.ImportBatch) error {
	rowErrors, err := json.Marshal(b.RowErrors)
	if err != nil {
		return fmt.Errorf("encoding row errors: %w", err)
	}
	_, err = db.Exec(`UPDATE import_batches
		SET total_rows = ?, processed_rows = ?, inserted_rows = ?, skipped_rows = ?, error_rows = ?, row_errors = ?
		WHERE id = ?`,
		b.TotalRows, b.ProcessedRows, b.InsertedRows, b.SkippedRows, b.ErrorRows, string(rowErrors), b.ID)
	if err != nil {
		return fmt.Errorf("updating batch %d progress: %w", b.ID, err)
	}
	return nil
}

// FinishBatch records the terminal status and timestamp. A batch that
// already reached a different terminal status keeps it; in particular a
// cancel landing during the final chunk must not be overwritten by a late
// succeeded. Returns false when the update lost to an earlier terminal
// status.
func FinishBatch(db *sql.DB, id int64, status models.BatchStatus, message string, finishedAt time.Time) (bool, error) {
	res, err := db.Exec(`UPDATE import_batches SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status IN (?, ?, ?)`,
		status, message, finishedAt, id, models.BatchQueued, models.BatchRunning, status)
	if err != nil {
		return false, fmt.Errorf("finishing batch %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CancelBatch requests cooperative cancellation. A queued batch flips to
// canceled immediately; a running batch keeps the canceled marker for the
// runner to observe at its next chunk boundary.
func CancelBatch(db *sql.DB, id int64) (bool, error) {
	res, err := db.Exec(`UPDATE import_batches SET status = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.BatchCanceled, id, models.BatchQueued, models.BatchRunning)
	if err != nil {
		return false, fmt.Errorf("canceling batch %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
