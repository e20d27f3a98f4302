package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/Edmaione/Terrain-Financials-sub000/src/database"
	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/processors"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAccount(t *testing.T, db *sql.DB, name string, accType models.AccountType) int64 {
	t.Helper()
	a := &models.Account{Name: name, Type: accType}
	if err := store.CreateAccount(db, a); err != nil {
		t.Fatalf("seeding account %q: %v", name, err)
	}
	return a.ID
}

func newImportService(db *sql.DB, chunkSize int) *importServiceImpl {
	return &importServiceImpl{
		db:          db,
		categorizer: processors.NewCategorizer(db, nil),
		transfers:   processors.NewTransferProcessor(db),
		chunkSize:   chunkSize,
		errorSample: 10,
	}
}

const sampleCSV = `Date,Description,Amount
2026-01-05,ACME SUPPLIES,-125.40
2026-01-06,CLIENT PAYMENT,"1,500.00"
not-a-date,BROKEN ROW,10.00
2026-01-07,BANK FEE,(15.00)
`

var sampleMapping = models.ColumnMapping{Date: "Date", Description: "Description", Amount: "Amount"}

func runSampleBatch(t *testing.T, svc *importServiceImpl, accountID int64, csv string) *models.ImportBatch {
	t.Helper()
	hash, size, err := utils.FileChecksum(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	batch := &models.ImportBatch{AccountID: accountID, FileName: "sample.csv", FileSize: size, FileHash: hash}
	if err := store.InsertBatch(svc.db, batch); err != nil {
		t.Fatal(err)
	}
	req := ImportRequest{AccountID: accountID, Mapping: sampleMapping, Strategy: models.AmountSigned}
	svc.runBatch(batch.ID, []byte(csv), req)

	finished, err := store.GetBatch(svc.db, batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	return finished
}

func TestRunBatchCountersAndRowErrors(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Operating Checking", models.AccountChecking)
	svc := newImportService(db, 2)

	batch := runSampleBatch(t, svc, accountID, sampleCSV)

	if batch.Status != models.BatchSucceeded {
		t.Fatalf("expected succeeded despite row errors, got %q (%s)", batch.Status, batch.ErrorMessage)
	}
	if batch.TotalRows != 4 || batch.ProcessedRows != 4 {
		t.Fatalf("expected 4 rows processed, got total=%d processed=%d", batch.TotalRows, batch.ProcessedRows)
	}
	if batch.InsertedRows != 3 || batch.SkippedRows != 0 || batch.ErrorRows != 1 {
		t.Fatalf("unexpected counters: inserted=%d skipped=%d errors=%d",
			batch.InsertedRows, batch.SkippedRows, batch.ErrorRows)
	}
	if len(batch.RowErrors) != 1 || batch.RowErrors[0].Row != 3 || batch.RowErrors[0].Field != "date" {
		t.Fatalf("unexpected row error sample: %+v", batch.RowErrors)
	}

	txs, err := store.ListTransactions(db, accountID, "2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 ledger rows, got %d", len(txs))
	}
	byAmount := map[int64]bool{}
	for _, tx := range txs {
		byAmount[tx.AmountCents] = true
		if tx.SourceHash == "" || tx.RowHash == "" {
			t.Fatalf("imported row missing hashes: %+v", tx)
		}
		if tx.ReviewStatus != models.ReviewNeedsReview {
			t.Fatalf("imported row should need review, got %q", tx.ReviewStatus)
		}
	}
	for _, want := range []int64{-12540, 150000, -1500} {
		if !byAmount[want] {
			t.Fatalf("missing expected amount %d in %v", want, byAmount)
		}
	}
}

func TestRunBatchIdempotentReImport(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newImportService(db, 100)

	first := runSampleBatch(t, svc, accountID, sampleCSV)
	second := runSampleBatch(t, svc, accountID, sampleCSV)

	if second.InsertedRows != 0 {
		t.Fatalf("re-import inserted %d rows, want 0", second.InsertedRows)
	}
	if second.SkippedRows != first.InsertedRows {
		t.Fatalf("re-import skipped %d rows, want %d", second.SkippedRows, first.InsertedRows)
	}
	if second.Status != models.BatchSucceeded {
		t.Fatalf("re-import should succeed, got %q", second.Status)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows after re-import, got %d", count)
	}
}

func TestRunBatchCanceledBeforeStart(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newImportService(db, 100)

	batch := &models.ImportBatch{AccountID: accountID, FileName: "sample.csv", FileHash: "abc"}
	if err := store.InsertBatch(db, batch); err != nil {
		t.Fatal(err)
	}
	if err := svc.CancelBatch(batch.ID); err != nil {
		t.Fatal(err)
	}

	req := ImportRequest{AccountID: accountID, Mapping: sampleMapping, Strategy: models.AmountSigned}
	svc.runBatch(batch.ID, []byte(sampleCSV), req)

	got, err := store.GetBatch(db, batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BatchCanceled {
		t.Fatalf("expected canceled, got %q", got.Status)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE account_id = ?`, accountID).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("canceled batch must not insert rows, got %d", count)
	}
}

func TestRunBatchUnparseableFileFails(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newImportService(db, 100)

	batch := runSampleBatch(t, svc, accountID, "\"unterminated quote\nDate,Amount\n")
	if batch.Status != models.BatchFailed {
		t.Fatalf("expected failed for unreadable file, got %q", batch.Status)
	}
	if batch.ErrorMessage == "" {
		t.Fatal("expected a failure reason")
	}
}

func TestSubmitImportValidation(t *testing.T) {
	db := newTestDB(t)
	accountID := seedAccount(t, db, "Checking", models.AccountChecking)
	svc := newImportService(db, 100)

	t.Run("missing account", func(t *testing.T) {
		req := ImportRequest{AccountID: 999, Mapping: sampleMapping, Strategy: models.AmountSigned}
		if _, err := svc.SubmitImport(context.Background(), strings.NewReader(sampleCSV), req); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("bad mapping", func(t *testing.T) {
		req := ImportRequest{AccountID: accountID, Mapping: models.ColumnMapping{Date: "Date"}, Strategy: models.AmountSigned}
		if _, err := svc.SubmitImport(context.Background(), strings.NewReader(sampleCSV), req); !errors.Is(err, ErrParsingFailed) {
			t.Fatalf("expected ErrParsingFailed, got %v", err)
		}
	})

	t.Run("duplicate upload refused while active", func(t *testing.T) {
		hash, size, err := utils.FileChecksum(bytes.NewReader([]byte(sampleCSV)))
		if err != nil {
			t.Fatal(err)
		}
		active := &models.ImportBatch{AccountID: accountID, FileName: "sample.csv", FileSize: size, FileHash: hash}
		if err := store.InsertBatch(db, active); err != nil {
			t.Fatal(err)
		}

		req := ImportRequest{AccountID: accountID, FileName: "sample.csv", Mapping: sampleMapping, Strategy: models.AmountSigned}
		existing, err := svc.SubmitImport(context.Background(), strings.NewReader(sampleCSV), req)
		if !errors.Is(err, ErrDuplicateUpload) {
			t.Fatalf("expected ErrDuplicateUpload, got %v", err)
		}
		if existing == nil || existing.ID != active.ID {
			t.Fatalf("expected the active batch handle, got %+v", existing)
		}
	})
}

func TestCancelBatchMissing(t *testing.T) {
	db := newTestDB(t)
	svc := newImportService(db, 100)
	if err := svc.CancelBatch(42); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}
