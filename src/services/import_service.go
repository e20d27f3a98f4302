package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/metrics"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/parsers"
	"github.com/Edmaione/Terrain-Financials-sub000/src/processors"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
	"github.com/Edmaione/Terrain-Financials-sub000/src/validation"
)

// Category names the loan-payment split builder posts to. When either is
// missing from the taxonomy, payments land unsplit for manual review.
const (
	loanPrincipalCategory = "Loan Principal"
	interestCategory      = "Interest Expense"
)

type importServiceImpl struct {
	db          *sql.DB
	categorizer *processors.Categorizer
	transfers   *processors.TransferProcessor
	chunkSize   int
	errorSample int
}

func NewImportService(db *sql.DB, categorizer *processors.Categorizer, transfers *processors.TransferProcessor, chunkSize, errorSample int) ImportService {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &importServiceImpl{
		db:          db,
		categorizer: categorizer,
		transfers:   transfers,
		chunkSize:   chunkSize,
		errorSample: errorSample,
	}
}

// SubmitImport validates the request, registers a queued batch and launches
// the runner. Re-uploading a file whose prior batch is still queued or
// running is refused with the existing batch attached.
func (s *importServiceImpl) SubmitImport(ctx context.Context, file io.Reader, req ImportRequest) (*models.ImportBatch, error) {
	if _, err := store.GetAccountByID(s.db, req.AccountID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if err := req.Mapping.Validate(req.Strategy); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrParsingFailed, err)
	}
	fileHash, fileSize, err := utils.FileChecksum(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("hashing upload: %w", err)
	}

	if existing, err := store.FindActiveBatch(s.db, req.AccountID, fileHash); err == nil {
		logger.L.Info("Duplicate upload refused, batch already active",
			"accountID", req.AccountID, "fileHash", fileHash, "batchID", existing.ID)
		return existing, ErrDuplicateUpload
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	batch := &models.ImportBatch{
		AccountID: req.AccountID,
		FileName:  req.FileName,
		FileSize:  fileSize,
		FileHash:  fileHash,
	}
	if err := store.InsertBatch(s.db, batch); err != nil {
		return nil, err
	}
	logger.L.Info("Import batch queued", "batchID", batch.ID, "accountID", req.AccountID, "file", req.FileName, "bytes", fileSize)

	go s.runBatch(batch.ID, data, req)
	return batch, nil
}

func (s *importServiceImpl) GetBatch(batchID int64) (*models.ImportBatch, error) {
	b, err := store.GetBatch(s.db, batchID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBatchNotFound
	}
	return b, err
}

// CancelBatch flips a queued or running batch to canceled. The runner
// observes the marker at its next chunk boundary. Canceling a batch that
// already finished is a no-op.
func (s *importServiceImpl) CancelBatch(batchID int64) error {
	ok, err := store.CancelBatch(s.db, batchID)
	if err != nil {
		return err
	}
	if ok {
		logger.L.Info("Import batch cancellation requested", "batchID", batchID)
		return nil
	}
	if _, err := store.GetBatch(s.db, batchID); errors.Is(err, store.ErrNotFound) {
		return ErrBatchNotFound
	} else if err != nil {
		return err
	}
	return nil
}

// runBatch is the detached worker for one batch. It claims the batch with a
// queued→running compare-and-swap, processes rows in chunks with a durable
// counter update and a cancellation check per chunk, then runs transfer
// pairing over every date the batch touched.
func (s *importServiceImpl) runBatch(batchID int64, data []byte, req ImportRequest) {
	claimed, err := store.ClaimBatch(s.db, batchID, time.Now())
	if err != nil {
		logger.L.Error("Failed to claim import batch", "batchID", batchID, "error", err)
		return
	}
	if !claimed {
		logger.L.Warn("Import batch already claimed or canceled before start", "batchID", batchID)
		return
	}
	start := time.Now()
	logger.L.Info("Import batch started", "batchID", batchID, "accountID", req.AccountID)

	rawRows, err := parsers.NewCSVParser().Parse(bytes.NewReader(data))
	if err != nil {
		s.finish(batchID, models.BatchFailed, fmt.Sprintf("parsing file: %v", err))
		return
	}

	ctx := context.Background()
	transformer := parsers.NewTransformer(req.Mapping, req.Strategy, req.Locale, req.SourceSystem)
	splitCats := s.resolveSplitCategories(req.Mapping)

	batch := &models.ImportBatch{ID: batchID, AccountID: req.AccountID, TotalRows: len(rawRows)}

	for chunkStart := 0; chunkStart < len(rawRows); chunkStart += s.chunkSize {
		status, err := store.GetBatchStatus(s.db, batchID)
		if err != nil {
			logger.L.Error("Failed to re-read batch status", "batchID", batchID, "error", err)
			return
		}
		if status == models.BatchCanceled {
			logger.L.Info("Import batch canceled, stopping at chunk boundary",
				"batchID", batchID, "processedRows", batch.ProcessedRows)
			s.finish(batchID, models.BatchCanceled, "")
			return
		}

		chunkEnd := utils.MinInt(chunkStart+s.chunkSize, len(rawRows))
		s.processChunk(ctx, batch, rawRows[chunkStart:chunkEnd], chunkStart, transformer, splitCats)

		batch.ProcessedRows = chunkEnd
		if err := store.UpdateBatchProgress(s.db, batch); err != nil {
			logger.L.Error("Failed to persist batch progress", "batchID", batchID, "error", err)
		}
	}

	s.pairTransfers(batchID, req.AccountID)
	s.finish(batchID, models.BatchSucceeded, "")
	logger.L.Info("Import batch finished",
		"batchID", batchID,
		"totalRows", batch.TotalRows,
		"inserted", batch.InsertedRows,
		"skipped", batch.SkippedRows,
		"errors", batch.ErrorRows,
		"duration", time.Since(start).String())
}

type pendingSplits struct {
	tx     *models.Transaction
	splits []models.TransactionSplit
}

func (s *importServiceImpl) processChunk(ctx context.Context, batch *models.ImportBatch, rows []models.RawRow, offset int, transformer *parsers.Transformer, splitCats *splitCategories) {
	txs := make([]*models.Transaction, 0, len(rows))
	var withSplits []pendingSplits

	for i, raw := range rows {
		rowNumber := offset + i + 1
		canonical, rowErr := transformer.Transform(raw, rowNumber)
		if rowErr != nil {
			s.recordRowError(batch, *rowErr)
			continue
		}

		tx := &models.Transaction{
			AccountID:    batch.AccountID,
			Date:         canonical.Date,
			Payee:        canonical.Payee,
			PayeeDisplay: validation.SanitizeForFormulaInjection(validation.StripUnprintable(canonical.Payee)),
			Description:  canonical.Description,
			AmountCents:  canonical.AmountCents,
			SourceSystem: canonical.SourceSystem,
			SourceID:     canonical.Reference,
			SourceHash:   canonical.RowHash,
			BatchID:      &batch.ID,
			RowNumber:    canonical.RowNumber,
			RowHash:      canonical.RowHash,
		}

		match, err := s.categorizer.Categorize(ctx, canonical.Payee, canonical.Description, canonical.AmountCents)
		if err != nil {
			logger.L.Warn("Categorization failed, leaving row uncategorized",
				"batchID", batch.ID, "row", rowNumber, "error", err)
		} else if match.CategoryID != nil {
			tx.CategoryID = match.CategoryID
			tx.MatchMethod = match.Method
		}

		if splitCats != nil && (canonical.PrincipalCents != 0 || canonical.InterestCents != 0) {
			splits, err := processors.BuildPaymentSplits(canonical.AmountCents,
				canonical.PrincipalCents, canonical.InterestCents,
				splitCats.principalID, splitCats.interestID)
			if err != nil {
				s.recordRowError(batch, models.RowError{Row: rowNumber, Field: "amount", Message: err.Error()})
				continue
			}
			for j := range splits {
				splits[j].AccountID = batch.AccountID
			}
			withSplits = append(withSplits, pendingSplits{tx: tx, splits: splits})
		}

		txs = append(txs, tx)
	}

	inserted, err := store.InsertTransactions(s.db, txs)
	failed := 0
	if err != nil {
		logger.L.Warn("Chunk insert failed, falling back to row-at-a-time",
			"batchID", batch.ID, "rows", len(txs), "error", err)
		inserted = 0
		for _, tx := range txs {
			ok, err := store.InsertTransaction(s.db, tx)
			if err != nil {
				s.recordRowError(batch, models.RowError{Row: tx.RowNumber, Message: err.Error()})
				failed++
				continue
			}
			if ok {
				inserted++
			}
		}
	}
	skipped := len(txs) - inserted - failed
	batch.InsertedRows += inserted
	batch.SkippedRows += skipped
	metrics.ImportRowsInserted.Add(float64(inserted))
	metrics.ImportRowsSkipped.Add(float64(skipped))

	for _, ps := range withSplits {
		if ps.tx.ID == 0 {
			continue // duplicate row, splits already exist from the first run
		}
		if err := store.InsertSplits(s.db, ps.tx.ID, ps.splits); err != nil {
			logger.L.Error("Failed to insert split legs", "batchID", batch.ID, "transactionID", ps.tx.ID, "error", err)
		}
	}
}

func (s *importServiceImpl) recordRowError(batch *models.ImportBatch, rowErr models.RowError) {
	batch.ErrorRows++
	metrics.ImportRowsErrored.Inc()
	if len(batch.RowErrors) < s.errorSample {
		batch.RowErrors = append(batch.RowErrors, rowErr)
	}
}

func (s *importServiceImpl) pairTransfers(batchID, accountID int64) {
	dates, err := store.DistinctBatchDates(s.db, batchID)
	if err != nil {
		logger.L.Error("Failed to list batch dates for transfer pairing", "batchID", batchID, "error", err)
		return
	}
	total := 0
	for _, date := range dates {
		pairs, err := s.transfers.PairTransfers(accountID, date)
		if err != nil {
			logger.L.Error("Transfer pairing failed", "batchID", batchID, "date", date, "error", err)
			continue
		}
		total += len(pairs)
	}
	if total > 0 {
		metrics.TransferPairsLinked.Add(float64(total))
		logger.L.Info("Transfer pairing pass complete", "batchID", batchID, "pairs", total)
	}
}

func (s *importServiceImpl) finish(batchID int64, status models.BatchStatus, message string) {
	ok, err := store.FinishBatch(s.db, batchID, status, message, time.Now())
	if err != nil {
		logger.L.Error("Failed to finish batch", "batchID", batchID, "status", status, "error", err)
		return
	}
	if !ok {
		// a cancel landed after the last chunk check; the canceled status stands
		logger.L.Info("Batch already in a terminal status, leaving it", "batchID", batchID, "requested", status)
		metrics.ImportBatchesFinished.WithLabelValues(string(models.BatchCanceled)).Inc()
		return
	}
	metrics.ImportBatchesFinished.WithLabelValues(string(status)).Inc()
	if status == models.BatchFailed {
		logger.L.Error("Import batch failed", "batchID", batchID, "reason", message)
	}
}

type splitCategories struct {
	principalID int64
	interestID  int64
}

// resolveSplitCategories looks up the loan split targets once per batch.
// Returns nil when the mapping carries no breakdown columns or the taxonomy
// lacks the categories.
func (s *importServiceImpl) resolveSplitCategories(mapping models.ColumnMapping) *splitCategories {
	if mapping.Principal == "" && mapping.Interest == "" {
		return nil
	}
	principal, err := store.GetCategoryByName(s.db, loanPrincipalCategory)
	if err != nil {
		logger.L.Warn("Loan split disabled, principal category missing", "category", loanPrincipalCategory)
		return nil
	}
	interest, err := store.GetCategoryByName(s.db, interestCategory)
	if err != nil {
		logger.L.Warn("Loan split disabled, interest category missing", "category", interestCategory)
		return nil
	}
	return &splitCategories{principalID: principal.ID, interestID: interest.ID}
}
