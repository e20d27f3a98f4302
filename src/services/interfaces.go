package services

import (
	"context"
	"errors"
	"io"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

var (
	ErrParsingFailed     = errors.New("file parsing failed")
	ErrBatchNotFound     = errors.New("import batch not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrStatementNotFound = errors.New("statement not found")
	ErrDuplicateUpload   = errors.New("an import for this file is already in progress")
	ErrNotReconcilable   = errors.New("statement does not balance")
	ErrNotReconciled     = errors.New("statement is not reconciled")
	ErrNoExtractedRows   = errors.New("statement has no extracted rows")
	ErrExtractorDisabled = errors.New("statement extraction is not configured")
)

// ImportService runs file ingestion batches.
type ImportService interface {
	SubmitImport(ctx context.Context, file io.Reader, req ImportRequest) (*models.ImportBatch, error)
	GetBatch(batchID int64) (*models.ImportBatch, error)
	CancelBatch(batchID int64) error
}

// ImportRequest carries the user-confirmed mapping for one uploaded file.
type ImportRequest struct {
	AccountID    int64                 `json:"account_id"`
	FileName     string                `json:"file_name"`
	Mapping      models.ColumnMapping  `json:"mapping"`
	Strategy     models.AmountStrategy `json:"strategy"`
	Locale       models.DateLocale     `json:"locale,omitempty"`
	SourceSystem string                `json:"source_system,omitempty"`
}

// ReconcileService drives statement reconciliation.
type ReconcileService interface {
	CreateStatement(s *models.BankStatement) error
	GetSummary(statementID int64) (*ReconciliationSummary, error)
	SetCleared(statementID int64, transactionIDs []int64, cleared bool) error
	AutoMatchByHash(statementID int64) (int, error)
	MatchExtracted(statementID int64, rows []models.ExtractedTransaction, createMissing bool) (*MatchReport, error)
	Reconcile(statementID int64) error
	Unreconcile(statementID int64) error
}

// ExtractService turns an uploaded statement document into structured rows.
type ExtractService interface {
	ExtractStatement(ctx context.Context, statementID int64, document []byte, mimeType string) (*ExtractionReport, error)
}
