package models

import "time"

// AccountType classifies a financial account.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountCreditCard AccountType = "credit_card"
	AccountLoan       AccountType = "loan"
	AccountInvestment AccountType = "investment"
)

// Polarity is the normal-balance side of an account. Credit-card and loan
// accounts carry credit polarity: their statements report positive balances
// while the ledger stores charges as negative, asset-centric amounts.
type Polarity string

const (
	PolarityDebit  Polarity = "debit"
	PolarityCredit Polarity = "credit"
)

type Account struct {
	ID                  int64       `json:"id"`
	Name                string      `json:"name"`
	Type                AccountType `json:"type"`
	Institution         string      `json:"institution,omitempty"`
	Active              bool        `json:"active"`
	Polarity            Polarity    `json:"polarity"`
	OpeningBalanceCents int64       `json:"opening_balance_cents"`
	OpeningDate         string      `json:"opening_date,omitempty"` // YYYY-MM-DD
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// IsLiability reports whether statement balances for this account are printed
// with the opposite sign from the ledger's asset-centric amounts.
func (a *Account) IsLiability() bool { return a.Polarity == PolarityCredit }

// MatchToleranceDays is the posting-delay window used when matching extracted
// statement rows: card transactions post later than bank transactions.
func (a *Account) MatchToleranceDays(bankDays, cardDays int) int {
	if a.Type == AccountCreditCard {
		return cardDays
	}
	return bankDays
}

// CategoryType groups categories for profit-and-loss reporting.
type CategoryType string

const (
	CategoryIncome       CategoryType = "income"
	CategoryCOGS         CategoryType = "cost_of_goods"
	CategoryExpense      CategoryType = "expense"
	CategoryOtherIncome  CategoryType = "other_income"
	CategoryOtherExpense CategoryType = "other_expense"
)

type Category struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Type      CategoryType `json:"type"`
	ParentID  *int64       `json:"parent_id,omitempty"`
	SortOrder int          `json:"sort_order"`
}

type ReviewStatus string

const (
	ReviewNeedsReview ReviewStatus = "needs_review"
	ReviewApproved    ReviewStatus = "approved"
)

type ReconcileStatus string

const (
	ReconcileUnreconciled ReconcileStatus = "unreconciled"
	ReconcileCleared      ReconcileStatus = "cleared"
	ReconcileReconciled   ReconcileStatus = "reconciled"
)

// Transaction is the ledger's atomic record. Amounts are asset-centric signed
// integer cents and are never re-signed after creation.
type Transaction struct {
	ID              int64           `json:"id"`
	AccountID       int64           `json:"account_id"`
	Date            string          `json:"date"` // YYYY-MM-DD
	Payee           string          `json:"payee"`
	PayeeDisplay    string          `json:"payee_display,omitempty"`
	Description     string          `json:"description,omitempty"`
	AmountCents     int64           `json:"amount_cents"`
	CategoryID      *int64          `json:"category_id,omitempty"`
	ReviewStatus    ReviewStatus    `json:"review_status"`
	ReconcileStatus ReconcileStatus `json:"reconcile_status"`
	StatementID     *int64          `json:"statement_id,omitempty"`
	MatchMethod     string          `json:"match_method,omitempty"`

	IsTransfer        bool   `json:"is_transfer"`
	TransferAccountID *int64 `json:"transfer_account_id,omitempty"`
	TransferGroupID   string `json:"transfer_group_id,omitempty"`

	SourceSystem string `json:"source_system,omitempty"`
	SourceID     string `json:"source_id,omitempty"`
	SourceHash   string `json:"source_hash,omitempty"`

	BatchID   *int64 `json:"batch_id,omitempty"`
	RowNumber int    `json:"row_number,omitempty"`
	RowHash   string `json:"row_hash,omitempty"`

	HasSplits bool       `json:"has_splits"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TransactionSplit is one leg of a balanced multi-leg posting. The legs of a
// split always sum to zero in integer cents.
type TransactionSplit struct {
	ID            int64  `json:"id"`
	TransactionID int64  `json:"transaction_id"`
	AccountID     int64  `json:"account_id"`
	CategoryID    *int64 `json:"category_id,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
	Memo          string `json:"memo,omitempty"`
}

type RuleMatchType string

const (
	RuleMatchExact RuleMatchType = "exact"
	RuleMatchRegex RuleMatchType = "regex"
)

// CategorizationRule is a learned payee pattern. Patterns are kept as plain
// data and compiled lazily at evaluation time; an invalid regex degrades to
// "rule does not match".
type CategorizationRule struct {
	ID                 int64         `json:"id"`
	PayeePattern       string        `json:"payee_pattern"`
	MatchType          RuleMatchType `json:"match_type"`
	DescriptionPattern string        `json:"description_pattern,omitempty"`
	CategoryID         int64         `json:"category_id"`
	Confidence         float64       `json:"confidence"`
	UseCount           int64         `json:"use_count"`
	LastUsedAt         *time.Time    `json:"last_used_at,omitempty"`
	CreatedBy          string        `json:"created_by"`
	Active             bool          `json:"active"`
}

type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchRunning   BatchStatus = "running"
	BatchSucceeded BatchStatus = "succeeded"
	BatchFailed    BatchStatus = "failed"
	BatchCanceled  BatchStatus = "canceled"
)

// ImportBatch is one ingestion run. A batch is failed only for a catastrophic
// pre-row condition; individual row errors accumulate in RowErrors.
type ImportBatch struct {
	ID            int64       `json:"id"`
	AccountID     int64       `json:"account_id"`
	FileName      string      `json:"file_name"`
	FileSize      int64       `json:"file_size"`
	FileHash      string      `json:"file_hash"`
	Status        BatchStatus `json:"status"`
	TotalRows     int         `json:"total_rows"`
	ProcessedRows int         `json:"processed_rows"`
	InsertedRows  int         `json:"inserted_rows"`
	SkippedRows   int         `json:"skipped_rows"`
	ErrorRows     int         `json:"error_rows"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	RowErrors     []RowError  `json:"row_errors,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	FinishedAt    *time.Time  `json:"finished_at,omitempty"`
}

type StatementStatus string

const (
	StatementPending    StatementStatus = "pending"
	StatementInProgress StatementStatus = "in_progress"
	StatementReconciled StatementStatus = "reconciled"
)

// BankStatement is an externally issued period statement. Balances are stored
// as printed (statement sign convention); liability accounts flip sign when
// compared against ledger amounts.
type BankStatement struct {
	ID                    int64           `json:"id"`
	AccountID             int64           `json:"account_id"`
	PeriodStart           string          `json:"period_start"` // YYYY-MM-DD
	PeriodEnd             string          `json:"period_end"`   // YYYY-MM-DD
	BeginningBalanceCents int64           `json:"beginning_balance_cents"`
	EndingBalanceCents    int64           `json:"ending_balance_cents"`
	Status                StatementStatus `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	ReconciledAt          *time.Time      `json:"reconciled_at,omitempty"`
}
