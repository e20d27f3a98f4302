package database

import (
	"database/sql"
	stdlog "log"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	account_type TEXT NOT NULL,
	institution TEXT,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	polarity TEXT NOT NULL DEFAULT 'debit',
	opening_balance_cents INTEGER NOT NULL DEFAULT 0,
	opening_date TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	category_type TEXT NOT NULL,
	parent_id INTEGER,
	sort_order INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(parent_id) REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	payee TEXT NOT NULL,
	payee_display TEXT,
	description TEXT,
	amount_cents INTEGER NOT NULL,
	category_id INTEGER,
	review_status TEXT NOT NULL DEFAULT 'needs_review',
	reconcile_status TEXT NOT NULL DEFAULT 'unreconciled',
	statement_id INTEGER,
	match_method TEXT,
	is_transfer BOOLEAN NOT NULL DEFAULT FALSE,
	transfer_account_id INTEGER,
	transfer_group_id TEXT,
	source_system TEXT,
	source_id TEXT,
	source_hash TEXT,
	batch_id INTEGER,
	row_number INTEGER,
	row_hash TEXT,
	has_splits BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at TIMESTAMP,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY(account_id) REFERENCES accounts(id),
	FOREIGN KEY(category_id) REFERENCES categories(id),
	FOREIGN KEY(batch_id) REFERENCES import_batches(id),
	FOREIGN KEY(statement_id) REFERENCES bank_statements(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_account_source_hash
	ON transactions(account_id, source_hash) WHERE source_hash IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_batch_row_hash
	ON transactions(batch_id, row_hash) WHERE batch_id IS NOT NULL AND row_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_tx_account_date ON transactions(account_id, date);

CREATE TABLE IF NOT EXISTS transaction_splits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	category_id INTEGER,
	amount_cents INTEGER NOT NULL,
	memo TEXT,
	FOREIGN KEY(transaction_id) REFERENCES transactions(id),
	FOREIGN KEY(account_id) REFERENCES accounts(id),
	FOREIGN KEY(category_id) REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS categorization_rules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payee_pattern TEXT NOT NULL,
	match_type TEXT NOT NULL DEFAULT 'exact',
	description_pattern TEXT,
	category_id INTEGER NOT NULL,
	confidence REAL NOT NULL,
	use_count INTEGER NOT NULL DEFAULT 0,
	last_used_at TIMESTAMP,
	created_by TEXT NOT NULL DEFAULT 'user',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY(category_id) REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS import_batches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL,
	file_name TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	file_hash TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	total_rows INTEGER NOT NULL DEFAULT 0,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	inserted_rows INTEGER NOT NULL DEFAULT 0,
	skipped_rows INTEGER NOT NULL DEFAULT 0,
	error_rows INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	row_errors TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	FOREIGN KEY(account_id) REFERENCES accounts(id)
);

CREATE TABLE IF NOT EXISTS bank_statements (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL,
	period_start TEXT NOT NULL,
	period_end TEXT NOT NULL,
	beginning_balance_cents INTEGER NOT NULL,
	ending_balance_cents INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	extracted_json TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	reconciled_at TIMESTAMP,
	FOREIGN KEY(account_id) REFERENCES accounts(id)
);
`

// Open opens a sqlite database at the given path and ensures the schema.
// Tests use Open(":memory:") directly; the server uses InitDB.
func Open(databasePath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	migrateTransactionsTable(db)
	return db, nil
}

func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.", "databasePath", databasePath)
	} else {
		stdlog.Println("Database tables ensured/created:", databasePath)
	}
}

// migrateTransactionsTable adds columns introduced after the first release to
// databases created with an older schema.
func migrateTransactionsTable(db *sql.DB) {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='transactions'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return
		}
		stdlog.Printf("Error checking for transactions table: %v", err)
		return
	}

	rows, err := db.Query("PRAGMA table_info(transactions)")
	if err != nil {
		stdlog.Printf("Error querying table schema for transactions: %v", err)
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			stdlog.Printf("Error scanning column info: %v", err)
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		stdlog.Printf("Error iterating over column info: %v", err)
		return
	}

	addColumn := func(name, ddl string) {
		if columnExists[name] {
			return
		}
		if _, err := db.Exec("ALTER TABLE transactions ADD COLUMN " + ddl); err != nil {
			stdlog.Printf("Error adding %s column to transactions table: %v", name, err)
		}
	}

	addColumn("match_method", "match_method TEXT")
	addColumn("payee_display", "payee_display TEXT")
	addColumn("deleted_at", "deleted_at TIMESTAMP")
}
