package store

import (
	"database/sql"
	"fmt"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

// CreateAccount inserts a new account. Credit-card and loan accounts are
// forced to liability polarity regardless of what the caller supplied.
func CreateAccount(db *sql.DB, a *models.Account) error {
	if a.Type == models.AccountCreditCard || a.Type == models.AccountLoan {
		a.Polarity = models.PolarityCredit
	} else if a.Polarity == "" {
		a.Polarity = models.PolarityDebit
	}
	res, err := db.Exec(`INSERT INTO accounts (name, account_type, institution, active, polarity, opening_balance_cents, opening_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.Type, a.Institution, true, a.Polarity, a.OpeningBalanceCents, a.OpeningDate)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.Active = true
	return nil
}

func GetAccountByID(db *sql.DB, id int64) (*models.Account, error) {
	var a models.Account
	var institution, openingDate sql.NullString
	err := db.QueryRow(`SELECT id, name, account_type, institution, active, polarity, opening_balance_cents, opening_date
		FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Type, &institution, &a.Active, &a.Polarity, &a.OpeningBalanceCents, &openingDate)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account %d: %w", id, err)
	}
	a.Institution = institution.String
	a.OpeningDate = openingDate.String
	return &a, nil
}

func ListAccounts(db *sql.DB) ([]models.Account, error) {
	rows, err := db.Query(`SELECT id, name, account_type, institution, active, polarity, opening_balance_cents, opening_date
		FROM accounts ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		var institution, openingDate sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &institution, &a.Active, &a.Polarity, &a.OpeningBalanceCents, &openingDate); err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		a.Institution = institution.String
		a.OpeningDate = openingDate.String
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeactivateAccount flags an account inactive. Accounts are never physically
// deleted.
func DeactivateAccount(db *sql.DB, id int64) error {
	res, err := db.Exec(`UPDATE accounts SET active = FALSE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivating account %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func CreateCategory(db *sql.DB, c *models.Category) error {
	res, err := db.Exec(`INSERT INTO categories (name, category_type, parent_id, sort_order) VALUES (?, ?, ?, ?)`,
		c.Name, c.Type, c.ParentID, c.SortOrder)
	if err != nil {
		return fmt.Errorf("inserting category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func GetCategoryByID(db *sql.DB, id int64) (*models.Category, error) {
	var c models.Category
	err := db.QueryRow(`SELECT id, name, category_type, parent_id, sort_order FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Type, &c.ParentID, &c.SortOrder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying category %d: %w", id, err)
	}
	return &c, nil
}

// GetCategoryByName resolves a category by exact name, case-insensitively.
func GetCategoryByName(db *sql.DB, name string) (*models.Category, error) {
	var c models.Category
	err := db.QueryRow(`SELECT id, name, category_type, parent_id, sort_order FROM categories WHERE name = ? COLLATE NOCASE`, name).
		Scan(&c.ID, &c.Name, &c.Type, &c.ParentID, &c.SortOrder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying category %q: %w", name, err)
	}
	return &c, nil
}

func ListCategories(db *sql.DB) ([]models.Category, error) {
	rows, err := db.Query(`SELECT id, name, category_type, parent_id, sort_order FROM categories ORDER BY sort_order ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.ParentID, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category unless any transaction or split still
// references it.
func DeleteCategory(db *sql.DB, id int64) error {
	var count int
	err := db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM transactions WHERE category_id = ? AND deleted_at IS NULL) +
		(SELECT COUNT(*) FROM transaction_splits WHERE category_id = ?)`, id, id).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking category usage: %w", err)
	}
	if count > 0 {
		return ErrCategoryInUse
	}
	res, err := db.Exec(`DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting category %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
