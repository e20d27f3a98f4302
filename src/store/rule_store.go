package store

import (
	"database/sql"
	"fmt"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
)

func InsertRule(db *sql.DB, r *models.CategorizationRule) error {
	res, err := db.Exec(`INSERT INTO categorization_rules
		(payee_pattern, match_type, description_pattern, category_id, confidence, use_count, created_by, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, TRUE)`,
		r.PayeePattern, r.MatchType, r.DescriptionPattern, r.CategoryID, r.Confidence, r.UseCount, r.CreatedBy)
	if err != nil {
		return fmt.Errorf("inserting categorization rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	r.Active = true
	return nil
}

// FindExactRule returns the highest-confidence active rule whose payee
// pattern equals the payee literally, ignoring case.
func FindExactRule(db *sql.DB, payee string) (*models.CategorizationRule, error) {
	row := db.QueryRow(`SELECT id, payee_pattern, match_type, description_pattern, category_id, confidence, use_count, created_by, active
		FROM categorization_rules
		WHERE active AND match_type = ? AND payee_pattern = ? COLLATE NOCASE
		ORDER BY confidence DESC, id ASC LIMIT 1`, models.RuleMatchExact, payee)
	return scanRule(row)
}

// FindRuleForApproval returns the active exact rule for a (payee, category)
// pair, if one exists.
func FindRuleForApproval(db *sql.DB, payee string, categoryID int64) (*models.CategorizationRule, error) {
	row := db.QueryRow(`SELECT id, payee_pattern, match_type, description_pattern, category_id, confidence, use_count, created_by, active
		FROM categorization_rules
		WHERE active AND match_type = ? AND payee_pattern = ? COLLATE NOCASE AND category_id = ?
		ORDER BY id ASC LIMIT 1`, models.RuleMatchExact, payee, categoryID)
	return scanRule(row)
}

// ListActiveRules returns all active rules ordered by descending confidence,
// the order pattern matching is evaluated in.
func ListActiveRules(db *sql.DB) ([]models.CategorizationRule, error) {
	rows, err := db.Query(`SELECT id, payee_pattern, match_type, description_pattern, category_id, confidence, use_count, created_by, active
		FROM categorization_rules WHERE active ORDER BY confidence DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying categorization rules: %w", err)
	}
	defer rows.Close()

	var rules []models.CategorizationRule
	for rows.Next() {
		var r models.CategorizationRule
		var descPattern sql.NullString
		if err := rows.Scan(&r.ID, &r.PayeePattern, &r.MatchType, &descPattern, &r.CategoryID, &r.Confidence, &r.UseCount, &r.CreatedBy, &r.Active); err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		r.DescriptionPattern = descPattern.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// BumpRuleUsage increments a rule's use counter and refreshes its last-used
// timestamp. The counter is monotonic and advisory; at-least-once is fine.
func BumpRuleUsage(db *sql.DB, ruleID int64) error {
	_, err := db.Exec(`UPDATE categorization_rules
		SET use_count = use_count + 1, last_used_at = CURRENT_TIMESTAMP WHERE id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("bumping rule %d usage: %w", ruleID, err)
	}
	return nil
}

func scanRule(row *sql.Row) (*models.CategorizationRule, error) {
	var r models.CategorizationRule
	var descPattern sql.NullString
	err := row.Scan(&r.ID, &r.PayeePattern, &r.MatchType, &descPattern, &r.CategoryID, &r.Confidence, &r.UseCount, &r.CreatedBy, &r.Active)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning rule: %w", err)
	}
	r.DescriptionPattern = descPattern.String
	return &r, nil
}
