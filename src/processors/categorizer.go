package processors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/Edmaione/Terrain-Financials-sub000/src/logger"
	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
)

const (
	learnedRuleConfidence = 0.95
	heuristicConfidence   = 0.98
	keywordConfidence     = 0.90
	suggesterHistoryLimit = 20
)

// Categorizer resolves transactions to accounting categories by layered
// matching: exact rules, then pattern rules, then fixed domain heuristics,
// then the optional external suggester.
type Categorizer struct {
	db        *sql.DB
	suggester Suggester
}

func NewCategorizer(db *sql.DB, suggester Suggester) *Categorizer {
	return &Categorizer{db: db, suggester: suggester}
}

// Categorize resolves a category for one transaction. First hit wins. A
// nil CategoryID in the result means nothing matched.
func (c *Categorizer) Categorize(ctx context.Context, payee, description string, amountCents int64) (Match, error) {
	payee = strings.TrimSpace(payee)

	// 1. Exact rule, highest confidence first.
	if rule, err := store.FindExactRule(c.db, payee); err == nil {
		c.recordRuleUse(rule.ID)
		return Match{CategoryID: &rule.CategoryID, Confidence: rule.Confidence, RuleID: &rule.ID, Method: "exact_rule"}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return Match{}, err
	}

	// 2. Pattern rules by descending confidence. An invalid pattern means
	// the rule does not match, never a failure.
	rules, err := store.ListActiveRules(c.db)
	if err != nil {
		return Match{}, err
	}
	for i := range rules {
		rule := &rules[i]
		if rule.MatchType != models.RuleMatchRegex {
			continue
		}
		if !patternMatches(rule.PayeePattern, payee) {
			continue
		}
		if rule.DescriptionPattern != "" && !patternMatches(rule.DescriptionPattern, description) {
			continue
		}
		c.recordRuleUse(rule.ID)
		return Match{CategoryID: &rule.CategoryID, Confidence: rule.Confidence, RuleID: &rule.ID, Method: "pattern_rule"}, nil
	}

	// 3. Fixed keyword heuristics. These bypass the external suggester.
	if m, ok := c.applyHeuristics(payee, description); ok {
		return m, nil
	}

	// 4. External suggester fallback, when configured.
	if c.suggester != nil {
		if m, ok := c.askSuggester(ctx, payee, description, amountCents); ok {
			return m, nil
		}
	}

	return Match{}, nil
}

// CreateRuleFromApproval learns from a user confirming a category for a
// payee: an existing exact rule for the pair is reinforced, otherwise a new
// one is created.
func (c *Categorizer) CreateRuleFromApproval(payee, description string, categoryID int64) error {
	payee = strings.TrimSpace(payee)
	if payee == "" {
		return nil
	}
	if rule, err := store.FindRuleForApproval(c.db, payee, categoryID); err == nil {
		return store.BumpRuleUsage(c.db, rule.ID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	rule := &models.CategorizationRule{
		PayeePattern: payee,
		MatchType:    models.RuleMatchExact,
		CategoryID:   categoryID,
		Confidence:   learnedRuleConfidence,
		CreatedBy:    "user",
	}
	return store.InsertRule(c.db, rule)
}

func (c *Categorizer) recordRuleUse(ruleID int64) {
	if err := store.BumpRuleUsage(c.db, ruleID); err != nil {
		logger.L.Warn("Failed to bump rule usage", "ruleID", ruleID, "error", err)
	}
}

// payrollProviders are payee substrings that identify payroll runs. The
// memo decides the leg: tax remittances, service fees, or net wages.
var payrollProviders = []string{"gusto", "adp", "paychex", "justworks", "quickbooks payroll"}

var insuranceKeywords = []string{"insurance", "geico", "allstate", "state farm", "progressive ins"}

var utilityKeywords = []string{"electric", "water dept", "utility", "comcast", "xfinity", "verizon", "at&t", "pg&e"}

func (c *Categorizer) applyHeuristics(payee, description string) (Match, bool) {
	haystack := strings.ToLower(payee + " " + description)

	for _, provider := range payrollProviders {
		if !strings.Contains(haystack, provider) {
			continue
		}
		name := "Wages & Salaries"
		switch {
		case strings.Contains(haystack, "tax"):
			name = "Payroll Taxes"
		case strings.Contains(haystack, "fee"):
			name = "Payroll Fees"
		}
		return c.heuristicMatch(name, heuristicConfidence)
	}

	for _, kw := range insuranceKeywords {
		if strings.Contains(haystack, kw) {
			return c.heuristicMatch("Insurance", keywordConfidence)
		}
	}
	for _, kw := range utilityKeywords {
		if strings.Contains(haystack, kw) {
			return c.heuristicMatch("Utilities", keywordConfidence)
		}
	}
	return Match{}, false
}

func (c *Categorizer) heuristicMatch(categoryName string, confidence float64) (Match, bool) {
	cat, err := store.GetCategoryByName(c.db, categoryName)
	if err != nil {
		// Heuristic target not present in this ledger's taxonomy.
		return Match{}, false
	}
	return Match{CategoryID: &cat.ID, Confidence: confidence, Method: "heuristic"}, true
}

func (c *Categorizer) askSuggester(ctx context.Context, payee, description string, amountCents int64) (Match, bool) {
	categories, err := store.ListCategories(c.db)
	if err != nil {
		logger.L.Warn("Failed to list categories for suggester", "error", err)
		return Match{}, false
	}
	history, err := store.RecentPayeeCategories(c.db, suggesterHistoryLimit)
	if err != nil {
		logger.L.Warn("Failed to load suggester history", "error", err)
		history = nil
	}

	suggestion, err := c.suggester.Suggest(ctx, payee, description, amountCents, categories, history)
	if err != nil {
		logger.L.Warn("External suggester failed", "payee", payee, "error", err)
		return Match{}, false
	}
	if suggestion == nil || suggestion.CategoryName == "" {
		return Match{}, false
	}
	// Accept only names that exactly match an existing category.
	cat, err := store.GetCategoryByName(c.db, suggestion.CategoryName)
	if err != nil {
		logger.L.Debug("Suggester returned unknown category", "name", suggestion.CategoryName)
		return Match{}, false
	}
	return Match{CategoryID: &cat.ID, Confidence: suggestion.Confidence, Method: "suggester"}, true
}

// patternMatches compiles the stored pattern lazily and tests it
// case-insensitively. Malformed patterns are skipped, not fatal.
func patternMatches(pattern, input string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return false
	}
	return re.MatchString(input)
}
