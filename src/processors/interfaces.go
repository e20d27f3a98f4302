package processors

import (
	"context"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
)

// Suggestion is the external suggester's answer: a category name and the
// model's stated confidence.
type Suggestion struct {
	CategoryName string  `json:"category_name"`
	Confidence   float64 `json:"confidence"`
}

// Suggester is the opaque, stateless external categorization fallback. A nil
// Suggester means no credential is configured and categorization degrades to
// rules and heuristics only.
type Suggester interface {
	Suggest(ctx context.Context, payee, description string, amountCents int64,
		categories []models.Category, history []store.PayeeCategory) (*Suggestion, error)
}

// Match is the result of category resolution for one transaction.
type Match struct {
	CategoryID *int64  `json:"category_id"`
	Confidence float64 `json:"confidence"`
	RuleID     *int64  `json:"rule_id,omitempty"`
	Method     string  `json:"method,omitempty"` // exact_rule | pattern_rule | heuristic | suggester
}
