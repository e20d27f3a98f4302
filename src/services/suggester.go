package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/Edmaione/Terrain-Financials-sub000/src/models"
	"github.com/Edmaione/Terrain-Financials-sub000/src/processors"
	"github.com/Edmaione/Terrain-Financials-sub000/src/store"
	"github.com/Edmaione/Terrain-Financials-sub000/src/utils"
)

// GeminiSuggester asks the model for a category when no rule or heuristic
// matched. Construct it only when an API key is configured; the categorizer
// treats a nil Suggester as disabled.
type GeminiSuggester struct {
	apiKey  string
	model   string
	timeout time.Duration
}

func NewGeminiSuggester(apiKey, model string, timeout time.Duration) *GeminiSuggester {
	return &GeminiSuggester{apiKey: apiKey, model: model, timeout: timeout}
}

var _ processors.Suggester = (*GeminiSuggester)(nil)

func (g *GeminiSuggester) Suggest(ctx context.Context, payee, description string, amountCents int64,
	categories []models.Category, history []store.PayeeCategory) (*processors.Suggestion, error) {

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      g.apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	prompt := g.buildPrompt(payee, description, amountCents, categories, history)
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var suggestion processors.Suggestion
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &suggestion); err != nil {
		return nil, fmt.Errorf("decoding suggestion: %w", err)
	}
	return &suggestion, nil
}

func (g *GeminiSuggester) buildPrompt(payee, description string, amountCents int64,
	categories []models.Category, history []store.PayeeCategory) string {

	var b strings.Builder
	b.WriteString("You categorize a small business's bank transactions.\n\n")
	b.WriteString("Valid categories (choose EXACTLY one name from this list):\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Name, c.Type)
	}
	if len(history) > 0 {
		b.WriteString("\nRecent confirmed categorizations:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "- %q -> %s\n", h.Payee, h.Category)
		}
	}
	b.WriteString("\nTransaction:\n")
	fmt.Fprintf(&b, "- payee: %q\n", payee)
	if description != "" {
		fmt.Fprintf(&b, "- description: %q\n", description)
	}
	fmt.Fprintf(&b, "- amount: %s\n", utils.FormatCents(amountCents))
	b.WriteString("\nOutput STRICT JSON only, no Markdown, no code fences:\n")
	b.WriteString(`{"category_name": "<one name from the list>", "confidence": <0.0 to 1.0>}`)
	b.WriteString("\n")
	return b.String()
}
