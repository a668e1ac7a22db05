// Package llm provides the LLM client used to extract transactions from
// email text. The provider speaks JSON over chat completions; everything
// else in the application talks to the small Client interface.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Client defines the interface for LLM providers.
type Client interface {
	ExtractTransaction(ctx context.Context, systemPrompt, userMessage string) (ExtractionResponse, error)
}

// ExtractionResponse is the model's verdict on one email. Field types are
// deliberately loose because models drift on formatting: amounts arrive as
// numbers or strings, category references as numbers or names.
type ExtractionResponse struct {
	IsTransaction bool        `json:"is_transaction"`
	Amount        string      `json:"-"`
	Currency      string      `json:"currency"`
	Direction     string      `json:"direction"`
	Merchant      string      `json:"merchant"`
	Bank          string      `json:"bank"`
	AccountSuffix string      `json:"account_suffix"`
	Date          string      `json:"date"`
	Remarks       string      `json:"remarks"`
	Confidence    float64     `json:"confidence"`
	Category      CategoryRef `json:"category"`
}

// CategoryRef is the model's category decision: one of select_existing,
// create_new, or uncategorized.
type CategoryRef struct {
	Action    string `json:"action"`
	Reference string `json:"-"`
	NewName   string `json:"new_name"`
	NewIcon   string `json:"new_icon"`
}

// DecimalAmount parses the amount field. Returns the zero decimal without
// error when the model omitted the amount.
func (r ExtractionResponse) DecimalAmount() (decimal.Decimal, error) {
	if r.Amount == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", r.Amount, err)
	}
	return d, nil
}

// rawExtraction mirrors ExtractionResponse with the drifting fields held as
// raw JSON so both spellings and both scalar types decode.
type rawExtraction struct {
	IsTransaction bool            `json:"is_transaction"`
	Amount        json.RawMessage `json:"amount"`
	Currency      string          `json:"currency"`
	Direction     string          `json:"direction"`
	Merchant      string          `json:"merchant"`
	Bank          string          `json:"bank"`
	AccountSuffix string          `json:"account_suffix"`
	Date          string          `json:"date"`
	Remarks       string          `json:"remarks"`
	Confidence    float64         `json:"confidence"`
	Category      rawCategoryRef  `json:"category"`
}

type rawCategoryRef struct {
	Action     string          `json:"action"`
	ID         json.RawMessage `json:"id"`
	CategoryID json.RawMessage `json:"category_id"`
	Name       string          `json:"name"`
	NewName    string          `json:"new_name"`
	NewIcon    string          `json:"new_icon"`
}

// parseExtraction decodes the model's JSON payload, tolerating markdown
// fences, quoted numbers, and the id/category_id/name aliases models use
// interchangeably for category references.
func parseExtraction(content string) (ExtractionResponse, error) {
	content = cleanMarkdownWrapper(content)

	var raw rawExtraction
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return ExtractionResponse{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	resp := ExtractionResponse{
		IsTransaction: raw.IsTransaction,
		Amount:        rawScalarString(raw.Amount),
		Currency:      raw.Currency,
		Direction:     strings.ToLower(raw.Direction),
		Merchant:      raw.Merchant,
		Bank:          raw.Bank,
		AccountSuffix: raw.AccountSuffix,
		Date:          raw.Date,
		Remarks:       raw.Remarks,
		Confidence:    raw.Confidence,
		Category: CategoryRef{
			Action:  strings.ToLower(raw.Category.Action),
			NewName: raw.Category.NewName,
			NewIcon: raw.Category.NewIcon,
		},
	}

	resp.Category.Reference = rawScalarString(raw.Category.ID)
	if resp.Category.Reference == "" {
		resp.Category.Reference = rawScalarString(raw.Category.CategoryID)
	}
	if resp.Category.Reference == "" {
		resp.Category.Reference = raw.Category.Name
	}

	return resp, nil
}

// rawScalarString renders a raw JSON scalar as its string content, so that
// both 42 and "42" come back as "42".
func rawScalarString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		return strings.TrimSpace(quoted)
	}
	return s
}

// cleanMarkdownWrapper strips code fences that models wrap around JSON
// despite instructions not to.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
