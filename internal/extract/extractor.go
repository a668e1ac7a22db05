// Package extract turns fetched mailbox messages into structured
// transaction judgments using an LLM. The engine is pure with respect to
// storage: it reads a category catalogue and returns a result, never
// writing anything itself.
package extract

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/llm"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// Extractor judges whether a message is a financial transaction and, if so,
// extracts its fields and a category decision.
type Extractor struct {
	client llm.Client
	logger *slog.Logger
}

// NewExtractor creates an extraction engine backed by the given LLM client.
func NewExtractor(client llm.Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{client: client, logger: logger}
}

// Extract judges one message against the user's category catalogue.
//
// The engine never panics or returns an error: an empty catalogue
// short-circuits without an LLM call, and a model that cannot be consulted
// yields a non-transaction verdict with Failed set so the caller can count
// the message against the batch.
func (e *Extractor) Extract(ctx context.Context, msg service.MailMessage, categories []model.Category) model.ExtractionResult {
	if len(categories) == 0 {
		e.logger.Warn("no categories available, skipping extraction", "message_id", msg.ID)
		return model.ExtractionResult{IsTransaction: false}
	}

	resp, err := e.client.ExtractTransaction(ctx,
		BuildSystemPrompt(categories), BuildUserMessage(msg))
	if err != nil {
		e.logger.Error("extraction failed", "message_id", msg.ID, "error", err)
		return model.ExtractionResult{IsTransaction: false, Failed: true}
	}

	if !resp.IsTransaction {
		return model.ExtractionResult{IsTransaction: false, Confidence: clampConfidence(resp.Confidence)}
	}

	amount, err := resp.DecimalAmount()
	if err != nil || amount.IsZero() {
		e.logger.Warn("transaction verdict without a usable amount, discarding",
			"message_id", msg.ID, "amount", resp.Amount, "error", err)
		return model.ExtractionResult{IsTransaction: false}
	}

	result := model.ExtractionResult{
		IsTransaction: true,
		Amount:        amount.Abs(),
		Direction:     parseDirection(resp.Direction),
		Currency:      resp.Currency,
		Merchant:      strings.TrimSpace(resp.Merchant),
		Bank:          strings.TrimSpace(resp.Bank),
		AccountSuffix: strings.TrimSpace(resp.AccountSuffix),
		Remarks:       strings.TrimSpace(resp.Remarks),
		Confidence:    clampConfidence(resp.Confidence),
		OccurredAt:    parseDate(resp.Date, msg.ReceivedAt),
		Category:      e.categoryDecision(resp.Category, categories, msg.ID),
	}

	if result.Currency == "" {
		result.Currency = "NPR"
	}

	return result
}

// categoryDecision canonicalizes the model's category reference against the
// catalogue that was offered to it. References to categories outside the
// catalogue become uncategorized rather than leaking another user's ids.
func (e *Extractor) categoryDecision(ref llm.CategoryRef, categories []model.Category, messageID string) model.CategoryDecision {
	switch ref.Action {
	case string(model.CategorySelectExisting):
		if match := findCategory(ref.Reference, categories); match != nil {
			return model.CategoryDecision{
				Type:      model.CategorySelectExisting,
				Reference: strconv.FormatInt(match.ID, 10),
			}
		}
		e.logger.Warn("model referenced unknown category, degrading to uncategorized",
			"message_id", messageID, "reference", ref.Reference)
		return model.CategoryDecision{Type: model.CategoryUncategorized}

	case string(model.CategoryCreateNew):
		name := strings.TrimSpace(ref.NewName)
		if name == "" {
			return model.CategoryDecision{Type: model.CategoryUncategorized}
		}
		// The catalogue may already contain the proposed name.
		if match := findCategory(name, categories); match != nil {
			return model.CategoryDecision{
				Type:      model.CategorySelectExisting,
				Reference: strconv.FormatInt(match.ID, 10),
			}
		}
		return model.CategoryDecision{
			Type:    model.CategoryCreateNew,
			NewName: name,
			NewIcon: ref.NewIcon,
		}

	default:
		return model.CategoryDecision{Type: model.CategoryUncategorized}
	}
}

// findCategory matches a reference against the catalogue by id first, then
// by case-insensitive name.
func findCategory(reference string, categories []model.Category) *model.Category {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil
	}

	if id, err := strconv.ParseInt(reference, 10, 64); err == nil {
		for i := range categories {
			if categories[i].ID == id {
				return &categories[i]
			}
		}
		return nil
	}

	for i := range categories {
		if strings.EqualFold(categories[i].Name, reference) {
			return &categories[i]
		}
	}
	return nil
}

func parseDirection(s string) model.Direction {
	if model.Direction(s) == model.DirectionCredit {
		return model.DirectionCredit
	}
	return model.DirectionDebit
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// parseDate accepts the formats models actually emit; when none parse, the
// email's receipt time stands in so ordering stays sane.
func parseDate(s string, receivedAt time.Time) *time.Time {
	s = strings.TrimSpace(s)
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if receivedAt.IsZero() {
		return nil
	}
	t := receivedAt.UTC()
	return &t
}
