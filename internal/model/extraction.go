package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryDecisionType enumerates the ways the extraction engine can refer
// to a category.
type CategoryDecisionType string

const (
	// CategorySelectExisting references a category the user already has,
	// by id or by name.
	CategorySelectExisting CategoryDecisionType = "select_existing"
	// CategoryCreateNew asks the caller to create a category; the engine
	// itself never writes to the store.
	CategoryCreateNew CategoryDecisionType = "create_new"
	// CategoryUncategorized explicitly declines to categorize.
	CategoryUncategorized CategoryDecisionType = "uncategorized"
)

// CategoryDecision is the extraction engine's category judgment for one
// message. Reference may hold a category id or a name; the resolver
// tolerates both and falls back to the Uncategorized default.
type CategoryDecision struct {
	Type      CategoryDecisionType
	Reference string
	NewName   string
	NewIcon   string
}

// ExtractionResult is the structured judgment for one message. It is
// transient: successful results are folded into a Transaction, failed or
// non-transaction results are dropped.
//
// Failed distinguishes "the model could not be consulted" from "the model
// said this is not a transaction". Failed results count against the batch
// so the cursor is not advanced past messages that were never judged.
type ExtractionResult struct {
	OccurredAt    *time.Time
	Merchant      string
	Bank          string
	AccountSuffix string
	Currency      string
	Remarks       string
	Category      CategoryDecision
	Direction     Direction
	Amount        decimal.Decimal
	Confidence    float64
	IsTransaction bool
	Failed        bool
}
