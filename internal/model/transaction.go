// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether money left or entered the account.
type Direction string

// Transaction direction constants.
const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Source indicates how a transaction entered the system.
type Source string

const (
	// SourceExtracted marks transactions created by the extraction pipeline.
	SourceExtracted Source = "extracted"
	// SourceManual marks transactions entered directly by a user.
	SourceManual Source = "manual"
)

// MaxRawExcerptLen bounds the stored source excerpt kept for audit and
// re-extraction.
const MaxRawExcerptLen = 2000

// Transaction represents a single financial event, usually derived from one
// bank notification message.
type Transaction struct {
	OccurredAt    *time.Time
	CategoryID    *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ID            string
	UserID        string
	EmailID       string // provider message id; unique system-wide when set
	Currency      string
	Merchant      string
	Bank          string
	AccountSuffix string
	Remarks       string
	RawExcerpt    string
	Source        Source
	Direction     Direction
	Amount        decimal.Decimal // always a positive magnitude
	Confidence    float64
}

// TruncateExcerpt bounds a raw message excerpt to MaxRawExcerptLen runes.
func TruncateExcerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxRawExcerptLen {
		return s
	}
	return string(runes[:MaxRawExcerptLen])
}
