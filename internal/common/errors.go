// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Mail provider errors.
	ErrHistoryExpired  = errors.New("history cursor expired")
	ErrMessageNotFound = errors.New("message not found")
	ErrAuthRevoked     = errors.New("mailbox credentials revoked")

	// Ingestion errors.
	ErrMalformedEnvelope = errors.New("malformed notification envelope")
	ErrExtractionFailed  = errors.New("extraction failed")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	// These outcomes never improve with retries.
	if errors.Is(err, ErrDuplicateEntry) ||
		errors.Is(err, ErrAuthRevoked) ||
		errors.Is(err, ErrMalformedEnvelope) ||
		errors.Is(err, ErrHistoryExpired) ||
		errors.Is(err, ErrMessageNotFound) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
