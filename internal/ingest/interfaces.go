// Package ingest drives the notification-to-transaction pipeline: decode a
// push notification, reconcile mailbox history, extract transactions, and
// commit them exactly once.
package ingest

import (
	"context"

	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// Extractor judges one message against a category catalogue.
type Extractor interface {
	Extract(ctx context.Context, msg service.MailMessage, categories []model.Category) model.ExtractionResult
}

// Notifier announces newly recorded transactions. Implementations are
// fire-and-forget; a notifier failure never affects ingestion.
type Notifier interface {
	TransactionRecorded(ctx context.Context, txn *model.Transaction, category *model.Category)
}
