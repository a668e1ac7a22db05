package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// dedupeLookupTimeout bounds the pre-extraction duplicate check. If the
// lookup cannot answer quickly the message proceeds to extraction and the
// unique constraint has the final word.
const dedupeLookupTimeout = 3 * time.Second

// BatchResult summarizes one ingestion pass over a mailbox delta.
type BatchResult struct {
	Errors         []MessageError
	ProcessedCount int
	SkippedCount   int
	FailedCount    int
	CursorAdvanced bool
}

// MessageError records a per-message failure within a batch.
type MessageError struct {
	MessageID string
	Err       error
}

// Controller orchestrates the pipeline for one notification or resync pass.
type Controller struct {
	store     service.Storage
	providers service.MailProviderFactory
	extractor Extractor
	notifier  Notifier
	resolver  *CategoryResolver
	logger    *slog.Logger
}

// NewController wires the ingestion pipeline.
func NewController(store service.Storage, providers service.MailProviderFactory, extractor Extractor, notifier Notifier, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		providers: providers,
		extractor: extractor,
		notifier:  notifier,
		resolver:  NewCategoryResolver(store, logger),
		logger:    logger,
	}
}

// HandleNotification processes one decoded push notification.
//
// Notifications for unknown or revoked mailboxes are acked without work so
// the publisher stops redelivering them. Only infrastructure failures that
// a redelivery could fix are returned as errors.
func (c *Controller) HandleNotification(ctx context.Context, n *Notification) (*BatchResult, error) {
	mailbox, err := c.store.GetMailboxByAddress(ctx, n.EmailAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to look up mailbox %s: %w", n.EmailAddress, err)
	}
	if mailbox == nil {
		c.logger.Warn("notification for unmanaged mailbox, acking", "email", n.EmailAddress)
		return &BatchResult{}, nil
	}
	if mailbox.Status == model.MailboxRevoked {
		c.logger.Warn("notification for revoked mailbox, acking", "user_id", mailbox.UserID)
		return &BatchResult{}, nil
	}

	return c.runBatch(ctx, mailbox, n.HistoryID)
}

// ResyncMailbox runs the same pipeline from the stored cursor without a
// triggering notification, catching up after downtime or an expired watch.
func (c *Controller) ResyncMailbox(ctx context.Context, userID string) (*BatchResult, error) {
	mailbox, err := c.store.GetMailboxByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up mailbox for %s: %w", userID, err)
	}
	if mailbox == nil {
		return nil, fmt.Errorf("mailbox for %s: %w", userID, common.ErrNotFound)
	}
	if mailbox.Status == model.MailboxRevoked {
		c.logger.Warn("skipping resync for revoked mailbox", "user_id", userID)
		return &BatchResult{}, nil
	}

	return c.runBatch(ctx, mailbox, mailbox.HistoryID)
}

func (c *Controller) runBatch(ctx context.Context, mailbox *model.MailboxSync, notifiedHistoryID uint64) (*BatchResult, error) {
	logger := c.logger.With("user_id", mailbox.UserID)

	provider, err := c.providers(ctx, mailbox)
	if err != nil {
		return nil, fmt.Errorf("failed to build mail provider: %w", err)
	}

	cursor := mailbox.HistoryID
	if cursor == 0 {
		// No watch has seeded a cursor yet; start at the notified position
		// rather than replaying the whole mailbox.
		cursor = notifiedHistoryID
	}

	delta, err := Reconcile(ctx, provider, cursor, notifiedHistoryID, logger)
	if err != nil {
		if errors.Is(err, common.ErrAuthRevoked) {
			c.markRevoked(ctx, mailbox.UserID)
			return &BatchResult{}, nil
		}
		return nil, err
	}

	categories, err := c.store.ListCategories(ctx, mailbox.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	result := &BatchResult{}
	for _, messageID := range delta.AddedMessageIDs {
		if err := c.processMessage(ctx, provider, mailbox, messageID, categories, result); err != nil {
			if errors.Is(err, common.ErrAuthRevoked) {
				c.markRevoked(ctx, mailbox.UserID)
				return result, nil
			}
			result.FailedCount++
			result.Errors = append(result.Errors, MessageError{MessageID: messageID, Err: err})
			logger.Error("failed to process message", "message_id", messageID, "error", err)
		}
	}

	// The cursor advances unless the whole batch failed: skips and partial
	// failures must not cause endless redelivery, but a total failure keeps
	// the cursor so a redelivery can retry everything.
	if result.FailedCount == 0 || result.ProcessedCount > 0 || result.SkippedCount > 0 {
		if err := c.store.UpdateMailboxCursor(ctx, mailbox.UserID, delta.HistoryID); err != nil {
			logger.Error("failed to advance cursor", "history_id", delta.HistoryID, "error", err)
		} else {
			result.CursorAdvanced = true
		}
	}

	logger.Info("ingestion batch complete",
		"messages", len(delta.AddedMessageIDs),
		"processed", result.ProcessedCount,
		"skipped", result.SkippedCount,
		"failed", result.FailedCount,
		"cursor_advanced", result.CursorAdvanced,
		"history_id", delta.HistoryID)

	return result, nil
}

// processMessage runs one message through dedup, fetch, extraction, and
// commit. Counting mutations happen on result; a returned error means the
// caller records a failure.
func (c *Controller) processMessage(ctx context.Context, provider service.MailProvider, mailbox *model.MailboxSync, messageID string, categories []model.Category, result *BatchResult) error {
	if c.alreadyProcessed(ctx, messageID) {
		result.SkippedCount++
		return nil
	}

	msg, err := provider.FetchMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, common.ErrMessageNotFound) {
			// Deleted between notification and fetch; nothing to extract.
			result.SkippedCount++
			return nil
		}
		return fmt.Errorf("fetch failed: %w", err)
	}

	if !senderAllowed(msg.From, mailbox.SenderFilters) {
		result.SkippedCount++
		return nil
	}

	extraction := c.extractor.Extract(ctx, *msg, categories)
	if extraction.Failed {
		// The message was never judged; counting it failed keeps the cursor
		// from advancing past it when nothing else in the batch succeeds.
		return fmt.Errorf("%w for message %s", common.ErrExtractionFailed, messageID)
	}
	if !extraction.IsTransaction {
		result.SkippedCount++
		return nil
	}

	txn := transactionFrom(mailbox.UserID, msg, extraction)

	category := c.resolver.Resolve(ctx, mailbox.UserID, extraction.Category)
	if category != nil {
		txn.CategoryID = &category.ID
	}

	if err := c.store.CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			// A concurrent delivery won the race; same outcome as the
			// pre-check catching it.
			result.SkippedCount++
			return nil
		}
		return fmt.Errorf("failed to store transaction: %w", err)
	}

	result.ProcessedCount++

	if msg.Unread {
		if err := provider.MarkRead(ctx, messageID); err != nil {
			c.logger.Warn("failed to mark message read", "message_id", messageID, "error", err)
		}
	}

	if c.notifier != nil {
		c.notifier.TransactionRecorded(ctx, txn, category)
	}

	return nil
}

// alreadyProcessed is the cheap half of the deduplication gate. It answers
// false on any doubt; the unique email_id constraint catches what it misses.
func (c *Controller) alreadyProcessed(ctx context.Context, messageID string) bool {
	lookupCtx, cancel := context.WithTimeout(ctx, dedupeLookupTimeout)
	defer cancel()

	existing, err := c.store.GetTransactionByEmailID(lookupCtx, messageID)
	if err != nil {
		c.logger.Warn("dedup lookup failed, proceeding to extraction",
			"message_id", messageID, "error", err)
		return false
	}
	return existing != nil
}

func (c *Controller) markRevoked(ctx context.Context, userID string) {
	c.logger.Error("mailbox credentials revoked, disabling link", "user_id", userID)
	if err := c.store.UpdateMailboxStatus(ctx, userID, model.MailboxRevoked); err != nil {
		c.logger.Error("failed to mark mailbox revoked", "user_id", userID, "error", err)
	}
}

func transactionFrom(userID string, msg *service.MailMessage, extraction model.ExtractionResult) *model.Transaction {
	excerpt := msg.Body
	if excerpt == "" {
		excerpt = msg.Snippet
	}

	return &model.Transaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		EmailID:       msg.ID,
		Amount:        extraction.Amount,
		Direction:     extraction.Direction,
		Currency:      extraction.Currency,
		Merchant:      extraction.Merchant,
		Bank:          extraction.Bank,
		AccountSuffix: extraction.AccountSuffix,
		OccurredAt:    extraction.OccurredAt,
		Remarks:       extraction.Remarks,
		Confidence:    extraction.Confidence,
		Source:        model.SourceExtracted,
		RawExcerpt:    model.TruncateExcerpt(excerpt),
	}
}

// senderAllowed applies the mailbox's optional sender allow-list. An empty
// list allows everything. Matching is a case-insensitive substring test so
// both bare domains and full addresses work as filters.
func senderAllowed(from string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	from = strings.ToLower(from)
	for _, f := range filters {
		if f != "" && strings.Contains(from, strings.ToLower(f)) {
			return true
		}
	}
	return false
}
