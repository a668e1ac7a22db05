// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate  *time.Time
	EndDate    *time.Time
	CategoryID *int64
	Limit      int
	Offset     int
}

// TransactionUpdate carries the user-editable fields of a transaction.
// Nil fields are left untouched.
type TransactionUpdate struct {
	CategoryID *int64
	Merchant   *string
	Remarks    *string
	OccurredAt *time.Time
}

// Storage defines the contract for our persistence layer.
//
// Lookup methods return (nil, nil) when no row matches; hard failures are
// returned as errors. Writes that would violate a uniqueness constraint
// return common.ErrDuplicateEntry so callers can treat them as
// already-processed rather than fatal.
type Storage interface {
	// Transaction operations
	CreateTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionByEmailID(ctx context.Context, emailID string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]model.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, update TransactionUpdate) error

	// Category operations
	ListCategories(ctx context.Context, userID string) ([]model.Category, error)
	GetCategoryByID(ctx context.Context, id int64) (*model.Category, error)
	GetCategoryByName(ctx context.Context, userID, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, id int64, userID string) error

	// Mailbox sync state operations
	GetMailboxByAddress(ctx context.Context, address string) (*model.MailboxSync, error)
	GetMailboxByUser(ctx context.Context, userID string) (*model.MailboxSync, error)
	ListMailboxes(ctx context.Context) ([]model.MailboxSync, error)
	ListMailboxesWithWatchExpiringBefore(ctx context.Context, t time.Time) ([]model.MailboxSync, error)
	SaveMailbox(ctx context.Context, mailbox *model.MailboxSync) error
	UpdateMailboxCursor(ctx context.Context, userID string, historyID uint64) error
	UpdateMailboxToken(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error
	UpdateMailboxWatch(ctx context.Context, userID string, expiry time.Time) error
	UpdateMailboxStatus(ctx context.Context, userID string, status model.MailboxStatus) error
	DeleteMailbox(ctx context.Context, userID string) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// MailDelta is the change set between two positions in a mailbox's history
// stream. AddedMessageIDs may contain duplicates; callers deduplicate
// within one reconciliation pass.
type MailDelta struct {
	AddedMessageIDs   []string
	RemovedMessageIDs []string
	LabelChanges      []LabelChange
	HistoryID         uint64
}

// LabelChange records label additions/removals for one message within a delta.
type LabelChange struct {
	MessageID string
	Added     []string
	Removed   []string
}

// MailMessage is a fetched mailbox message reduced to the parts the
// extraction pipeline needs.
type MailMessage struct {
	ReceivedAt time.Time
	ID         string
	ThreadID   string
	From       string
	Subject    string
	Snippet    string
	Body       string
	Unread     bool
}

// WatchRegistration is the provider's answer to a watch request.
type WatchRegistration struct {
	Expiry    time.Time
	HistoryID uint64
}

// MailProvider is the contract for one user's mailbox.
type MailProvider interface {
	HistoryDelta(ctx context.Context, startHistoryID uint64) (*MailDelta, error)
	FetchMessage(ctx context.Context, id string) (*MailMessage, error)
	MarkRead(ctx context.Context, id string) error
	RegisterWatch(ctx context.Context, topic string, labelIDs []string) (*WatchRegistration, error)
	StopWatch(ctx context.Context) error
}

// MailProviderFactory builds a MailProvider bound to one mailbox's
// credentials. Handlers do not share providers because tokens are
// per-mailbox and refreshed independently.
type MailProviderFactory func(ctx context.Context, mailbox *model.MailboxSync) (MailProvider, error)

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
