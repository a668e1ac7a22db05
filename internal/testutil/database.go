// Package testutil provides shared helpers for package tests: in-memory
// databases with migrations applied and ready-made model fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite store. The system default
// categories are seeded by the migrations, so every test database starts
// with the full default set including Uncategorized. Cleanup is automatic.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// NewTransaction returns a valid extracted transaction for the given user,
// with a unique id and email id per call.
func NewTransaction(userID string) *model.Transaction {
	occurred := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &model.Transaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		EmailID:    "msg-" + uuid.NewString(),
		Amount:     decimal.NewFromFloat(1250.50),
		Direction:  model.DirectionDebit,
		Currency:   "NPR",
		Merchant:   "Bhatbhateni Supermarket",
		Bank:       "NIC Asia",
		OccurredAt: &occurred,
		Confidence: 0.92,
		Source:     model.SourceExtracted,
		RawExcerpt: "Your account XXXX1234 has been debited by NPR 1,250.50",
	}
}

// NewMailbox returns a valid mailbox link for the given user.
func NewMailbox(userID string) *model.MailboxSync {
	return &model.MailboxSync{
		UserID:       userID,
		EmailAddress: userID + "@gmail.com",
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
		TokenExpiry:  time.Now().Add(time.Hour).UTC(),
		HistoryID:    1000,
		LabelIDs:     []string{"INBOX"},
		Status:       model.MailboxActive,
	}
}
