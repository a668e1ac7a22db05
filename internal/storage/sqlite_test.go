package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)

	require.NoError(t, store.Migrate(context.Background()))

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func testTransaction(userID, emailID string) *model.Transaction {
	occurred := time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)
	return &model.Transaction{
		ID:         uuid.NewString(),
		UserID:     userID,
		EmailID:    emailID,
		Amount:     decimal.NewFromFloat(450.75),
		Direction:  model.DirectionDebit,
		Currency:   "NPR",
		Merchant:   "Pathao",
		OccurredAt: &occurred,
		Confidence: 0.9,
		Source:     model.SourceExtracted,
	}
}

func TestCreateTransaction_DuplicateEmailID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := testTransaction("user1", "msg-100")
	require.NoError(t, store.CreateTransaction(ctx, first))

	second := testTransaction("user1", "msg-100")
	err := store.CreateTransaction(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestGetTransactionByEmailID(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	txn := testTransaction("user1", "msg-200")
	require.NoError(t, store.CreateTransaction(ctx, txn))

	got, err := store.GetTransactionByEmailID(ctx, "msg-200")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, txn.ID, got.ID)
	assert.True(t, txn.Amount.Equal(got.Amount))
	assert.Equal(t, model.DirectionDebit, got.Direction)

	missing, err := store.GetTransactionByEmailID(ctx, "msg-absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListTransactions_Filters(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	cats, err := store.ListCategories(ctx, "user1")
	require.NoError(t, err)
	require.NotEmpty(t, cats)
	catID := cats[0].ID

	old := testTransaction("user1", "msg-old")
	oldDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old.OccurredAt = &oldDate
	require.NoError(t, store.CreateTransaction(ctx, old))

	recent := testTransaction("user1", "msg-recent")
	recent.CategoryID = &catID
	require.NoError(t, store.CreateTransaction(ctx, recent))

	other := testTransaction("user2", "msg-other")
	require.NoError(t, store.CreateTransaction(ctx, other))

	all, err := store.ListTransactions(ctx, "user1", service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "msg-recent", all[0].EmailID, "newest first")

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	filtered, err := store.ListTransactions(ctx, "user1", service.TransactionFilter{StartDate: &start})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "msg-recent", filtered[0].EmailID)

	byCat, err := store.ListTransactions(ctx, "user1", service.TransactionFilter{CategoryID: &catID})
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	require.NotNil(t, byCat[0].CategoryID)
	assert.Equal(t, catID, *byCat[0].CategoryID)
}

func TestUpdateTransaction(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	txn := testTransaction("user1", "msg-300")
	require.NoError(t, store.CreateTransaction(ctx, txn))

	merchant := "Daraz"
	require.NoError(t, store.UpdateTransaction(ctx, txn.ID, service.TransactionUpdate{
		Merchant: &merchant,
	}))

	got, err := store.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Daraz", got.Merchant)

	err = store.UpdateTransaction(ctx, "no-such-id", service.TransactionUpdate{Merchant: &merchant})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestMigrations_SeedDefaultCategories(t *testing.T) {
	store := newTestStorage(t)

	cats, err := store.ListCategories(context.Background(), "anyone")
	require.NoError(t, err)

	names := make(map[string]bool, len(cats))
	for _, c := range cats {
		assert.True(t, c.IsDefault)
		assert.Nil(t, c.UserID)
		names[c.Name] = true
	}
	assert.True(t, names[model.UncategorizedName])
	assert.True(t, names["Food & Dining"])
	assert.Len(t, cats, 12)
}

func TestCreateCategory_DuplicatePerOwner(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	uid := "user1"
	cat := &model.Category{Name: "Coffee", UserID: &uid}
	require.NoError(t, store.CreateCategory(ctx, cat))
	assert.NotZero(t, cat.ID)

	dup := &model.Category{Name: "coffee", UserID: &uid}
	err := store.CreateCategory(ctx, dup)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry, "case-insensitive uniqueness per owner")

	other := "user2"
	theirs := &model.Category{Name: "Coffee", UserID: &other}
	assert.NoError(t, store.CreateCategory(ctx, theirs), "same name under another owner is fine")
}

func TestGetCategoryByName_PrefersUserOwned(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	uid := "user1"
	mine := &model.Category{Name: "Subscriptions", UserID: &uid, AICreated: true}
	require.NoError(t, store.CreateCategory(ctx, mine))

	got, err := store.GetCategoryByName(ctx, "user1", "TRAVEL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Travel", got.Name, "case-insensitive match on defaults")

	got, err = store.GetCategoryByName(ctx, "user1", "subscriptions")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, mine.ID, got.ID)

	got, err = store.GetCategoryByName(ctx, "user2", "Subscriptions")
	require.NoError(t, err)
	assert.Nil(t, got, "another user's categories are invisible")
}

func TestDeleteCategory(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	uid := "user1"
	cat := &model.Category{Name: "Gadgets", UserID: &uid}
	require.NoError(t, store.CreateCategory(ctx, cat))

	txn := testTransaction("user1", "msg-400")
	txn.CategoryID = &cat.ID
	require.NoError(t, store.CreateTransaction(ctx, txn))

	require.NoError(t, store.DeleteCategory(ctx, cat.ID, "user1"))

	got, err := store.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.CategoryID, "transactions are detached, not deleted")

	defaults, err := store.ListCategories(ctx, "user1")
	require.NoError(t, err)
	require.NotEmpty(t, defaults)
	err = store.DeleteCategory(ctx, defaults[0].ID, "user1")
	assert.ErrorIs(t, err, common.ErrNotFound, "system defaults cannot be deleted")
}

func testMailbox(userID string) *model.MailboxSync {
	return &model.MailboxSync{
		UserID:       userID,
		EmailAddress: userID + "@gmail.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenExpiry:  time.Now().Add(time.Hour).UTC(),
		HistoryID:    500,
		LabelIDs:     []string{"INBOX", "Label_12"},
		Status:       model.MailboxActive,
	}
}

func TestSaveMailbox_Upsert(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mb := testMailbox("user1")
	require.NoError(t, store.SaveMailbox(ctx, mb))

	got, err := store.GetMailboxByAddress(ctx, "user1@gmail.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(500), got.HistoryID)
	assert.Equal(t, []string{"INBOX", "Label_12"}, got.LabelIDs)

	mb.HistoryID = 900
	mb.AccessToken = "rotated"
	require.NoError(t, store.SaveMailbox(ctx, mb))

	got, err = store.GetMailboxByUser(ctx, "user1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint64(900), got.HistoryID)
	assert.Equal(t, "rotated", got.AccessToken)

	missing, err := store.GetMailboxByAddress(ctx, "nobody@gmail.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateMailboxCursor_Monotonic(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mb := testMailbox("user1")
	require.NoError(t, store.SaveMailbox(ctx, mb))

	require.NoError(t, store.UpdateMailboxCursor(ctx, "user1", 800))

	got, err := store.GetMailboxByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, uint64(800), got.HistoryID)

	// A stale cursor never regresses the stored value.
	require.NoError(t, store.UpdateMailboxCursor(ctx, "user1", 300))

	got, err = store.GetMailboxByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, uint64(800), got.HistoryID)

	err = store.UpdateMailboxCursor(ctx, "ghost", 100)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateMailboxToken_KeepsRefreshTokenWhenOmitted(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	mb := testMailbox("user1")
	mb.Status = model.MailboxRevoked
	require.NoError(t, store.SaveMailbox(ctx, mb))

	expiry := time.Now().Add(30 * time.Minute).UTC()
	require.NoError(t, store.UpdateMailboxToken(ctx, "user1", "new-access", "", expiry))

	got, err := store.GetMailboxByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken, "empty refresh token keeps the stored one")
	assert.Equal(t, model.MailboxActive, got.Status, "a successful refresh reactivates the link")
}

func TestListMailboxesWithWatchExpiringBefore(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	soon := testMailbox("expiring")
	soon.WatchExpiry = time.Now().Add(2 * time.Hour).UTC()
	require.NoError(t, store.SaveMailbox(ctx, soon))

	healthy := testMailbox("healthy")
	healthy.WatchExpiry = time.Now().Add(96 * time.Hour).UTC()
	require.NoError(t, store.SaveMailbox(ctx, healthy))

	never := testMailbox("unregistered")
	require.NoError(t, store.SaveMailbox(ctx, never))

	revoked := testMailbox("revoked")
	revoked.Status = model.MailboxRevoked
	require.NoError(t, store.SaveMailbox(ctx, revoked))

	got, err := store.ListMailboxesWithWatchExpiringBefore(ctx, time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	var users []string
	for _, m := range got {
		users = append(users, m.UserID)
	}
	assert.ElementsMatch(t, []string{"expiring", "unregistered"}, users)
}

func TestUpdateMailboxStatus(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMailbox(ctx, testMailbox("user1")))
	require.NoError(t, store.UpdateMailboxStatus(ctx, "user1", model.MailboxRevoked))

	got, err := store.GetMailboxByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, model.MailboxRevoked, got.Status)

	err = store.UpdateMailboxStatus(ctx, "ghost", model.MailboxRevoked)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestValidation(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	t.Run("negative amount rejected", func(t *testing.T) {
		txn := testTransaction("user1", "msg-neg")
		txn.Amount = decimal.NewFromFloat(-5)
		assert.Error(t, store.CreateTransaction(ctx, txn))
	})

	t.Run("invalid direction rejected", func(t *testing.T) {
		txn := testTransaction("user1", "msg-dir")
		txn.Direction = "sideways"
		assert.Error(t, store.CreateTransaction(ctx, txn))
	})

	t.Run("confidence out of range rejected", func(t *testing.T) {
		txn := testTransaction("user1", "msg-conf")
		txn.Confidence = 1.5
		assert.Error(t, store.CreateTransaction(ctx, txn))
	})
}
