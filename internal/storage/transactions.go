package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// CreateTransaction inserts a single transaction. A duplicate email_id
// yields common.ErrDuplicateEntry; callers treat that as "already processed
// by a concurrent run".
func (s *SQLiteStorage) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, user_id, email_id, amount, direction, currency,
			merchant, bank, account_suffix, occurred_at, remarks,
			confidence, source, raw_excerpt, category_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		nullString(txn.EmailID),
		txn.Amount.String(),
		string(txn.Direction),
		txn.Currency,
		nullString(txn.Merchant),
		nullString(txn.Bank),
		nullString(txn.AccountSuffix),
		nullTime(txn.OccurredAt),
		nullString(txn.Remarks),
		txn.Confidence,
		string(txn.Source),
		nullString(txn.RawExcerpt),
		nullInt64(txn.CategoryID),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, mapConstraintError(err))
	}

	txn.CreatedAt = now
	txn.UpdatedAt = now
	return nil
}

// GetTransactionByID returns one transaction, or (nil, nil) when absent.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransaction(ctx, "id = ?", id)
}

// GetTransactionByEmailID returns the transaction derived from the given
// provider message id, or (nil, nil) when no such transaction exists. This
// is the cheap half of the deduplication gate.
func (s *SQLiteStorage) GetTransactionByEmailID(ctx context.Context, emailID string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return nil, err
	}
	return s.getTransaction(ctx, "email_id = ?", emailID)
}

const transactionColumns = `
	id, user_id, email_id, amount, direction, currency,
	merchant, bank, account_suffix, occurred_at, remarks,
	confidence, source, raw_excerpt, category_id, created_at, updated_at`

func (s *SQLiteStorage) getTransaction(ctx context.Context, where string, args ...any) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+where, args...)

	txn, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}

// ListTransactions returns a user's transactions, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, userID string, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any

	conditions = append(conditions, "user_id = ?")
	args = append(args, userID)

	if filter.StartDate != nil {
		conditions = append(conditions, "occurred_at >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		conditions = append(conditions, "occurred_at <= ?")
		args = append(args, *filter.EndDate)
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, "category_id = ?")
		args = append(args, *filter.CategoryID)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY COALESCE(occurred_at, created_at) DESC, id`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// UpdateTransaction updates the user-editable fields of a transaction.
func (s *SQLiteStorage) UpdateTransaction(ctx context.Context, id string, update service.TransactionUpdate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	var sets []string
	var args []any

	if update.CategoryID != nil {
		sets = append(sets, "category_id = ?")
		args = append(args, *update.CategoryID)
	}
	if update.Merchant != nil {
		sets = append(sets, "merchant = ?")
		args = append(args, *update.Merchant)
	}
	if update.Remarks != nil {
		sets = append(sets, "remarks = ?")
		args = append(args, *update.Remarks)
	}
	if update.OccurredAt != nil {
		sets = append(sets, "occurred_at = ?")
		args = append(args, *update.OccurredAt)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var emailID, merchant, bank, suffix, remarks, excerpt sql.NullString
	var occurredAt sql.NullTime
	var categoryID sql.NullInt64
	var amount, direction, source string

	err := row.Scan(
		&txn.ID, &txn.UserID, &emailID, &amount, &direction, &txn.Currency,
		&merchant, &bank, &suffix, &occurredAt, &remarks,
		&txn.Confidence, &source, &excerpt, &categoryID,
		&txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	txn.Direction = model.Direction(direction)
	txn.Source = model.Source(source)
	txn.EmailID = emailID.String
	txn.Merchant = merchant.String
	txn.Bank = bank.String
	txn.AccountSuffix = suffix.String
	txn.Remarks = remarks.String
	txn.RawExcerpt = excerpt.String
	if occurredAt.Valid {
		t := occurredAt.Time
		txn.OccurredAt = &t
	}
	if categoryID.Valid {
		id := categoryID.Int64
		txn.CategoryID = &id
	}

	return &txn, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt64(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}
