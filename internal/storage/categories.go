package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
)

const categoryColumns = `id, name, icon, is_default, ai_created, user_id, created_at`

// ListCategories returns a user's effective category set: system defaults
// plus the user's own categories.
func (s *SQLiteStorage) ListCategories(ctx context.Context, userID string) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE user_id IS NULL OR user_id = ?
		ORDER BY is_default DESC, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// GetCategoryByID returns a category by id, or (nil, nil) when absent.
func (s *SQLiteStorage) GetCategoryByID(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)

	cat, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// GetCategoryByName returns a category from the user's effective set by
// case-insensitive name, preferring the user's own category over a system
// default of the same name. Returns (nil, nil) when absent.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, userID, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE (user_id = ? OR user_id IS NULL) AND lower(name) = lower(?)
		ORDER BY user_id IS NULL
		LIMIT 1`, userID, name)

	cat, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}
	return cat, nil
}

// CreateCategory inserts a new category and fills in its generated id.
// A name collision within the same owner yields common.ErrDuplicateEntry;
// callers resolve the race by falling back to lookup, not by locking.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, cat *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCategory(cat); err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, icon, is_default, ai_created, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cat.Name, cat.Icon, cat.IsDefault, cat.AICreated, cat.UserID, now)
	if err != nil {
		return fmt.Errorf("failed to create category %q: %w", cat.Name, mapConstraintError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category id: %w", err)
	}

	cat.ID = id
	cat.CreatedAt = now

	slog.Info("created category", "name", cat.Name, "id", id, "ai_created", cat.AICreated)
	return nil
}

// DeleteCategory removes a user-owned category. System defaults cannot be
// deleted; transactions referencing the category keep a dangling-free nil
// reference.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, id int64, userID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = NULL WHERE category_id = ? AND user_id = ?`,
		id, userID); err != nil {
		return fmt.Errorf("failed to detach transactions from category %d: %w", id, err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ? AND is_default = 0`,
		id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete category %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("category %d: %w", id, common.ErrNotFound)
	}

	return nil
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var cat model.Category
	var icon sql.NullString
	var userID sql.NullString

	err := row.Scan(&cat.ID, &cat.Name, &icon, &cat.IsDefault, &cat.AICreated, &userID, &cat.CreatedAt)
	if err != nil {
		return nil, err
	}

	cat.Icon = icon.String
	if userID.Valid {
		uid := userID.String
		cat.UserID = &uid
	}

	return &cat, nil
}
