package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					icon TEXT,
					is_default BOOLEAN NOT NULL DEFAULT 0,
					ai_created BOOLEAN NOT NULL DEFAULT 0,
					user_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				// One name per owner; system defaults share the '' owner key.
				`CREATE UNIQUE INDEX idx_categories_owner_name
					ON categories(COALESCE(user_id, ''), lower(name))`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					email_id TEXT UNIQUE,
					amount TEXT NOT NULL,
					direction TEXT NOT NULL,
					currency TEXT NOT NULL,
					merchant TEXT,
					bank TEXT,
					account_suffix TEXT,
					occurred_at DATETIME,
					remarks TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					source TEXT NOT NULL,
					raw_excerpt TEXT,
					category_id INTEGER REFERENCES categories(id),
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_user ON transactions(user_id)`,
				`CREATE INDEX idx_transactions_category ON transactions(category_id)`,
				`CREATE INDEX idx_transactions_occurred ON transactions(occurred_at)`,

				`CREATE TABLE IF NOT EXISTS mailbox_sync (
					user_id TEXT PRIMARY KEY,
					email_address TEXT UNIQUE NOT NULL,
					access_token TEXT NOT NULL,
					refresh_token TEXT NOT NULL,
					token_expiry DATETIME NOT NULL,
					history_id INTEGER NOT NULL DEFAULT 0,
					label_ids TEXT,
					sender_filters TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Seed system default categories",
		Up: func(tx *sql.Tx) error {
			defaults := []struct {
				name string
				icon string
			}{
				{"Uncategorized", "🏷️"},
				{"Food & Dining", "🍽️"},
				{"Groceries", "🛒"},
				{"Transport", "🚕"},
				{"Shopping", "🛍️"},
				{"Utilities", "💡"},
				{"Entertainment", "🎬"},
				{"Health", "🏥"},
				{"Travel", "✈️"},
				{"Rent", "🏠"},
				{"Salary", "💰"},
				{"Transfers", "🔁"},
			}

			stmt, err := tx.Prepare(`
				INSERT OR IGNORE INTO categories (name, icon, is_default, user_id)
				VALUES (?, ?, 1, NULL)`)
			if err != nil {
				return fmt.Errorf("failed to prepare seed statement: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, d := range defaults {
				if _, err := stmt.Exec(d.name, d.icon); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", d.name, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add mailbox watch expiry and link health",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE mailbox_sync ADD COLUMN watch_expiry DATETIME`,
				`ALTER TABLE mailbox_sync ADD COLUMN status TEXT NOT NULL DEFAULT 'active'`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		// PRAGMA cannot be parameterized.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version, "description", m.Description)
		current = m.Version
	}

	if current != ExpectedSchemaVersion {
		return fmt.Errorf("schema version %d does not match expected %d", current, ExpectedSchemaVersion)
	}

	return nil
}
