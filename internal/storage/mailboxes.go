package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
)

const mailboxColumns = `
	user_id, email_address, access_token, refresh_token, token_expiry,
	history_id, label_ids, sender_filters, watch_expiry, status,
	created_at, updated_at`

// GetMailboxByAddress returns the sync state for a mailbox address, or
// (nil, nil) when this system does not manage that address.
func (s *SQLiteStorage) GetMailboxByAddress(ctx context.Context, address string) (*model.MailboxSync, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(address, "address"); err != nil {
		return nil, err
	}
	return s.getMailbox(ctx, "email_address = ?", address)
}

// GetMailboxByUser returns the sync state for a user, or (nil, nil).
func (s *SQLiteStorage) GetMailboxByUser(ctx context.Context, userID string) (*model.MailboxSync, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return s.getMailbox(ctx, "user_id = ?", userID)
}

func (s *SQLiteStorage) getMailbox(ctx context.Context, where string, args ...any) (*model.MailboxSync, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mailboxColumns+` FROM mailbox_sync WHERE `+where, args...)

	mb, err := scanMailbox(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mailbox: %w", err)
	}
	return mb, nil
}

// ListMailboxes returns every mailbox link.
func (s *SQLiteStorage) ListMailboxes(ctx context.Context) ([]model.MailboxSync, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listMailboxes(ctx,
		`SELECT `+mailboxColumns+` FROM mailbox_sync ORDER BY user_id`)
}

// ListMailboxesWithWatchExpiringBefore returns active mailboxes whose
// watch registration expires before t (or was never registered).
func (s *SQLiteStorage) ListMailboxesWithWatchExpiringBefore(ctx context.Context, t time.Time) ([]model.MailboxSync, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.listMailboxes(ctx, `
		SELECT `+mailboxColumns+`
		FROM mailbox_sync
		WHERE status = 'active' AND (watch_expiry IS NULL OR watch_expiry < ?)
		ORDER BY user_id`, t)
}

func (s *SQLiteStorage) listMailboxes(ctx context.Context, query string, args ...any) ([]model.MailboxSync, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mailboxes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mailboxes []model.MailboxSync
	for rows.Next() {
		mb, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, *mb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mailboxes: %w", err)
	}

	return mailboxes, nil
}

// SaveMailbox inserts or replaces a mailbox link.
func (s *SQLiteStorage) SaveMailbox(ctx context.Context, mb *model.MailboxSync) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMailbox(mb); err != nil {
		return err
	}

	if mb.Status == "" {
		mb.Status = model.MailboxActive
	}

	labelIDs, err := marshalStrings(mb.LabelIDs)
	if err != nil {
		return err
	}
	senderFilters, err := marshalStrings(mb.SenderFilters)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mailbox_sync (
			user_id, email_address, access_token, refresh_token, token_expiry,
			history_id, label_ids, sender_filters, watch_expiry, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email_address = excluded.email_address,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			history_id = excluded.history_id,
			label_ids = excluded.label_ids,
			sender_filters = excluded.sender_filters,
			watch_expiry = excluded.watch_expiry,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		mb.UserID, mb.EmailAddress, mb.AccessToken, mb.RefreshToken, mb.TokenExpiry,
		int64(mb.HistoryID), labelIDs, senderFilters, nullableTime(mb.WatchExpiry),
		string(mb.Status), now, now)
	if err != nil {
		return fmt.Errorf("failed to save mailbox for %s: %w", mb.UserID, mapConstraintError(err))
	}

	return nil
}

// UpdateMailboxCursor advances the history cursor. The cursor is monotonic:
// an update with a smaller or equal value is a no-op, never a regression.
func (s *SQLiteStorage) UpdateMailboxCursor(ctx context.Context, userID string, historyID uint64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE mailbox_sync
		SET history_id = ?, updated_at = ?
		WHERE user_id = ? AND history_id < ?`,
		int64(historyID), time.Now().UTC(), userID, int64(historyID))
	if err != nil {
		return fmt.Errorf("failed to update cursor for %s: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cursor update: %w", err)
	}
	if affected == 0 {
		// Either the row is missing or the stored cursor is already ahead.
		mb, err := s.GetMailboxByUser(ctx, userID)
		if err != nil {
			return err
		}
		if mb == nil {
			return fmt.Errorf("mailbox for %s: %w", userID, common.ErrNotFound)
		}
		slog.Debug("cursor already ahead, skipping update",
			"user_id", userID, "stored", mb.HistoryID, "proposed", historyID)
	}

	return nil
}

// UpdateMailboxToken stores a refreshed credential pair. Concurrent
// refreshes are tolerated; the last write wins and both tokens stay valid
// until their real expiry.
func (s *SQLiteStorage) UpdateMailboxToken(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(accessToken, "accessToken"); err != nil {
		return err
	}

	return s.updateMailbox(ctx, userID, `
		UPDATE mailbox_sync
		SET access_token = ?, refresh_token = COALESCE(NULLIF(?, ''), refresh_token),
			token_expiry = ?, status = 'active', updated_at = ?
		WHERE user_id = ?`,
		accessToken, refreshToken, expiry, time.Now().UTC(), userID)
}

// UpdateMailboxWatch stores a new watch expiry.
func (s *SQLiteStorage) UpdateMailboxWatch(ctx context.Context, userID string, expiry time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	return s.updateMailbox(ctx, userID, `
		UPDATE mailbox_sync SET watch_expiry = ?, updated_at = ? WHERE user_id = ?`,
		expiry, time.Now().UTC(), userID)
}

// UpdateMailboxStatus marks a mailbox link healthy or revoked.
func (s *SQLiteStorage) UpdateMailboxStatus(ctx context.Context, userID string, status model.MailboxStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	return s.updateMailbox(ctx, userID, `
		UPDATE mailbox_sync SET status = ?, updated_at = ? WHERE user_id = ?`,
		string(status), time.Now().UTC(), userID)
}

// DeleteMailbox removes a mailbox link, e.g. on OAuth revocation.
func (s *SQLiteStorage) DeleteMailbox(ctx context.Context, userID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM mailbox_sync WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete mailbox for %s: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mailbox for %s: %w", userID, common.ErrNotFound)
	}

	return nil
}

func (s *SQLiteStorage) updateMailbox(ctx context.Context, userID, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update mailbox for %s: %w", userID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mailbox for %s: %w", userID, common.ErrNotFound)
	}

	return nil
}

func scanMailbox(row rowScanner) (*model.MailboxSync, error) {
	var mb model.MailboxSync
	var historyID int64
	var labelIDs, senderFilters, status sql.NullString
	var watchExpiry sql.NullTime

	err := row.Scan(
		&mb.UserID, &mb.EmailAddress, &mb.AccessToken, &mb.RefreshToken, &mb.TokenExpiry,
		&historyID, &labelIDs, &senderFilters, &watchExpiry, &status,
		&mb.CreatedAt, &mb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	mb.HistoryID = uint64(historyID)
	mb.Status = model.MailboxStatus(status.String)
	if watchExpiry.Valid {
		mb.WatchExpiry = watchExpiry.Time
	}
	if mb.LabelIDs, err = unmarshalStrings(labelIDs.String); err != nil {
		return nil, fmt.Errorf("invalid label_ids: %w", err)
	}
	if mb.SenderFilters, err = unmarshalStrings(senderFilters.String); err != nil {
		return nil, fmt.Errorf("invalid sender_filters: %w", err)
	}

	return &mb, nil
}

func marshalStrings(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return values, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
