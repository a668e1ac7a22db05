package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// Reconcile turns a stored cursor into the list of message ids to process.
//
// An expired cursor is not an error: Gmail forgets history after about a
// week, so the reconciler returns an empty delta positioned at
// fallbackHistoryID (the id carried by the triggering notification) and the
// pipeline moves on. Messages that arrived in the gap are picked up by the
// next full resync. Revoked credentials stay fatal; the caller must stop
// using the mailbox.
func Reconcile(ctx context.Context, provider service.MailProvider, cursor, fallbackHistoryID uint64, logger *slog.Logger) (*service.MailDelta, error) {
	if logger == nil {
		logger = slog.Default()
	}

	delta, err := provider.HistoryDelta(ctx, cursor)
	if err != nil {
		if errors.Is(err, common.ErrHistoryExpired) {
			logger.Warn("history cursor expired, skipping to notification position",
				"cursor", cursor, "fallback", fallbackHistoryID)
			return &service.MailDelta{HistoryID: fallbackHistoryID}, nil
		}
		if errors.Is(err, common.ErrAuthRevoked) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list history from %d: %w", cursor, err)
	}

	delta.AddedMessageIDs = dedupe(delta.AddedMessageIDs)
	if delta.HistoryID < fallbackHistoryID {
		delta.HistoryID = fallbackHistoryID
	}

	return delta, nil
}

// dedupe removes repeated message ids while preserving first-seen order.
// Gmail history entries frequently repeat a message across change types.
func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
