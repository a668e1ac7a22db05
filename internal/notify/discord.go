// Package notify announces recorded transactions to external channels.
// Notifiers are strictly fire-and-forget: ingestion never waits on them and
// never fails because of them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sajagshrestha/autofin-BE/internal/model"
)

const webhookTimeout = 5 * time.Second

// DiscordNotifier posts transaction summaries to a Discord webhook.
type DiscordNotifier struct {
	httpClient *http.Client
	webhookURL string
	logger     *slog.Logger
}

// NewDiscordNotifier creates a notifier for the given webhook URL.
func NewDiscordNotifier(webhookURL string, logger *slog.Logger) *DiscordNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		logger:     logger,
		httpClient: &http.Client{Timeout: webhookTimeout},
	}
}

// TransactionRecorded posts a summary of the new transaction. The send runs
// in its own goroutine with its own deadline, detached from the caller's
// context so an ingestion batch finishing cannot cancel the delivery.
func (d *DiscordNotifier) TransactionRecorded(_ context.Context, txn *model.Transaction, category *model.Category) {
	message := formatTransaction(txn, category)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()

		if err := d.send(ctx, message); err != nil {
			d.logger.Warn("discord notification failed", "transaction_id", txn.ID, "error", err)
		}
	}()
}

func (d *DiscordNotifier) send(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func formatTransaction(txn *model.Transaction, category *model.Category) string {
	arrow := "🔻"
	if txn.Direction == model.DirectionCredit {
		arrow = "🔺"
	}

	merchant := txn.Merchant
	if merchant == "" {
		merchant = "Unknown merchant"
	}

	categoryName := "Uncategorized"
	icon := "🏷️"
	if category != nil {
		categoryName = category.Name
		if category.Icon != "" {
			icon = category.Icon
		}
	}

	return fmt.Sprintf("%s **%s %s** at %s\n%s %s · confidence %.0f%%",
		arrow, txn.Amount.StringFixed(2), txn.Currency, merchant,
		icon, categoryName, txn.Confidence*100)
}

// NopNotifier discards every notification. Used when no webhook is
// configured.
type NopNotifier struct{}

// TransactionRecorded does nothing.
func (NopNotifier) TransactionRecorded(context.Context, *model.Transaction, *model.Category) {}
