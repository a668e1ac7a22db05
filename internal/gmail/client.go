// Package gmail adapts the Gmail API to the MailProvider contract: history
// delta listing, message fetch, read-state changes, and watch registration.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/sajagshrestha/autofin-BE/internal/common"
	"github.com/sajagshrestha/autofin-BE/internal/model"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// tokenExpiryBuffer refreshes access tokens slightly before Google would
// reject them, so a token never dies mid-batch.
const tokenExpiryBuffer = 3 * time.Minute

// TokenUpdater persists refreshed OAuth tokens. Satisfied by the storage
// layer's UpdateMailboxToken.
type TokenUpdater interface {
	UpdateMailboxToken(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error
}

// Client implements service.MailProvider for one Gmail mailbox.
type Client struct {
	svc    *gmailapi.Service
	logger *slog.Logger
}

// NewProviderFactory returns a factory that builds Gmail providers bound to
// one mailbox's credentials. Refreshed tokens are written back through the
// updater so the next notification starts from a live credential.
func NewProviderFactory(oauthCfg *oauth2.Config, updater TokenUpdater, logger *slog.Logger) service.MailProviderFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, mailbox *model.MailboxSync) (service.MailProvider, error) {
		return NewClient(ctx, oauthCfg, mailbox, updater, logger)
	}
}

// NewClient builds a Gmail provider for the given mailbox.
func NewClient(ctx context.Context, oauthCfg *oauth2.Config, mailbox *model.MailboxSync, updater TokenUpdater, logger *slog.Logger) (*Client, error) {
	if mailbox == nil {
		return nil, fmt.Errorf("mailbox cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	token := &oauth2.Token{
		AccessToken:  mailbox.AccessToken,
		RefreshToken: mailbox.RefreshToken,
		Expiry:       mailbox.TokenExpiry,
	}

	src := oauth2.ReuseTokenSourceWithExpiry(token, oauthCfg.TokenSource(ctx, token), tokenExpiryBuffer)
	src = &persistingTokenSource{
		src:     src,
		updater: updater,
		userID:  mailbox.UserID,
		last:    token.AccessToken,
		logger:  logger,
	}

	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &Client{svc: svc, logger: logger}, nil
}

// persistingTokenSource writes refreshed tokens back to storage so restarts
// and concurrent handlers see the newest credential.
type persistingTokenSource struct {
	src     oauth2.TokenSource
	updater TokenUpdater
	logger  *slog.Logger
	userID  string
	last    string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	if p.updater != nil && token.AccessToken != p.last {
		p.last = token.AccessToken
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.updater.UpdateMailboxToken(ctx, p.userID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
			// The in-memory token still works for this batch.
			p.logger.Warn("failed to persist refreshed token", "user_id", p.userID, "error", err)
		}
	}

	return token, nil
}

// HistoryDelta lists mailbox changes after startHistoryID. A cursor that
// Gmail no longer remembers maps to common.ErrHistoryExpired.
func (c *Client) HistoryDelta(ctx context.Context, startHistoryID uint64) (*service.MailDelta, error) {
	delta := &service.MailDelta{HistoryID: startHistoryID}

	call := c.svc.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded", "messageDeleted", "labelAdded", "labelRemoved")

	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, mapError(err, common.ErrHistoryExpired)
		}

		if resp.HistoryId > delta.HistoryID {
			delta.HistoryID = resp.HistoryId
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					delta.AddedMessageIDs = append(delta.AddedMessageIDs, added.Message.Id)
				}
			}
			for _, deleted := range h.MessagesDeleted {
				if deleted.Message != nil {
					delta.RemovedMessageIDs = append(delta.RemovedMessageIDs, deleted.Message.Id)
				}
			}
			for _, la := range h.LabelsAdded {
				if la.Message != nil {
					delta.LabelChanges = append(delta.LabelChanges, service.LabelChange{
						MessageID: la.Message.Id,
						Added:     la.LabelIds,
					})
				}
			}
			for _, lr := range h.LabelsRemoved {
				if lr.Message != nil {
					delta.LabelChanges = append(delta.LabelChanges, service.LabelChange{
						MessageID: lr.Message.Id,
						Removed:   lr.LabelIds,
					})
				}
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return delta, nil
}

// FetchMessage retrieves one message with its body decoded. A message
// deleted between notification and fetch maps to common.ErrMessageNotFound.
func (c *Client) FetchMessage(ctx context.Context, id string) (*service.MailMessage, error) {
	msg, err := c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err, common.ErrMessageNotFound)
	}

	out := &service.MailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if msg.InternalDate > 0 {
		out.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC()
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			out.Unread = true
			break
		}
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch strings.ToLower(header.Name) {
			case "from":
				out.From = header.Value
			case "subject":
				out.Subject = header.Value
			}
		}
		out.Body = extractBody(msg.Payload)
	}

	return out, nil
}

// extractBody walks the MIME tree and returns the first text/plain part,
// falling back to text/html when no plain part exists.
func extractBody(payload *gmailapi.MessagePart) string {
	if body := findPart(payload, "text/plain"); body != "" {
		return body
	}
	return findPart(payload, "text/html")
}

func findPart(part *gmailapi.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if body := findPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

// MarkRead removes the UNREAD label. Best-effort by contract; callers log
// failures rather than failing their batch.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	_, err := c.svc.Users.Messages.Modify("me", id, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return mapError(err, common.ErrMessageNotFound)
	}
	return nil
}

// RegisterWatch (re)registers push notifications for this mailbox to the
// given Pub/Sub topic. Gmail returns the mailbox's current history id, which
// seeds the cursor on first registration.
func (c *Client) RegisterWatch(ctx context.Context, topic string, labelIDs []string) (*service.WatchRegistration, error) {
	req := &gmailapi.WatchRequest{TopicName: topic}
	if len(labelIDs) > 0 {
		req.LabelIds = labelIDs
		req.LabelFilterBehavior = "INCLUDE"
	}

	resp, err := c.svc.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return nil, mapError(err, common.ErrNotFound)
	}

	return &service.WatchRegistration{
		HistoryID: resp.HistoryId,
		Expiry:    time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// StopWatch cancels push notifications for this mailbox, used when a link
// is removed before its watch would lapse on its own.
func (c *Client) StopWatch(ctx context.Context) error {
	if err := c.svc.Users.Stop("me").Context(ctx).Do(); err != nil {
		return mapError(err, common.ErrNotFound)
	}
	return nil
}
