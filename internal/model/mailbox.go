package model

import "time"

// MailboxStatus tracks the health of a mailbox link.
type MailboxStatus string

const (
	// MailboxActive means the credential pair is believed valid.
	MailboxActive MailboxStatus = "active"
	// MailboxRevoked means the provider rejected the credentials; the link
	// needs re-authorization and must not be retried automatically.
	MailboxRevoked MailboxStatus = "revoked"
)

// MailboxSync is the per-user cursor into the mail provider's change stream,
// together with the OAuth credential pair needed to read it.
type MailboxSync struct {
	TokenExpiry   time.Time
	WatchExpiry   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	UserID        string
	EmailAddress  string
	AccessToken   string
	RefreshToken  string
	Status        MailboxStatus
	LabelIDs      []string // optional scoping filter for watch/history
	SenderFilters []string // optional sender allow-list
	HistoryID     uint64   // last processed cursor; 0 until first watch registration
}
