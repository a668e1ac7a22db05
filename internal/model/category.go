package model

import "time"

// UncategorizedName is the system default category every unresolvable
// category reference falls back to.
const UncategorizedName = "Uncategorized"

// Category represents a spending classification. System defaults have no
// owner and are visible to every user; user and machine created categories
// belong to exactly one user.
type Category struct {
	CreatedAt time.Time
	UserID    *string // nil = system-wide default
	Name      string
	Icon      string
	ID        int64
	IsDefault bool
	AICreated bool
}

// VisibleTo reports whether the category is part of a user's effective set.
func (c *Category) VisibleTo(userID string) bool {
	if c.UserID == nil {
		return true
	}
	return *c.UserID == userID
}
