package identity

import "time"

// User represents an account known to the gateway. Subject is the stable
// identifier asserted by the external identity provider; PasswordHash is only
// set for local fallback accounts.
type User struct {
	ID           int64
	Subject      string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	LastSeenAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
