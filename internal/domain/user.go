package domain

import "time"

// User represents a registered identity of the ledger.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
