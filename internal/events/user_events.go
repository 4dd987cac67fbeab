// Package events holds the metadata payloads attached to audit records.
package events

import "time"

type UserRegistered struct {
	Email string `json:"email"`
}

type LoginFailed struct {
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts,omitempty"`
}

type AccountLocked struct {
	Attempts    int       `json:"attempts"`
	LockedUntil time.Time `json:"lockedUntil"`
}

type ProfileUpdated struct {
	Fields []string `json:"fields"`
}

type PasswordChanged struct {
	SessionsRevoked int64 `json:"sessionsRevoked"`
}

type PasswordChangeFailed struct {
	Reason string `json:"reason"`
}

type EmailChangeRequested struct {
	NewEmail string `json:"newEmail"`
}

type EmailChanged struct {
	OldEmail string `json:"oldEmail"`
	NewEmail string `json:"newEmail"`
}
