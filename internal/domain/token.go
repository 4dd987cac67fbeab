package domain

import "time"

type TokenType string

const (
	TokenRefresh           TokenType = "refresh"
	TokenEmailVerify       TokenType = "email_verify"
	TokenEmailChange       TokenType = "email_change"
	TokenTwoFactorEmailOTP TokenType = "two_factor_email_otp"
)

// SecurityToken is a single-use, time-boxed secret. Only the SHA-256 of the
// secret is stored.
type SecurityToken struct {
	ID        TokenID   `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID    `gorm:"type:uuid;not null;index:ix_tokens_user_type,priority:1" db:"user_id"`
	DeviceID  *DeviceID `gorm:"type:uuid;index" db:"device_id"`
	Email     string    `gorm:"type:text;not null" db:"email"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex:ux_tokens_hash" db:"token_hash"`
	Type      TokenType `gorm:"type:text;not null;index:ix_tokens_user_type,priority:2" db:"type"`
	ExpiresAt time.Time `gorm:"not null;index" db:"expires_at"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
}

func (SecurityToken) TableName() string { return "security_tokens" }

func (t *SecurityToken) IsExpired(now time.Time) bool { return !t.ExpiresAt.After(now) }
