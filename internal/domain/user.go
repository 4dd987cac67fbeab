package domain

import "time"

type User struct {
	ID           UserID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email        string  `gorm:"type:text;not null;uniqueIndex:ux_users_email" db:"email" json:"email"`
	Username     string  `gorm:"type:text;not null;index:ix_users_username" db:"username" json:"username"`
	FirstName    string  `gorm:"type:text;not null" db:"first_name" json:"firstName"`
	LastName     string  `gorm:"type:text;not null" db:"last_name" json:"lastName"`
	Avatar       *string `gorm:"type:text" db:"avatar" json:"avatar"`
	PasswordHash string  `gorm:"type:text;not null" db:"password_hash" json:"-"`

	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"emailVerified"`

	IsTwoFactorEnabled  bool       `gorm:"not null;default:false" db:"is_two_factor_enabled" json:"isTwoFactorEnabled"`
	TwoFactorSecret     *string    `gorm:"type:text" db:"two_factor_secret" json:"-"`
	TwoFactorTempSecret *string    `gorm:"type:text" db:"two_factor_temp_secret" json:"-"`
	TwoFactorEnabledAt  *time.Time `db:"two_factor_enabled_at" json:"-"`

	LoginAttempts   int           `gorm:"not null;default:0" db:"login_attempts" json:"-"`
	LockedUntil     *time.Time    `db:"locked_until" json:"-"`
	LastLoginAt     *time.Time    `db:"last_login_at" json:"lastLoginAt"`
	LastLoginDevice LoginSnapshot `gorm:"embedded;embeddedPrefix:last_login_" json:"lastLoginDevice"`

	PendingEmail            *string    `gorm:"type:text;uniqueIndex:ux_users_pending_email" db:"pending_email" json:"-"`
	PendingEmailRequestedAt *time.Time `db:"pending_email_requested_at" json:"-"`

	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// LoginSnapshot is a copy of the last successful login origin. It is owned by
// the user row and outlives the device row it was taken from.
type LoginSnapshot struct {
	DeviceType string     `gorm:"type:text" db:"device_type" json:"deviceType"`
	UserAgent  string     `gorm:"type:text" db:"user_agent" json:"userAgent"`
	IPAddress  string     `gorm:"type:text" db:"ip_address" json:"ipAddress"`
	Location   string     `gorm:"type:text" db:"location" json:"location"`
	LoggedInAt *time.Time `db:"logged_in_at" json:"loggedInAt"`
}

func (u *User) IsVerified() bool { return u.EmailVerifiedAt != nil }

// IsLocked reports whether the lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
