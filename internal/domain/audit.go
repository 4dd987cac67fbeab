package domain

import "time"

type AuditAction string

const (
	AuditLoginSuccess          AuditAction = "login_success"
	AuditLoginFailed           AuditAction = "login_failed"
	AuditLogout                AuditAction = "logout"
	AuditPasswordChanged       AuditAction = "password_changed"
	AuditPasswordChangeFailed  AuditAction = "password_changed_failed"
	AuditEmailChangeRequested  AuditAction = "email_change_requested"
	AuditEmailChanged          AuditAction = "email_changed"
	AuditEmailVerified         AuditAction = "email_verified"
	AuditUserRegistered        AuditAction = "user_registered"
	AuditAccountLocked         AuditAction = "account_locked"
	AuditTwoFactorSetupStarted AuditAction = "two_factor_setup_started"
	AuditTwoFactorEnabled      AuditAction = "two_factor_enabled"
	AuditTwoFactorEnableFailed AuditAction = "two_factor_enable_failed"
	AuditProfileUpdated        AuditAction = "profile_updated"
	AuditDeviceRevoked         AuditAction = "device_revoked"
	AuditSuspiciousActivity    AuditAction = "suspicious_activity_detected"
)

// AuditLog is append-only. UserID is nil for events raised before the caller
// could be identified.
type AuditLog struct {
	ID        AuditLogID  `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    *UserID     `gorm:"type:uuid;index" db:"user_id"`
	Action    AuditAction `gorm:"type:text;not null;index" db:"action"`
	IPAddress string      `gorm:"type:text" db:"ip_address"`
	UserAgent string      `gorm:"type:text" db:"user_agent"`
	Path      string      `gorm:"type:text" db:"path"`
	Method    string      `gorm:"type:text" db:"method"`
	Metadata  []byte      `gorm:"type:jsonb" db:"metadata"`
	CreatedAt time.Time   `gorm:"not null" db:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
