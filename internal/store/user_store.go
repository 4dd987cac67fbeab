package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	return translate(u.db.WithContext(ctx).Create(usr).Error)
}

func (u *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// EmailTaken reports whether email is the address of a user other than
// except, or their pending address requested after pendingSince.
func (u *UserStore) EmailTaken(ctx context.Context, email string, except domain.UserID, pendingSince time.Time) (bool, error) {
	var n int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("(email = ? OR (pending_email = ? AND pending_email_requested_at > ?)) AND id <> ?",
			email, email, pendingSince, except).
		Count(&n).Error
	return n > 0, err
}

// UsernameTaken is an exact, case-sensitive match.
func (u *UserStore) UsernameTaken(ctx context.Context, username string, except domain.UserID) (bool, error) {
	var n int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ? AND id <> ?", username, except).
		Count(&n).Error
	return n > 0, err
}

func (u *UserStore) update(ctx context.Context, id domain.UserID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	tx := u.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if tx.Error != nil {
		return translate(tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// RecordFailedLogin bumps the counter in place. lockedUntil is only written
// when non-nil.
func (u *UserStore) RecordFailedLogin(ctx context.Context, id domain.UserID, lockedUntil *time.Time) error {
	fields := map[string]any{"login_attempts": gorm.Expr("login_attempts + 1")}
	if lockedUntil != nil {
		fields["locked_until"] = *lockedUntil
	}
	return u.update(ctx, id, fields)
}

// SetFailedLogins overwrites the counter and lock, clearing the lock when
// lockedUntil is nil.
func (u *UserStore) SetFailedLogins(ctx context.Context, id domain.UserID, attempts int, lockedUntil *time.Time) error {
	return u.update(ctx, id, map[string]any{"login_attempts": attempts, "locked_until": lockedUntil})
}

func (u *UserStore) RecordLogin(ctx context.Context, id domain.UserID, snap domain.LoginSnapshot) error {
	return u.update(ctx, id, map[string]any{
		"login_attempts":          0,
		"locked_until":            nil,
		"last_login_at":           snap.LoggedInAt,
		"last_login_device_type":  snap.DeviceType,
		"last_login_user_agent":   snap.UserAgent,
		"last_login_ip_address":   snap.IPAddress,
		"last_login_location":     snap.Location,
		"last_login_logged_in_at": snap.LoggedInAt,
	})
}

func (u *UserStore) SetEmailVerified(ctx context.Context, id domain.UserID, at time.Time) error {
	return u.update(ctx, id, map[string]any{"email_verified_at": at})
}

// UpdatePassword also clears the lockout state.
func (u *UserStore) UpdatePassword(ctx context.Context, id domain.UserID, hash string) error {
	return u.update(ctx, id, map[string]any{
		"password_hash":  hash,
		"login_attempts": 0,
		"locked_until":   nil,
	})
}

func (u *UserStore) UpdateProfile(ctx context.Context, id domain.UserID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return u.update(ctx, id, fields)
}

func (u *UserStore) SetPendingEmail(ctx context.Context, id domain.UserID, email string, at time.Time) error {
	return translate(u.update(ctx, id, map[string]any{
		"pending_email":              email,
		"pending_email_requested_at": at,
	}))
}

// ClearPendingEmail drops the user's outstanding email change.
func (u *UserStore) ClearPendingEmail(ctx context.Context, id domain.UserID) error {
	return u.update(ctx, id, map[string]any{
		"pending_email":              nil,
		"pending_email_requested_at": nil,
	})
}

// ReleaseStalePendingEmail frees email when it is only held as a pending
// address requested at or before cutoff.
func (u *UserStore) ReleaseStalePendingEmail(ctx context.Context, email string, cutoff time.Time) (int64, error) {
	return u.clearPending(ctx, u.db.Where("pending_email = ?", email), cutoff)
}

// ClearStalePendingEmails drops every pending address requested at or before
// cutoff.
func (u *UserStore) ClearStalePendingEmails(ctx context.Context, cutoff time.Time) (int64, error) {
	return u.clearPending(ctx, u.db, cutoff)
}

func (u *UserStore) clearPending(ctx context.Context, scope *gorm.DB, cutoff time.Time) (int64, error) {
	tx := scope.WithContext(ctx).Model(&domain.User{}).
		Where("pending_email IS NOT NULL AND (pending_email_requested_at IS NULL OR pending_email_requested_at <= ?)", cutoff).
		Updates(map[string]any{
			"pending_email":              nil,
			"pending_email_requested_at": nil,
			"updated_at":                 time.Now().UTC(),
		})
	return tx.RowsAffected, translate(tx.Error)
}

// ApplyEmailChange swaps in the new address and marks it verified.
func (u *UserStore) ApplyEmailChange(ctx context.Context, id domain.UserID, email string, at time.Time) error {
	return u.update(ctx, id, map[string]any{
		"email":                      email,
		"pending_email":              nil,
		"pending_email_requested_at": nil,
		"email_verified_at":          at,
	})
}

// SaveTwoFactor persists the enrollment columns of usr.
func (u *UserStore) SaveTwoFactor(ctx context.Context, usr *domain.User) error {
	return u.update(ctx, usr.ID, map[string]any{
		"is_two_factor_enabled":  usr.IsTwoFactorEnabled,
		"two_factor_secret":      usr.TwoFactorSecret,
		"two_factor_temp_secret": usr.TwoFactorTempSecret,
		"two_factor_enabled_at":  usr.TwoFactorEnabledAt,
	})
}
