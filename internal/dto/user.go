package dto

import (
	"time"

	"identity/internal/domain"
)

// PublicUser is the redacted view of a user returned to clients.
type PublicUser struct {
	ID                 string                `json:"id"`
	Email              string                `json:"email"`
	Username           string                `json:"username"`
	FirstName          string                `json:"firstName"`
	LastName           string                `json:"lastName"`
	Avatar             *string               `json:"avatar,omitempty"`
	EmailVerified      *time.Time            `json:"emailVerified"`
	IsTwoFactorEnabled bool                  `json:"isTwoFactorEnabled"`
	PendingEmail       *string               `json:"pendingEmail,omitempty"`
	LastLoginAt        *time.Time            `json:"lastLoginAt,omitempty"`
	LastLoginDevice    *domain.LoginSnapshot `json:"lastLoginDevice,omitempty"`
	CreatedAt          time.Time             `json:"createdAt"`
	UpdatedAt          time.Time             `json:"updatedAt"`
}

func NewPublicUser(u *domain.User) *PublicUser {
	out := &PublicUser{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Username:           u.Username,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		Avatar:             u.Avatar,
		EmailVerified:      u.EmailVerifiedAt,
		IsTwoFactorEnabled: u.TwoFactor().State == domain.TwoFactorEnabled,
		PendingEmail:       u.PendingEmail,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
	if u.LastLoginDevice.LoggedInAt != nil {
		snap := u.LastLoginDevice
		out.LastLoginDevice = &snap
	}
	return out
}

// ProfileUpdate is a partial update; nil fields are left alone. An empty
// Avatar clears it.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	RefreshToken    string `json:"refreshToken,omitempty"`
}

type EmailChangeRequest struct {
	NewEmail string `json:"newEmail"`
}

type TokenRequest struct {
	Token string `json:"token"`
}
