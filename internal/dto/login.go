package dto

import "identity/internal/domain"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what a successful login or refresh hands back to the boundary
// layer, which mints the access credential from it.
type Session struct {
	User         *PublicUser
	RefreshToken string
	DeviceID     *domain.DeviceID
}
