package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type AccountService interface {
	GetCurrentUser(ctx context.Context, userID domain.UserID) (*dto.PublicUser, error)
	UpdateProfile(ctx context.Context, userID domain.UserID, upd dto.ProfileUpdate, net domain.NetworkIdentity) (*dto.PublicUser, error)
	ChangePassword(ctx context.Context, userID domain.UserID, r dto.ChangePasswordRequest, net domain.NetworkIdentity) error
	RequestEmailChange(ctx context.Context, userID domain.UserID, newEmail string, net domain.NetworkIdentity) error
	ConfirmEmailChange(ctx context.Context, secret string, net domain.NetworkIdentity) error
}
