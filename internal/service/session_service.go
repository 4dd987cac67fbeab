package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type SessionService interface {
	Refresh(ctx context.Context, secret string, net domain.NetworkIdentity) (*dto.Session, error)
	Logout(ctx context.Context, secret string, net domain.NetworkIdentity) error
	RevokeDevice(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, net domain.NetworkIdentity) error
	LogoutAllOtherDevices(ctx context.Context, userID domain.UserID, currentSecret string, net domain.NetworkIdentity) error
	ListDevices(ctx context.Context, userID domain.UserID) ([]domain.Device, error)
}
