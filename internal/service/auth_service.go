package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type AuthService interface {
	Register(ctx context.Context, r dto.RegisterRequest, net domain.NetworkIdentity) (*dto.PublicUser, string, error)
	VerifyEmail(ctx context.Context, secret string, net domain.NetworkIdentity) error
	Login(ctx context.Context, email, password string, net domain.NetworkIdentity) (*dto.Session, error)
}
