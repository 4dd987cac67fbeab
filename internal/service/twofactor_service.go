package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

type TwoFactorService interface {
	InitiateSetup(ctx context.Context, userID domain.UserID, net domain.NetworkIdentity) (*dto.TwoFactorSetup, error)
	ConfirmSetup(ctx context.Context, userID domain.UserID, proof dto.TwoFactorProof, net domain.NetworkIdentity) error
}
