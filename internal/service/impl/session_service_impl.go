package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/events"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
	"identity/internal/security"
	"identity/internal/store"
)

type SessionServiceImpl struct {
	base
}

func NewSessionServiceImpl(d Deps) *SessionServiceImpl {
	return &SessionServiceImpl{base: newBase(d)}
}

// errNoRefreshRow marks a refresh secret that matched nothing: already
// rotated, revoked, or never issued.
var errNoRefreshRow = errors.New("refresh token not found")

// Refresh trades a refresh secret for its successor. The old row is deleted
// in the same step that validates it, so a secret can be exchanged once; a
// second presentation is recorded as suspicious and rejected.
func (s *SessionServiceImpl) Refresh(ctx context.Context, secret string, net domain.NetworkIdentity) (*dto.Session, error) {
	result := "failure"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("refresh", result).Inc()
	}()
	net = cleanNet(net)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrInvalidRefreshToken
	}

	var (
		outcome   error
		user      *domain.User
		newSecret string
		deviceID  *domain.DeviceID
	)
	err := s.Store.WithTx(ctx, func(tx *store.Store) error {
		tok, err := tx.Tokens().Consume(ctx, security.HashSecret(secret), domain.TokenRefresh)
		if errors.Is(err, store.ErrRecordNotFound) {
			return errNoRefreshRow
		}
		if err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}
		now := s.clock()
		if tok.IsExpired(now) {
			outcome = domain.ErrRefreshTokenExpired
			return nil
		}

		user, err = getUser(ctx, tx, tok.UserID)
		if errors.Is(err, domain.ErrUserNotFound) {
			outcome = domain.ErrInvalidRefreshToken
			return nil
		}
		if err != nil {
			return err
		}
		deviceID = tok.DeviceID
		newSecret, err = s.issueToken(ctx, tx, user.ID, user.Email, domain.TokenRefresh, s.Policy.RefreshTTL, deviceID)
		if err != nil {
			return err
		}
		if deviceID != nil {
			if err := tx.Devices().Touch(ctx, *deviceID, now, nil); err != nil {
				return fmt.Errorf("touch device: %w", err)
			}
		}
		return nil
	})
	if errors.Is(err, errNoRefreshRow) {
		result = "suspicious"
		s.record(ctx, nil, domain.AuditSuspiciousActivity, net, events.SuspiciousActivity{Reason: "refresh_token_reuse"})
		middleware.Logger(ctx).Warn("refresh token replay or forgery", "ip", net.IP)
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRefreshToken, domain.ErrSuspiciousActivity)
	}
	if err != nil {
		return nil, err
	}
	if errors.Is(outcome, domain.ErrRefreshTokenExpired) {
		result = "expired"
	}
	if outcome != nil {
		return nil, outcome
	}
	result = "success"

	meta := events.LoginSucceeded{Via: events.ViaRefreshToken}
	if deviceID != nil {
		meta.DeviceID = deviceID.String()
	}
	s.record(ctx, &user.ID, domain.AuditLoginSuccess, net, meta)

	return &dto.Session{User: dto.NewPublicUser(user), RefreshToken: newSecret, DeviceID: deviceID}, nil
}

// Logout drops the refresh token if it still exists. Unknown secrets are not
// an error.
func (s *SessionServiceImpl) Logout(ctx context.Context, secret string, net domain.NetworkIdentity) error {
	net = cleanNet(net)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	tok, err := s.Store.Tokens().Consume(ctx, security.HashSecret(secret), domain.TokenRefresh)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	meta := events.LoggedOut{}
	if tok.DeviceID != nil {
		meta.DeviceID = tok.DeviceID.String()
	}
	s.record(ctx, &tok.UserID, domain.AuditLogout, net, meta)
	return nil
}

// RevokeDevice removes the device and its refresh tokens. Revoking a device
// the user does not own looks exactly like revoking one that is gone.
func (s *SessionServiceImpl) RevokeDevice(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, net domain.NetworkIdentity) error {
	net = cleanNet(net)
	var tokens, devices int64
	err := s.Store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		if tokens, err = tx.Tokens().DeleteRefreshForDevice(ctx, userID, deviceID); err != nil {
			return fmt.Errorf("revoke device tokens: %w", err)
		}
		if devices, err = tx.Devices().Delete(ctx, userID, deviceID); err != nil {
			return fmt.Errorf("delete device: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, &userID, domain.AuditDeviceRevoked, net, events.DeviceRevoked{
		DeviceID:      deviceID.String(),
		TokensRevoked: tokens,
		Existed:       devices > 0,
	})
	return nil
}

// LogoutAllOtherDevices keeps only the device bound to currentSecret.
func (s *SessionServiceImpl) LogoutAllOtherDevices(ctx context.Context, userID domain.UserID, currentSecret string, net domain.NetworkIdentity) error {
	net = cleanNet(net)
	currentSecret = strings.TrimSpace(currentSecret)
	if currentSecret == "" {
		return domain.ErrInvalidSession
	}

	var (
		keep            domain.DeviceID
		tokens, devices int64
	)
	err := s.Store.WithTx(ctx, func(tx *store.Store) error {
		tok, err := tx.Tokens().Find(ctx, security.HashSecret(currentSecret), domain.TokenRefresh)
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrInvalidSession
		}
		if err != nil {
			return fmt.Errorf("find current session: %w", err)
		}
		if tok.UserID != userID || tok.DeviceID == nil || tok.IsExpired(s.clock()) {
			return domain.ErrInvalidSession
		}
		keep = *tok.DeviceID

		if tokens, err = tx.Tokens().DeleteRefreshExceptDevice(ctx, userID, &keep); err != nil {
			return fmt.Errorf("revoke other sessions: %w", err)
		}
		if devices, err = tx.Devices().DeleteAllExcept(ctx, userID, keep); err != nil {
			return fmt.Errorf("delete other devices: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, &userID, domain.AuditLogout, net, events.OtherDevicesLoggedOut{
		RetainedDeviceID: keep.String(),
		DevicesRemoved:   devices,
		TokensRevoked:    tokens,
	})
	return nil
}

// ListDevices returns the user's devices, most recently active first.
func (s *SessionServiceImpl) ListDevices(ctx context.Context, userID domain.UserID) ([]domain.Device, error) {
	devices, err := s.Store.Devices().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}
