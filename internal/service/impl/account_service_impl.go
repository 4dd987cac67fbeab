package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/events"
	"identity/internal/notify"
	"identity/internal/observability/metrics"
	"identity/internal/security"
	"identity/internal/store"
)

type AccountServiceImpl struct {
	base
}

func NewAccountServiceImpl(d Deps) *AccountServiceImpl {
	return &AccountServiceImpl{base: newBase(d)}
}

func (s *AccountServiceImpl) GetCurrentUser(ctx context.Context, userID domain.UserID) (*dto.PublicUser, error) {
	user, err := getUser(ctx, s.Store, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewPublicUser(user), nil
}

// UpdateProfile applies the non-nil fields of upd. Usernames are compared
// exactly, case included.
func (s *AccountServiceImpl) UpdateProfile(ctx context.Context, userID domain.UserID, upd dto.ProfileUpdate, net domain.NetworkIdentity) (*dto.PublicUser, error) {
	result := "failure"
	defer func() {
		metrics.AccountChangesTotal.WithLabelValues("profile", result).Inc()
	}()
	net = cleanNet(net)

	var (
		user    *domain.User
		changed []string
	)
	err := s.Store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		user, err = getUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		fields := map[string]any{}
		if upd.Username != nil {
			username := strings.TrimSpace(*upd.Username)
			if username == "" {
				return fmt.Errorf("%w: username", domain.ErrInvalidInput)
			}
			if username != user.Username {
				taken, err := tx.Users().UsernameTaken(ctx, username, userID)
				if err != nil {
					return fmt.Errorf("check username: %w", err)
				}
				if taken {
					return domain.ErrUsernameTaken
				}
				fields["username"] = username
				user.Username = username
				changed = append(changed, "username")
			}
		}
		if upd.FirstName != nil {
			if v := strings.TrimSpace(*upd.FirstName); v != user.FirstName {
				fields["first_name"] = v
				user.FirstName = v
				changed = append(changed, "firstName")
			}
		}
		if upd.LastName != nil {
			if v := strings.TrimSpace(*upd.LastName); v != user.LastName {
				fields["last_name"] = v
				user.LastName = v
				changed = append(changed, "lastName")
			}
		}
		if upd.Avatar != nil {
			var avatar *string
			if v := strings.TrimSpace(*upd.Avatar); v != "" {
				avatar = &v
			}
			if !equalStringPtr(avatar, user.Avatar) {
				fields["avatar"] = avatar
				user.Avatar = avatar
				changed = append(changed, "avatar")
			}
		}
		if len(fields) == 0 {
			return nil
		}
		if err := tx.Users().UpdateProfile(ctx, userID, fields); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		user.UpdatedAt = s.clock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	result = "success"

	if len(changed) > 0 {
		s.record(ctx, &userID, domain.AuditProfileUpdated, net, events.ProfileUpdated{Fields: changed})
	}
	return dto.NewPublicUser(user), nil
}

// ChangePassword re-authenticates with the current password, stores the new
// hash, and revokes every refresh session except the caller's own device.
func (s *AccountServiceImpl) ChangePassword(ctx context.Context, userID domain.UserID, r dto.ChangePasswordRequest, net domain.NetworkIdentity) error {
	result := "failure"
	defer func() {
		metrics.AccountChangesTotal.WithLabelValues("password", result).Inc()
	}()
	net = cleanNet(net)

	user, err := getUser(ctx, s.Store, userID)
	if err != nil {
		return err
	}
	if !s.Hasher.Compare(user.PasswordHash, r.CurrentPassword) {
		s.record(ctx, &userID, domain.AuditPasswordChangeFailed, net, events.PasswordChangeFailed{Reason: "invalid_current_password"})
		return domain.ErrInvalidCurrentPassword
	}
	if err := security.ValidatePassword(r.NewPassword); err != nil {
		s.record(ctx, &userID, domain.AuditPasswordChangeFailed, net, events.PasswordChangeFailed{Reason: "weak_password"})
		return err
	}
	if s.Hasher.Compare(user.PasswordHash, r.NewPassword) {
		s.record(ctx, &userID, domain.AuditPasswordChangeFailed, net, events.PasswordChangeFailed{Reason: "password_reused"})
		return domain.ErrPasswordReused
	}

	hash, err := s.Hasher.Hash(r.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var revoked int64
	err = s.Store.WithTx(ctx, func(tx *store.Store) error {
		var keep *domain.DeviceID
		if secret := strings.TrimSpace(r.RefreshToken); secret != "" {
			tok, err := tx.Tokens().Find(ctx, security.HashSecret(secret), domain.TokenRefresh)
			switch {
			case err == nil && tok.UserID == userID:
				keep = tok.DeviceID
			case err != nil && !errors.Is(err, store.ErrRecordNotFound):
				return fmt.Errorf("find current session: %w", err)
			}
		}
		if err := tx.Users().UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
		var err error
		revoked, err = tx.Tokens().DeleteRefreshExceptDevice(ctx, userID, keep)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	result = "success"

	s.record(ctx, &userID, domain.AuditPasswordChanged, net, events.PasswordChanged{SessionsRevoked: revoked})
	s.send(ctx, notify.Message{
		Kind: notify.KindPasswordChanged,
		To:   user.Email,
		Data: map[string]any{"Username": displayName(user), "ChangedAt": s.clock().Format(time.RFC1123)},
	})
	return nil
}

// RequestEmailChange parks newEmail as pending and mails a confirmation token
// to it. The current address gets a notice without the token.
func (s *AccountServiceImpl) RequestEmailChange(ctx context.Context, userID domain.UserID, newEmail string, net domain.NetworkIdentity) error {
	result := "failure"
	defer func() {
		metrics.AccountChangesTotal.WithLabelValues("email_request", result).Inc()
	}()
	net = cleanNet(net)

	newEmail = normalizeEmail(newEmail)
	if !validEmail(newEmail) {
		return fmt.Errorf("%w: email", domain.ErrInvalidInput)
	}

	var (
		user   *domain.User
		secret string
	)
	err := s.Store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		user, err = getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if newEmail == user.Email {
			return domain.ErrSameEmail
		}
		now := s.clock()
		cutoff := s.pendingEmailCutoff(now)
		if _, err := tx.Users().ReleaseStalePendingEmail(ctx, newEmail, cutoff); err != nil {
			return fmt.Errorf("release stale pending email: %w", err)
		}
		taken, err := tx.Users().EmailTaken(ctx, newEmail, userID, cutoff)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return domain.ErrEmailInUse
		}
		if err := tx.Users().SetPendingEmail(ctx, userID, newEmail, now); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.ErrEmailInUse
			}
			return fmt.Errorf("set pending email: %w", err)
		}
		if _, err := tx.Tokens().DeleteByUserAndType(ctx, userID, domain.TokenEmailChange); err != nil {
			return fmt.Errorf("drop previous email change: %w", err)
		}
		secret, err = s.issueToken(ctx, tx, userID, newEmail, domain.TokenEmailChange, s.Policy.EmailChangeTTL, nil)
		return err
	})
	if err != nil {
		return err
	}
	result = "success"

	name := displayName(user)
	s.send(ctx, notify.Message{
		Kind: notify.KindEmailChangeRequest,
		To:   newEmail,
		Data: map[string]any{"Username": name, "Token": secret, "NewEmail": newEmail},
	})
	s.send(ctx, notify.Message{
		Kind: notify.KindEmailChangeNotice,
		To:   user.Email,
		Data: map[string]any{"Username": name, "NewEmail": newEmail},
	})
	s.record(ctx, &userID, domain.AuditEmailChangeRequested, net, events.EmailChangeRequested{NewEmail: newEmail})
	return nil
}

// ConfirmEmailChange redeems an email_change token and swaps the address in.
// The token is spent even when the change can no longer be applied.
func (s *AccountServiceImpl) ConfirmEmailChange(ctx context.Context, secret string, net domain.NetworkIdentity) error {
	result := "failure"
	defer func() {
		metrics.AccountChangesTotal.WithLabelValues("email_confirm", result).Inc()
	}()
	net = cleanNet(net)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return domain.ErrTokenNotFound
	}

	var (
		outcome  error
		userID   domain.UserID
		oldEmail string
		newEmail string
	)
	err := s.Store.WithTx(ctx, func(tx *store.Store) error {
		tok, err := tx.Tokens().Consume(ctx, security.HashSecret(secret), domain.TokenEmailChange)
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("consume email change token: %w", err)
		}
		now := s.clock()
		if tok.IsExpired(now) {
			outcome = domain.ErrTokenExpired
			return s.dropExpiredPendingEmail(ctx, tx, tok)
		}
		user, err := getUser(ctx, tx, tok.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				outcome = domain.ErrTokenNotFound
				return nil
			}
			return err
		}
		if user.PendingEmail == nil || *user.PendingEmail != tok.Email {
			// superseded by a later request
			outcome = domain.ErrTokenNotFound
			return nil
		}
		taken, err := tx.Users().EmailTaken(ctx, tok.Email, user.ID, s.pendingEmailCutoff(now))
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			outcome = domain.ErrEmailInUse
			return nil
		}

		if err := tx.Users().ApplyEmailChange(ctx, user.ID, tok.Email, now); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.ErrEmailInUse
			}
			return fmt.Errorf("apply email change: %w", err)
		}
		if _, err := tx.Tokens().DeleteByUserAndType(ctx, user.ID, domain.TokenEmailChange); err != nil {
			return fmt.Errorf("drop email change tokens: %w", err)
		}
		userID, oldEmail, newEmail = user.ID, user.Email, tok.Email
		return nil
	})
	if err != nil {
		return err
	}
	if outcome != nil {
		return outcome
	}
	result = "success"

	s.record(ctx, &userID, domain.AuditEmailChanged, net, events.EmailChanged{OldEmail: oldEmail, NewEmail: newEmail})
	return nil
}

// dropExpiredPendingEmail frees the address an expired token was reserving,
// unless a newer request replaced it.
func (s *AccountServiceImpl) dropExpiredPendingEmail(ctx context.Context, tx *store.Store, tok *domain.SecurityToken) error {
	user, err := tx.Users().GetByID(ctx, tok.UserID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.PendingEmail == nil || *user.PendingEmail != tok.Email {
		return nil
	}
	if err := tx.Users().ClearPendingEmail(ctx, user.ID); err != nil {
		return fmt.Errorf("clear pending email: %w", err)
	}
	return nil
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
