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
	"identity/internal/observability/middleware"
	"identity/internal/security"
	"identity/internal/store"

	"github.com/google/uuid"
)

type AuthServiceImpl struct {
	base
}

func NewAuthServiceImpl(d Deps) *AuthServiceImpl {
	return &AuthServiceImpl{base: newBase(d)}
}

// Register creates an unverified user and returns the plaintext verification
// secret, which is also mailed to the user.
func (a *AuthServiceImpl) Register(ctx context.Context, r dto.RegisterRequest, net domain.NetworkIdentity) (*dto.PublicUser, string, error) {
	result := "failure"
	defer func() {
		metrics.AuthRegistrationsTotal.WithLabelValues(result).Inc()
	}()
	net = cleanNet(net)

	email := normalizeEmail(r.Email)
	username := strings.TrimSpace(r.Username)
	if !validEmail(email) {
		return nil, "", fmt.Errorf("%w: email", domain.ErrInvalidInput)
	}
	if username == "" {
		return nil, "", fmt.Errorf("%w: username", domain.ErrInvalidInput)
	}
	if err := security.ValidatePassword(r.Password); err != nil {
		return nil, "", err
	}

	hash, err := a.Hasher.Hash(r.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	var (
		user   *domain.User
		secret string
	)
	err = a.Store.WithTx(ctx, func(tx *store.Store) error {
		taken, err := tx.Users().EmailTaken(ctx, email, uuid.Nil, a.pendingEmailCutoff(a.clock()))
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			return domain.ErrEmailTaken
		}

		now := a.clock()
		user = &domain.User{
			ID:           uuid.New(),
			Email:        email,
			Username:     username,
			FirstName:    strings.TrimSpace(r.FirstName),
			LastName:     strings.TrimSpace(r.LastName),
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return domain.ErrEmailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}

		secret, err = a.issueToken(ctx, tx, user.ID, email, domain.TokenEmailVerify, a.Policy.VerifyTTL, nil)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	result = "success"

	a.record(ctx, &user.ID, domain.AuditUserRegistered, net, events.UserRegistered{Email: email})
	a.send(ctx, notify.Message{
		Kind: notify.KindVerification,
		To:   email,
		Data: map[string]any{"Username": displayName(user), "Token": secret},
	})
	middleware.Logger(ctx).Info("user registered", "user_id", user.ID)

	return dto.NewPublicUser(user), secret, nil
}

// VerifyEmail redeems an email_verify token. The token is consumed before the
// account state is looked at, so replaying a link that already worked fails
// with ErrTokenNotFound while a different outstanding token for an already
// verified account is accepted silently.
func (a *AuthServiceImpl) VerifyEmail(ctx context.Context, secret string, net domain.NetworkIdentity) error {
	net = cleanNet(net)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return domain.ErrTokenNotFound
	}

	var (
		expired  bool
		verified *domain.User
	)
	err := a.Store.WithTx(ctx, func(tx *store.Store) error {
		tok, err := tx.Tokens().Consume(ctx, security.HashSecret(secret), domain.TokenEmailVerify)
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("consume verification token: %w", err)
		}
		now := a.clock()
		if tok.IsExpired(now) {
			// commit the delete, report after
			expired = true
			return nil
		}

		user, err := getUser(ctx, tx, tok.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.ErrTokenNotFound
			}
			return err
		}
		if user.IsVerified() {
			return nil
		}
		if err := tx.Users().SetEmailVerified(ctx, user.ID, now); err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}
		verified = user
		return nil
	})
	if err != nil {
		return err
	}
	if expired {
		return domain.ErrTokenExpired
	}
	if verified != nil {
		a.record(ctx, &verified.ID, domain.AuditEmailVerified, net, nil)
	}
	return nil
}

// Login checks, in order: the user exists, the email is verified, the account
// is not locked, the password matches. Only the verification and lock states
// are disclosed; every other failure is ErrInvalidCredentials.
func (a *AuthServiceImpl) Login(ctx context.Context, email, password string, net domain.NetworkIdentity) (*dto.Session, error) {
	result := "failure"
	defer func() {
		metrics.AuthLoginsTotal.WithLabelValues(result).Inc()
	}()
	net = cleanNet(net)
	log := middleware.Logger(ctx)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if a.Limiter != nil {
		ok, err := a.Limiter.Allow(ctx, net.IP)
		if err != nil {
			log.Warn("login throttle unavailable", "error", err)
		} else if !ok {
			result = "rate_limited"
			return nil, domain.ErrRateLimited
		}
	}

	user, err := a.Store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrRecordNotFound) {
		a.recordFailure(ctx, nil, net, events.LoginFailed{Reason: "unknown_email"})
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := a.clock()
	if !user.IsVerified() {
		result = "unverified"
		return nil, domain.ErrEmailNotVerified
	}
	if user.IsLocked(now) {
		result = "locked"
		return nil, domain.ErrAccountLocked
	}

	if !a.Hasher.Compare(user.PasswordHash, password) {
		return nil, a.failPassword(ctx, user, net, now)
	}

	loc := a.Geo.Lookup(ctx, net.IP)

	var (
		device    domain.Device
		newDevice bool
		secret    string
		snap      domain.LoginSnapshot
	)
	err = a.Store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		device, newDevice, err = a.resolveDevice(ctx, tx, user.ID, net, loc, now)
		if err != nil {
			return err
		}
		secret, err = a.issueToken(ctx, tx, user.ID, user.Email, domain.TokenRefresh, a.Policy.RefreshTTL, &device.ID)
		if err != nil {
			return err
		}
		snap = domain.LoginSnapshot{
			DeviceType: device.DeviceType,
			UserAgent:  net.UserAgent,
			IPAddress:  net.IP,
			Location:   device.GeoLocation.Label(),
			LoggedInAt: &now,
		}
		if err := tx.Users().RecordLogin(ctx, user.ID, snap); err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result = "success"
	metrics.TokensIssuedTotal.WithLabelValues("login", "success").Inc()

	if a.Limiter != nil {
		if err := a.Limiter.Reset(ctx, net.IP); err != nil {
			log.Warn("login throttle reset failed", "error", err)
		}
	}

	user.LoginAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginDevice = snap

	a.record(ctx, &user.ID, domain.AuditLoginSuccess, net, events.LoginSucceeded{DeviceID: device.ID.String(), NewDevice: newDevice})
	if newDevice {
		a.send(ctx, notify.Message{
			Kind: notify.KindNewDeviceAlert,
			To:   user.Email,
			Data: map[string]any{
				"Username":   displayName(user),
				"DeviceType": device.DeviceType,
				"UserAgent":  net.UserAgent,
				"IPAddress":  net.IP,
				"Location":   device.GeoLocation.Label(),
				"LoginTime":  now.Format(time.RFC1123),
			},
		})
	}
	log.Info("login succeeded", "user_id", user.ID, "device_id", device.ID, "new_device", newDevice)

	return &dto.Session{User: dto.NewPublicUser(user), RefreshToken: secret, DeviceID: &device.ID}, nil
}

// failPassword bumps the failure counter and locks the account once the
// threshold is reached. A lock that already ran out starts a fresh count.
func (a *AuthServiceImpl) failPassword(ctx context.Context, user *domain.User, net domain.NetworkIdentity, now time.Time) error {
	restart := user.LockedUntil != nil && !user.IsLocked(now)
	attempts := user.LoginAttempts + 1
	if restart {
		attempts = 1
	}

	var lockUntil *time.Time
	if attempts >= a.Policy.MaxLoginAttempts {
		lockUntil = ptr(now.Add(a.Policy.LockWindow))
	}
	var err error
	if restart {
		err = a.Store.Users().SetFailedLogins(ctx, user.ID, attempts, lockUntil)
	} else {
		err = a.Store.Users().RecordFailedLogin(ctx, user.ID, lockUntil)
	}
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}

	if lockUntil != nil {
		a.record(ctx, &user.ID, domain.AuditAccountLocked, net, events.AccountLocked{Attempts: attempts, LockedUntil: *lockUntil})
		middleware.Logger(ctx).Warn("account locked", "user_id", user.ID, "until", *lockUntil)
	}
	a.recordFailure(ctx, &user.ID, net, events.LoginFailed{Reason: "invalid_password", Attempts: attempts})
	return domain.ErrInvalidCredentials
}

func (a *AuthServiceImpl) recordFailure(ctx context.Context, userID *domain.UserID, net domain.NetworkIdentity, meta events.LoginFailed) {
	a.record(ctx, userID, domain.AuditLoginFailed, net, meta)
	if a.Limiter != nil {
		if err := a.Limiter.Failure(ctx, net.IP); err != nil {
			middleware.Logger(ctx).Warn("login throttle update failed", "error", err)
		}
	}
}

// resolveDevice returns the device row for the caller's fingerprint, creating
// it on first sight.
func (a *AuthServiceImpl) resolveDevice(ctx context.Context, tx *store.Store, userID domain.UserID, net domain.NetworkIdentity, loc *domain.GeoLocation, now time.Time) (domain.Device, bool, error) {
	existing, err := tx.Devices().FindByFingerprint(ctx, userID, net.UserAgent, net.IP)
	switch {
	case err == nil:
		if err := tx.Devices().Touch(ctx, existing.ID, now, loc); err != nil {
			return domain.Device{}, false, fmt.Errorf("touch device: %w", err)
		}
		existing.LastActiveAt = now
		if loc != nil {
			existing.GeoLocation = *loc
		}
		return *existing, false, nil
	case !errors.Is(err, store.ErrRecordNotFound):
		return domain.Device{}, false, fmt.Errorf("find device: %w", err)
	}

	dev := domain.Device{
		UserID:       userID,
		DeviceType:   domain.DeviceTypeWeb,
		UserAgent:    net.UserAgent,
		IPAddress:    net.IP,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if loc != nil {
		dev.GeoLocation = *loc
	}
	created, err := tx.Devices().CreateIfAbsent(ctx, &dev)
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("create device: %w", err)
	}
	if !created {
		if err := tx.Devices().Touch(ctx, dev.ID, now, loc); err != nil {
			return domain.Device{}, false, fmt.Errorf("touch device: %w", err)
		}
	}
	return dev, created, nil
}
