package impl

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"identity/internal/audit"
	"identity/internal/domain"
	"identity/internal/geo"
	"identity/internal/netutil"
	"identity/internal/notify"
	"identity/internal/observability/middleware"
	"identity/internal/security"
	"identity/internal/store"
)

// Policy holds the lifetimes and lockout thresholds the services enforce.
type Policy struct {
	VerifyTTL        time.Duration
	RefreshTTL       time.Duration
	EmailChangeTTL   time.Duration
	TwoFactorOTPTTL  time.Duration
	MaxLoginAttempts int
	LockWindow       time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		VerifyTTL:        10 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour,
		EmailChangeTTL:   10 * time.Minute,
		TwoFactorOTPTTL:  10 * time.Minute,
		MaxLoginAttempts: 5,
		LockWindow:       15 * time.Minute,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.VerifyTTL <= 0 {
		p.VerifyTTL = def.VerifyTTL
	}
	if p.RefreshTTL <= 0 {
		p.RefreshTTL = def.RefreshTTL
	}
	if p.EmailChangeTTL <= 0 {
		p.EmailChangeTTL = def.EmailChangeTTL
	}
	if p.TwoFactorOTPTTL <= 0 {
		p.TwoFactorOTPTTL = def.TwoFactorOTPTTL
	}
	if p.MaxLoginAttempts <= 0 {
		p.MaxLoginAttempts = def.MaxLoginAttempts
	}
	if p.LockWindow <= 0 {
		p.LockWindow = def.LockWindow
	}
	return p
}

// LoginLimiter throttles failed logins per client address.
type LoginLimiter interface {
	Allow(ctx context.Context, ip string) (bool, error)
	Failure(ctx context.Context, ip string) error
	Reset(ctx context.Context, ip string) error
}

type Deps struct {
	Store    *store.Store
	Hasher   security.PasswordHasher
	Cipher   security.SecretCipher
	TOTP     *security.TOTP
	Notifier notify.Notifier
	Geo      geo.Geolocator
	Audit    *audit.Recorder
	// Limiter is optional.
	Limiter LoginLimiter
	Policy  Policy
}

// base carries the collaborators shared by every service.
type base struct {
	Deps
	now func() time.Time
}

func newBase(d Deps) base {
	if d.Hasher == nil {
		d.Hasher = security.NewBcryptHasher(security.DefaultBcryptCost)
	}
	if d.TOTP == nil {
		d.TOTP = security.NewTOTP("identity")
	}
	if d.Notifier == nil {
		d.Notifier = notify.LogNotifier{}
	}
	if d.Geo == nil {
		d.Geo = geo.None{}
	}
	if d.Audit == nil {
		d.Audit = audit.NewRecorder(d.Store.AuditLogs())
	}
	d.Policy = d.Policy.withDefaults()
	return base{Deps: d, now: time.Now}
}

func (b *base) clock() time.Time { return b.now().UTC() }

func (b *base) record(ctx context.Context, userID *domain.UserID, action domain.AuditAction, net domain.NetworkIdentity, meta any) {
	b.Audit.Record(ctx, audit.Entry{UserID: userID, Action: action, Net: net, Metadata: meta})
}

// send hands msg to the notifier. Delivery problems never fail the caller.
func (b *base) send(ctx context.Context, msg notify.Message) {
	if err := b.Notifier.Send(ctx, msg); err != nil {
		middleware.Logger(ctx).Warn("notification not queued", "kind", string(msg.Kind), "error", err)
	}
}

// issueToken stores the hash of a fresh secret and returns the secret.
func (b *base) issueToken(ctx context.Context, tx *store.Store, userID domain.UserID, email string, typ domain.TokenType, ttl time.Duration, deviceID *domain.DeviceID) (string, error) {
	raw, hash, err := security.NewSecret()
	if err != nil {
		return "", fmt.Errorf("generate %s token: %w", typ, err)
	}
	now := b.clock()
	tok := &domain.SecurityToken{
		UserID:    userID,
		DeviceID:  deviceID,
		Email:     email,
		TokenHash: hash,
		Type:      typ,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tx.Tokens().Create(ctx, tok); err != nil {
		return "", fmt.Errorf("store %s token: %w", typ, err)
	}
	return raw, nil
}

// pendingEmailCutoff is the request time at or before which a pending email
// change has lapsed and no longer reserves its address.
func (b *base) pendingEmailCutoff(now time.Time) time.Time {
	return now.Add(-b.Policy.EmailChangeTTL)
}

func getUser(ctx context.Context, st *store.Store, id domain.UserID) (*domain.User, error) {
	u, err := st.Users().GetByID(ctx, id)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func cleanNet(n domain.NetworkIdentity) domain.NetworkIdentity {
	n.IP = netutil.Normalize(n.IP)
	n.UserAgent = netutil.TruncateUserAgent(n.UserAgent)
	return n
}

func displayName(u *domain.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

func ptr[T any](v T) *T { return &v }
