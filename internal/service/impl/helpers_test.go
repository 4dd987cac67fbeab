package impl

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"identity/internal/audit"
	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/notify"
	"identity/internal/security"
	"identity/internal/store"
	"identity/internal/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Abcdef12!@#$"

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (c *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

func (c *captureNotifier) byKind(kind notify.Kind) []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Message
	for _, m := range c.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (c *captureNotifier) last(t *testing.T, kind notify.Kind) notify.Message {
	t.Helper()
	msgs := c.byKind(kind)
	require.NotEmpty(t, msgs, "no %s notification", kind)
	return msgs[len(msgs)-1]
}

type stubGeo struct{ loc *domain.GeoLocation }

func (s stubGeo) Lookup(context.Context, string) *domain.GeoLocation { return s.loc }

type stubLimiter struct {
	allow    bool
	failures int
	resets   int
}

func (s *stubLimiter) Allow(context.Context, string) (bool, error) { return s.allow, nil }
func (s *stubLimiter) Failure(context.Context, string) error       { s.failures++; return nil }
func (s *stubLimiter) Reset(context.Context, string) error         { s.resets++; return nil }

type failingSink struct{}

func (failingSink) Append(context.Context, *domain.AuditLog) error { return context.DeadlineExceeded }

type fixture struct {
	t        *testing.T
	st       *store.Store
	notifier *captureNotifier
	cipher   security.SecretCipher
	totp     *security.TOTP
	now      time.Time

	auth     *AuthServiceImpl
	sessions *SessionServiceImpl
	twoFA    *TwoFactorServiceImpl
	account  *AccountServiceImpl
}

type fixtureOption func(*Deps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	st := storetest.Open(t)
	cipher, err := security.NewCipher(strings.Repeat("k", 32))
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		st:       st,
		notifier: &captureNotifier{},
		cipher:   cipher,
		totp:     security.NewTOTP("identity-test"),
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	deps := Deps{
		Store:    st,
		Hasher:   security.NewBcryptHasher(bcrypt.MinCost),
		Cipher:   cipher,
		TOTP:     f.totp,
		Notifier: f.notifier,
		Geo:      stubGeo{},
		Policy:   DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	clock := func() time.Time { return f.now }

	f.auth = NewAuthServiceImpl(deps)
	f.auth.now = clock
	f.sessions = NewSessionServiceImpl(deps)
	f.sessions.now = clock
	f.twoFA = NewTwoFactorServiceImpl(deps)
	f.twoFA.now = clock
	f.account = NewAccountServiceImpl(deps)
	f.account.now = clock
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func netID(ip, ua string) domain.NetworkIdentity {
	return domain.NetworkIdentity{IP: ip, UserAgent: ua, Path: "/test", Method: "POST"}
}

var defaultNet = netID("203.0.113.10", "Mozilla/5.0 test")

func (f *fixture) register(email, username string) (*dto.PublicUser, string) {
	f.t.Helper()
	u, secret, err := f.auth.Register(context.Background(), dto.RegisterRequest{
		Username: username, FirstName: "Test", LastName: "User", Email: email, Password: strongPassword,
	}, defaultNet)
	require.NoError(f.t, err)
	return u, secret
}

// verifiedUser registers and verifies an account and returns its id.
func (f *fixture) verifiedUser(email, username string) domain.UserID {
	f.t.Helper()
	u, secret := f.register(email, username)
	require.NoError(f.t, f.auth.VerifyEmail(context.Background(), secret, defaultNet))
	id, err := uuid.Parse(u.ID)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) login(email string, net domain.NetworkIdentity) *dto.Session {
	f.t.Helper()
	s, err := f.auth.Login(context.Background(), email, strongPassword, net)
	require.NoError(f.t, err)
	return s
}

func (f *fixture) user(id domain.UserID) *domain.User {
	f.t.Helper()
	u, err := f.st.Users().GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) auditCount(action domain.AuditAction) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.st.DB.Model(&domain.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func (f *fixture) tokenCount(userID domain.UserID, typ domain.TokenType) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.st.DB.Model(&domain.SecurityToken{}).
		Where("user_id = ? AND type = ?", userID, typ).Count(&n).Error)
	return n
}

func withAudit(r *audit.Recorder) fixtureOption { return func(d *Deps) { d.Audit = r } }

func withLimiter(l LoginLimiter) fixtureOption { return func(d *Deps) { d.Limiter = l } }

func withGeo(loc *domain.GeoLocation) fixtureOption {
	return func(d *Deps) { d.Geo = stubGeo{loc: loc} }
}

func (f *fixture) userID(email string) domain.UserID {
	f.t.Helper()
	u, err := f.st.Users().GetByEmail(context.Background(), email)
	require.NoError(f.t, err)
	return u.ID
}
