package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"identity/internal/dto"
	"identity/internal/jwtsigner"
	"identity/internal/notify"
	"identity/internal/security"
	impl "identity/internal/service/impl"
	"identity/internal/store/storetest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (o *outbox) Send(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return nil
}

func (o *outbox) token(t *testing.T, kind notify.Kind) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Kind == kind {
			return o.msgs[i].Data["Token"].(string)
		}
	}
	t.Fatalf("no %s message", kind)
	return ""
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	outbox *outbox
}

func newTestAPI(t *testing.T, cfg RouterConfig) *testAPI {
	t.Helper()
	cipher, err := security.NewCipher(strings.Repeat("k", 32))
	require.NoError(t, err)
	signer, err := jwtsigner.NewFromBase64("", "kid-test", "https://id.test", "client")
	require.NoError(t, err)

	box := &outbox{}
	deps := impl.Deps{
		Store:    storetest.Open(t),
		Hasher:   security.NewBcryptHasher(bcrypt.MinCost),
		Cipher:   cipher,
		Notifier: box,
	}
	h := &Handler{
		Auth:      impl.NewAuthServiceImpl(deps),
		Sessions:  impl.NewSessionServiceImpl(deps),
		TwoFactor: impl.NewTwoFactorServiceImpl(deps),
		Account:   impl.NewAccountServiceImpl(deps),
		Signer:    signer,
		AccessTTL: 15 * time.Minute,
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.NewRegistry()
	}
	return &testAPI{t: t, router: NewRouter(h, cfg), outbox: box}
}

func (a *testAPI) do(method, path string, body any, bearer string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh) Safari/605.1.15")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const password = "Abcdef12!@#$"

func (a *testAPI) signUp(email string) dto.TokenResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/v1/auth/register", dto.RegisterRequest{
		Username: strings.Split(email, "@")[0], FirstName: "Ada", LastName: "L", Email: email, Password: password,
	}, "")
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/v1/auth/verify-email", dto.TokenRequest{Token: a.outbox.token(a.t, notify.KindVerification)}, "")
	require.Equal(a.t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: email, Password: password}, "")
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.TokenResponse](a.t, rec)
}

func TestRegisterLoginAndMe(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec := api.do(http.MethodPost, "/v1/auth/register", dto.RegisterRequest{
		Username: "ada", FirstName: "Ada", LastName: "L", Email: "ada@example.com", Password: password,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[dto.RegisterResponse](t, rec)
	assert.True(t, reg.RequiresEmailVerification)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = api.do(http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: "ada@example.com", Password: password}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unverified")

	rec = api.do(http.MethodPost, "/v1/auth/verify-email", dto.TokenRequest{Token: api.outbox.token(t, notify.KindVerification)}, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodPost, "/v1/auth/login", dto.LoginRequest{Email: "ada@example.com", Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tokens := decode[dto.TokenResponse](t, rec)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.EqualValues(t, 900, tokens.ExpiresIn)
	assert.NotEmpty(t, tokens.DeviceID)

	rec = api.do(http.MethodGet, "/v1/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = api.do(http.MethodGet, "/v1/me", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodGet, "/v1/me", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[dto.PublicUser](t, rec)
	assert.Equal(t, "ada@example.com", me.Email)
	require.NotNil(t, me.LastLoginDevice)
	assert.Equal(t, "192.0.2.1", me.LastLoginDevice.IPAddress)

	rec = api.do(http.MethodGet, "/v1/devices", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	devices := decode[[]dto.DeviceResponse](t, rec)
	require.Len(t, devices, 1)
	assert.Equal(t, tokens.DeviceID, devices[0].ID)
	assert.True(t, devices[0].Current)
}

func TestRefreshReplayLooksGeneric(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	first := api.signUp("ada@example.com")

	rec := api.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: first.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decode[dto.TokenResponse](t, rec)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.DeviceID, second.DeviceID)

	rec = api.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: first.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, strings.ToLower(rec.Body.String()), "suspicious")

	rec = api.do(http.MethodPost, "/v1/auth/logout", dto.RefreshRequest{RefreshToken: second.RefreshToken}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: second.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileAndEmailChange(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	tokens := api.signUp("ada@example.com")

	rec := api.do(http.MethodPatch, "/v1/me", map[string]any{"firstName": "Augusta"}, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Augusta", decode[dto.PublicUser](t, rec).FirstName)

	rec = api.do(http.MethodPost, "/v1/me/email", dto.EmailChangeRequest{NewEmail: "ada@example.com"}, tokens.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/v1/me/email", dto.EmailChangeRequest{NewEmail: "augusta@example.com"}, tokens.AccessToken)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	secret := api.outbox.token(t, notify.KindEmailChangeRequest)

	rec = api.do(http.MethodPost, "/v1/auth/email/confirm", dto.TokenRequest{Token: secret}, "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = api.do(http.MethodPost, "/v1/auth/email/confirm", dto.TokenRequest{Token: secret}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/v1/me", nil, tokens.AccessToken)
	assert.Equal(t, "augusta@example.com", decode[dto.PublicUser](t, rec).Email)
}

func TestDeviceRevocationAndPassword(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	tokens := api.signUp("ada@example.com")

	rec := api.do(http.MethodDelete, "/v1/devices/not-a-uuid", nil, tokens.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/v1/me/password", dto.ChangePasswordRequest{
		CurrentPassword: "nope", NewPassword: "Zyxwvu98$%^&",
	}, tokens.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(http.MethodPost, "/v1/me/password", dto.ChangePasswordRequest{
		CurrentPassword: password, NewPassword: "Zyxwvu98$%^&", RefreshToken: tokens.RefreshToken,
	}, tokens.AccessToken)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/v1/devices/logout-others", dto.LogoutOthersRequest{RefreshToken: tokens.RefreshToken}, tokens.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodDelete, "/v1/devices/"+tokens.DeviceID, nil, tokens.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodPost, "/v1/auth/refresh", dto.RefreshRequest{RefreshToken: tokens.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwoFactorSetupEndpoint(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})
	tokens := api.signUp("ada@example.com")

	rec := api.do(http.MethodPost, "/v1/2fa/confirm", dto.TwoFactorProof{TOTP: "123456"}, tokens.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "not pending")

	rec = api.do(http.MethodPost, "/v1/2fa/setup", nil, tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	setup := decode[dto.TwoFactorSetup](t, rec)
	assert.NotEmpty(t, setup.ManualSeed)

	rec = api.do(http.MethodPost, "/v1/2fa/confirm", dto.TwoFactorProof{}, tokens.AccessToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlumbing(t *testing.T) {
	api := newTestAPI(t, RouterConfig{})

	rec := api.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = api.do(http.MethodGet, "/v1/auth/jwks", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	jwks := decode[struct {
		Keys []map[string]any `json:"keys"`
	}](t, rec)
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, "kid-test", jwks.Keys[0]["kid"])

	rec = api.do(http.MethodPost, "/v1/auth/login", map[string]any{"email": 7}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, RouterConfig{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", nil, "").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, api.do(http.MethodGet, "/healthz", nil, "").Code)
}

func (a *testAPI) get(path string, header map[string]string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestForwardedForIgnoredByDefault(t *testing.T) {
	api := newTestAPI(t, RouterConfig{RateLimitPerMinute: 1})

	rec := api.get("/healthz", map[string]string{"X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = api.get("/healthz", map[string]string{"X-Forwarded-For": "198.51.100.2"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "rotating the header does not reset the budget")
}

func TestForwardedForTrustedBehindProxy(t *testing.T) {
	api := newTestAPI(t, RouterConfig{RateLimitPerMinute: 1, TrustProxy: true})

	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		rec := api.get("/healthz", map[string]string{"X-Forwarded-For": ip})
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}
	rec := api.get("/healthz", map[string]string{"X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCORSCredentialsOnlyForNamedOrigins(t *testing.T) {
	origin := map[string]string{"Origin": "https://app.example"}

	open := newTestAPI(t, RouterConfig{})
	rec := open.get("/healthz", origin)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	named := newTestAPI(t, RouterConfig{CORSOrigins: []string{"https://app.example"}})
	rec = named.get("/healthz", origin)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = named.get("/healthz", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
