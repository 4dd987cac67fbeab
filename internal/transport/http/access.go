package http

import (
	"context"
	"net/http"
	"strings"

	"identity/internal/domain"
	"identity/internal/httpx"
	"identity/internal/netutil"
	"identity/internal/observability/middleware"

	"github.com/google/uuid"
)

type principal struct {
	UserID   domain.UserID
	DeviceID *domain.DeviceID
}

type principalKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// requireAccess admits requests carrying a valid bearer access token.
func (h *Handler) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			httpx.WriteError(w, r, domain.ErrInvalidSession)
			return
		}
		claims, err := h.Signer.Verify(strings.TrimSpace(raw[len("Bearer "):]))
		if err != nil {
			middleware.Logger(r.Context()).Warn("access token rejected", "error", err)
			httpx.WriteError(w, r, domain.ErrInvalidSession)
			return
		}
		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			httpx.WriteError(w, r, domain.ErrInvalidSession)
			return
		}
		p := principal{UserID: userID}
		if did, err := uuid.Parse(claims.DeviceID); err == nil {
			p.DeviceID = &did
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func clientIP(r *http.Request) string {
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

func netIdentity(r *http.Request) domain.NetworkIdentity {
	return domain.NetworkIdentity{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
	}
}
