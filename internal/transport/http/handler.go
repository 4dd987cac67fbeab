package http

import (
	"net/http"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"keys": []any{h.Signer.PublicJWK()}})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	user, _, err := h.Auth.Register(r.Context(), req, netIdentity(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, dto.RegisterResponse{User: user, RequiresEmailVerification: true})
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.Auth.VerifyEmail(r.Context(), req.Token, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	s, err := h.Auth.Login(r.Context(), req.Email, req.Password, netIdentity(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.writeSession(w, r, s)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	s, err := h.Sessions.Refresh(r.Context(), req.RefreshToken, netIdentity(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	h.writeSession(w, r, s)
}

// writeSession mints the access token for s and renders the token pair.
func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, s *dto.Session) {
	var deviceID string
	if s.DeviceID != nil {
		deviceID = s.DeviceID.String()
	}
	access, err := h.Signer.Sign(s.User.ID, deviceID, h.AccessTTL)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.AccessTTL.Seconds()),
		DeviceID:     deviceID,
		User:         s.User,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.Sessions.Logout(r.Context(), req.RefreshToken, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) confirmEmailChange(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if err := h.Account.ConfirmEmailChange(r.Context(), req.Token, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	u, err := h.Account.GetCurrentUser(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req dto.ProfileUpdate
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := principalFrom(r.Context())
	u, err := h.Account.UpdateProfile(r.Context(), p.UserID, req, netIdentity(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := principalFrom(r.Context())
	if err := h.Account.ChangePassword(r.Context(), p.UserID, req, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	var req dto.EmailChangeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := principalFrom(r.Context())
	if err := h.Account.RequestEmailChange(r.Context(), p.UserID, req.NewEmail, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	devices, err := h.Sessions.ListDevices(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.NewDeviceResponses(devices, p.DeviceID))
}

func (h *Handler) revokeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		httpx.WriteError(w, r, domain.ErrInvalidInput)
		return
	}
	p, _ := principalFrom(r.Context())
	if err := h.Sessions.RevokeDevice(r.Context(), p.UserID, deviceID, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutOthers(w http.ResponseWriter, r *http.Request) {
	var req dto.LogoutOthersRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := principalFrom(r.Context())
	if err := h.Sessions.LogoutAllOtherDevices(r.Context(), p.UserID, req.RefreshToken, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) twoFactorSetup(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	setup, err := h.TwoFactor.InitiateSetup(r.Context(), p.UserID, netIdentity(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, setup)
}

func (h *Handler) twoFactorConfirm(w http.ResponseWriter, r *http.Request) {
	var req dto.TwoFactorProof
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	p, _ := principalFrom(r.Context())
	if err := h.TwoFactor.ConfirmSetup(r.Context(), p.UserID, req, netIdentity(r)); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
