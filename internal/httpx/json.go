package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"identity/internal/domain"
	"identity/internal/observability/middleware"
)

const maxBodyBytes = 1 << 20

var ErrBadRequest = errors.New("malformed request body")

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		return fmt.Errorf("%w: trailing data", ErrBadRequest)
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusOf maps an error to the HTTP status for its domain kind.
func StatusOf(err error) int {
	if errors.Is(err, ErrBadRequest) {
		return http.StatusBadRequest
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindExpired:
		return http.StatusGone
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized, domain.KindSuspicious:
		return http.StatusUnauthorized
	case domain.KindLocked:
		return http.StatusLocked
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err with a caller-safe message. Internal faults are
// logged with their full chain.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	body := errorBody{Error: domain.PublicMessage(err), Code: domain.KindOf(err).String()}
	switch {
	case errors.Is(err, ErrBadRequest):
		body = errorBody{Error: ErrBadRequest.Error(), Code: domain.KindValidation.String()}
	case status == http.StatusInternalServerError:
		middleware.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	WriteJSON(w, status, body)
}
