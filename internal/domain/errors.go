package domain

import "errors"

// Kind classifies failures so the boundary layer can pick a status without
// inspecting messages.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindConflict
	KindUnauthorized
	KindLocked
	KindSuspicious
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindLocked:
		return "locked"
	case KindSuspicious:
		return "suspicious"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrWeakPassword           = errors.New("password does not meet complexity requirements")
	ErrPasswordReused         = errors.New("new password must differ from the current password")
	ErrSameEmail              = errors.New("new email must differ from the current email")
	ErrTwoFactorProofRequired = errors.New("either totp or email otp is required")
	ErrTwoFactorNotPending    = errors.New("no two-factor setup in progress")

	ErrUserNotFound  = errors.New("user not found")
	ErrTokenNotFound = errors.New("invalid or expired token")

	ErrTokenExpired        = errors.New("token has expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	ErrEmailTaken              = errors.New("user with this email already exists")
	ErrUsernameTaken           = errors.New("username already taken")
	ErrEmailInUse              = errors.New("email address is already in use")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication is already enabled")

	// ErrInvalidRefreshToken must be listed before ErrSuspiciousActivity in
	// kindTable: a replayed refresh token wraps both and is surfaced as the
	// generic one.
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrEmailNotVerified       = errors.New("please verify your email before logging in")
	ErrInvalidRefreshToken    = errors.New("invalid refresh token")
	ErrInvalidSession         = errors.New("invalid session")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidTwoFactorCode   = errors.New("invalid two-factor code")

	ErrAccountLocked = errors.New("account temporarily locked, try again later")

	ErrSuspiciousActivity = errors.New("suspicious activity detected")

	ErrRateLimited = errors.New("too many attempts, slow down")
)

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidInput, KindValidation},
	{ErrWeakPassword, KindValidation},
	{ErrPasswordReused, KindValidation},
	{ErrSameEmail, KindValidation},
	{ErrTwoFactorProofRequired, KindValidation},
	{ErrTwoFactorNotPending, KindValidation},
	{ErrUserNotFound, KindNotFound},
	{ErrTokenNotFound, KindNotFound},
	{ErrTokenExpired, KindExpired},
	{ErrRefreshTokenExpired, KindExpired},
	{ErrEmailTaken, KindConflict},
	{ErrUsernameTaken, KindConflict},
	{ErrEmailInUse, KindConflict},
	{ErrTwoFactorAlreadyEnabled, KindConflict},
	{ErrInvalidCredentials, KindUnauthorized},
	{ErrEmailNotVerified, KindUnauthorized},
	{ErrInvalidRefreshToken, KindUnauthorized},
	{ErrInvalidSession, KindUnauthorized},
	{ErrInvalidCurrentPassword, KindUnauthorized},
	{ErrInvalidTwoFactorCode, KindUnauthorized},
	{ErrAccountLocked, KindLocked},
	{ErrSuspiciousActivity, KindSuspicious},
	{ErrRateLimited, KindRateLimited},
}

// KindOf classifies err. Anything not built from a sentinel above is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			return e.kind
		}
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	for _, e := range kindTable {
		if errors.Is(err, e.err) {
			if e.kind == KindSuspicious {
				return ErrInvalidRefreshToken.Error()
			}
			return e.err.Error()
		}
	}
	return "internal error"
}

// PolicyError carries the first password rule that was not met.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return e.Reason }

func (e *PolicyError) Is(target error) bool { return target == ErrWeakPassword }
