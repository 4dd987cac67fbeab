package security

import "identity/internal/domain"

const MinPasswordLength = 12

// ValidatePassword enforces the account password policy: at least
// MinPasswordLength characters with an upper, a lower, a digit and a symbol.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return &domain.PolicyError{Reason: "password must be at least 12 characters long"}
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	switch {
	case !upper:
		return &domain.PolicyError{Reason: "password must contain at least one uppercase letter"}
	case !lower:
		return &domain.PolicyError{Reason: "password must contain at least one lowercase letter"}
	case !digit:
		return &domain.PolicyError{Reason: "password must contain at least one number"}
	case !symbol:
		return &domain.PolicyError{Reason: "password must contain at least one special character"}
	}
	return nil
}
