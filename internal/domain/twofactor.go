package domain

import "time"

type TwoFactorState uint8

const (
	TwoFactorDisabled TwoFactorState = iota
	TwoFactorPending
	TwoFactorEnabled
)

func (s TwoFactorState) String() string {
	switch s {
	case TwoFactorPending:
		return "pending"
	case TwoFactorEnabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// TwoFactor is the enrollment state of a user. Seed is the encrypted TOTP
// seed that belongs to the state: the pending seed while Pending, the active
// seed while Enabled, empty while Disabled.
type TwoFactor struct {
	State TwoFactorState
	Seed  string
}

// TwoFactor derives the tagged state from the persisted columns.
func (u *User) TwoFactor() TwoFactor {
	switch {
	case u.IsTwoFactorEnabled && u.TwoFactorSecret != nil:
		return TwoFactor{State: TwoFactorEnabled, Seed: *u.TwoFactorSecret}
	case u.IsTwoFactorEnabled:
		// enabled without a seed is not a usable state; treat as enabled so
		// that enrollment cannot be restarted over it.
		return TwoFactor{State: TwoFactorEnabled}
	case u.TwoFactorTempSecret != nil:
		return TwoFactor{State: TwoFactorPending, Seed: *u.TwoFactorTempSecret}
	default:
		return TwoFactor{State: TwoFactorDisabled}
	}
}

// BeginTwoFactor moves Disabled or Pending to Pending with a fresh sealed seed.
func (u *User) BeginTwoFactor(sealedSeed string) error {
	if u.TwoFactor().State == TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	u.TwoFactorTempSecret = &sealedSeed
	return nil
}

// PromoteTwoFactor moves Pending to Enabled.
func (u *User) PromoteTwoFactor(now time.Time) error {
	tf := u.TwoFactor()
	switch tf.State {
	case TwoFactorEnabled:
		return ErrTwoFactorAlreadyEnabled
	case TwoFactorDisabled:
		return ErrTwoFactorNotPending
	}
	seed := tf.Seed
	u.TwoFactorSecret = &seed
	u.TwoFactorTempSecret = nil
	u.IsTwoFactorEnabled = true
	u.TwoFactorEnabledAt = &now
	return nil
}
