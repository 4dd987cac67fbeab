package impl

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/events"
	"identity/internal/notify"
	"identity/internal/observability/metrics"
	"identity/internal/security"
	"identity/internal/store"

	"github.com/google/uuid"
)

const emailOTPDigits = 6

type TwoFactorServiceImpl struct {
	base
}

func NewTwoFactorServiceImpl(d Deps) *TwoFactorServiceImpl {
	return &TwoFactorServiceImpl{base: newBase(d)}
}

// otpHash binds an emailed code to its owner. Six-digit codes repeat across
// users, and the ledger hash column is unique.
func otpHash(userID domain.UserID, code string) string {
	return security.HashSecret(userID.String() + ":" + code)
}

// InitiateSetup starts (or restarts) enrollment: a fresh sealed TOTP seed is
// stored as pending and a one-time code is mailed as the alternative proof.
func (t *TwoFactorServiceImpl) InitiateSetup(ctx context.Context, userID domain.UserID, net domain.NetworkIdentity) (*dto.TwoFactorSetup, error) {
	result := "failure"
	defer func() {
		metrics.TwoFactorTotal.WithLabelValues("initiate", result).Inc()
	}()
	net = cleanNet(net)

	user, err := getUser(ctx, t.Store, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactor().State == domain.TwoFactorEnabled {
		return nil, domain.ErrTwoFactorAlreadyEnabled
	}

	enrollment, err := t.TOTP.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp seed: %w", err)
	}
	sealed, err := t.Cipher.Encrypt(enrollment.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal totp seed: %w", err)
	}
	code, err := security.NewNumericCode(emailOTPDigits)
	if err != nil {
		return nil, fmt.Errorf("generate email otp: %w", err)
	}

	err = t.Store.WithTx(ctx, func(tx *store.Store) error {
		u, err := getUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := u.BeginTwoFactor(sealed); err != nil {
			return err
		}
		if err := tx.Users().SaveTwoFactor(ctx, u); err != nil {
			return fmt.Errorf("save pending seed: %w", err)
		}
		if _, err := tx.Tokens().DeleteByUserAndType(ctx, userID, domain.TokenTwoFactorEmailOTP); err != nil {
			return fmt.Errorf("drop previous otp: %w", err)
		}
		now := t.clock()
		return tx.Tokens().Create(ctx, &domain.SecurityToken{
			ID:        uuid.New(),
			UserID:    userID,
			Email:     u.Email,
			TokenHash: otpHash(userID, code),
			Type:      domain.TokenTwoFactorEmailOTP,
			ExpiresAt: now.Add(t.Policy.TwoFactorOTPTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	result = "success"

	t.send(ctx, notify.Message{
		Kind: notify.KindTwoFactorOTP,
		To:   user.Email,
		Data: map[string]any{"Username": displayName(user), "Code": code},
	})
	t.record(ctx, &userID, domain.AuditTwoFactorSetupStarted, net, events.TwoFactorSetupStarted{EmailOTPSent: true})

	return &dto.TwoFactorSetup{
		OTPAuthURL: enrollment.URL,
		QRCode:     enrollment.QRCode,
		ManualSeed: enrollment.Secret,
	}, nil
}

// ConfirmSetup promotes the pending seed once the user proves possession of
// either the authenticator or the mailbox. A presented email code is always
// consumed; a rejected proof leaves the pending seed in place for a retry.
func (t *TwoFactorServiceImpl) ConfirmSetup(ctx context.Context, userID domain.UserID, proof dto.TwoFactorProof, net domain.NetworkIdentity) error {
	result := "failure"
	defer func() {
		metrics.TwoFactorTotal.WithLabelValues("confirm", result).Inc()
	}()
	net = cleanNet(net)

	user, err := getUser(ctx, t.Store, userID)
	if err != nil {
		return err
	}
	tf := user.TwoFactor()
	switch tf.State {
	case domain.TwoFactorEnabled:
		return domain.ErrTwoFactorAlreadyEnabled
	case domain.TwoFactorDisabled:
		return domain.ErrTwoFactorNotPending
	}

	emailOTP := strings.TrimSpace(proof.EmailOTP)
	totpCode := strings.TrimSpace(proof.TOTP)
	var method, reason string
	switch {
	case emailOTP != "":
		method = "email_otp"
		reason, err = t.checkEmailOTP(ctx, userID, emailOTP)
	case totpCode != "":
		method = "totp"
		var seed string
		seed, err = t.Cipher.Decrypt(tf.Seed)
		if err != nil {
			err = fmt.Errorf("open totp seed: %w", err)
		} else if !t.TOTP.Validate(totpCode, seed, t.clock()) {
			reason = "invalid_totp"
		}
	default:
		return domain.ErrTwoFactorProofRequired
	}
	if err != nil {
		return err
	}
	if reason != "" {
		t.record(ctx, &userID, domain.AuditTwoFactorEnableFailed, net, events.TwoFactorEnableFailed{Method: method, Reason: reason})
		return domain.ErrInvalidTwoFactorCode
	}

	err = t.Store.WithTx(ctx, func(tx *store.Store) error {
		return t.promotePending(ctx, tx, userID, tf.Seed)
	})
	if err != nil {
		return err
	}
	result = "success"

	t.send(ctx, notify.Message{
		Kind: notify.KindTwoFactorEnabled,
		To:   user.Email,
		Data: map[string]any{"Username": displayName(user)},
	})
	t.record(ctx, &userID, domain.AuditTwoFactorEnabled, net, events.TwoFactorEnabled{Method: method})
	return nil
}

// promotePending enables the enrollment whose sealed seed was just proven.
// A setup restarted since then leaves a different seed pending and fails.
func (t *TwoFactorServiceImpl) promotePending(ctx context.Context, tx *store.Store, userID domain.UserID, sealedSeed string) error {
	u, err := getUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if tf := u.TwoFactor(); tf.State == domain.TwoFactorPending && tf.Seed != sealedSeed {
		return domain.ErrTwoFactorNotPending
	}
	if err := u.PromoteTwoFactor(t.clock()); err != nil {
		return err
	}
	if err := tx.Users().SaveTwoFactor(ctx, u); err != nil {
		return fmt.Errorf("enable two-factor: %w", err)
	}
	if _, err := tx.Tokens().DeleteByUserAndType(ctx, userID, domain.TokenTwoFactorEmailOTP); err != nil {
		return fmt.Errorf("drop otp: %w", err)
	}
	return nil
}

// checkEmailOTP consumes the user's latest email code and compares it with
// code. A non-empty reason means the proof was rejected.
func (t *TwoFactorServiceImpl) checkEmailOTP(ctx context.Context, userID domain.UserID, code string) (string, error) {
	tok, err := t.Store.Tokens().ConsumeLatestForUser(ctx, userID, domain.TokenTwoFactorEmailOTP)
	if errors.Is(err, store.ErrRecordNotFound) {
		return "otp_not_found", nil
	}
	if err != nil {
		return "", fmt.Errorf("consume email otp: %w", err)
	}
	if tok.IsExpired(t.clock()) {
		return "otp_expired", nil
	}
	if subtle.ConstantTimeCompare([]byte(tok.TokenHash), []byte(otpHash(userID, code))) != 1 {
		return "otp_mismatch", nil
	}
	return "", nil
}
