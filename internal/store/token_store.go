package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TokenStore struct{ db *gorm.DB }

func (s *Store) Tokens() *TokenStore { return &TokenStore{db: s.DB} }

func (ts *TokenStore) Create(ctx context.Context, t *domain.SecurityToken) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return translate(ts.db.WithContext(ctx).Create(t).Error)
}

// Find looks a token up without consuming it.
func (ts *TokenStore) Find(ctx context.Context, hash string, typ domain.TokenType) (*domain.SecurityToken, error) {
	var t domain.SecurityToken
	if err := ts.db.WithContext(ctx).First(&t, "token_hash = ? AND type = ?", hash, typ).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// Consume finds and deletes the token in one step. Of several concurrent
// callers presenting the same hash only the one whose DELETE removed the row
// gets it back; the rest see ErrRecordNotFound. Expired rows are still
// returned so callers can tell "expired" from "never existed".
func (ts *TokenStore) Consume(ctx context.Context, hash string, typ domain.TokenType) (*domain.SecurityToken, error) {
	t, err := ts.Find(ctx, hash, typ)
	if err != nil {
		return nil, err
	}
	return ts.claim(ctx, t)
}

// ConsumeLatestForUser consumes the most recent token of typ owned by userID.
func (ts *TokenStore) ConsumeLatestForUser(ctx context.Context, userID domain.UserID, typ domain.TokenType) (*domain.SecurityToken, error) {
	var t domain.SecurityToken
	err := ts.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, typ).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		return nil, translate(err)
	}
	return ts.claim(ctx, &t)
}

func (ts *TokenStore) claim(ctx context.Context, t *domain.SecurityToken) (*domain.SecurityToken, error) {
	res := ts.db.WithContext(ctx).Where("id = ?", t.ID).Delete(&domain.SecurityToken{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, ErrRecordNotFound
	}
	return t, nil
}

func (ts *TokenStore) DeleteByUserAndType(ctx context.Context, userID domain.UserID, typ domain.TokenType) (int64, error) {
	res := ts.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, typ).
		Delete(&domain.SecurityToken{})
	return res.RowsAffected, res.Error
}

func (ts *TokenStore) DeleteRefreshForDevice(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID) (int64, error) {
	res := ts.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND device_id = ?", userID, domain.TokenRefresh, deviceID).
		Delete(&domain.SecurityToken{})
	return res.RowsAffected, res.Error
}

// DeleteRefreshExceptDevice removes every refresh token of the user that is
// not bound to keep. With keep nil all of them go.
func (ts *TokenStore) DeleteRefreshExceptDevice(ctx context.Context, userID domain.UserID, keep *domain.DeviceID) (int64, error) {
	q := ts.db.WithContext(ctx).Where("user_id = ? AND type = ?", userID, domain.TokenRefresh)
	if keep != nil {
		q = q.Where("device_id IS NULL OR device_id <> ?", *keep)
	}
	res := q.Delete(&domain.SecurityToken{})
	return res.RowsAffected, res.Error
}

// PurgeExpired removes tokens nobody redeemed in time.
func (ts *TokenStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := ts.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.SecurityToken{})
	return res.RowsAffected, res.Error
}
