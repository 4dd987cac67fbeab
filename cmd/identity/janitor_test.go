package main

import (
	"context"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeOnce(t *testing.T) {
	st := storetest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := &domain.User{
		Email: "a@example.com", Username: "ada", PasswordHash: "hash",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.Users().Create(ctx, u))

	for i, exp := range []time.Time{now.Add(-time.Minute), now.Add(-time.Hour), now.Add(time.Hour)} {
		require.NoError(t, st.Tokens().Create(ctx, &domain.SecurityToken{
			UserID:    u.ID,
			Email:     u.Email,
			TokenHash: string(rune('a' + i)),
			Type:      domain.TokenEmailVerify,
			ExpiresAt: exp,
			CreatedAt: now.Add(-2 * time.Hour),
		}))
	}

	assert.EqualValues(t, 2, purgeOnce(ctx, st, now))
	assert.EqualValues(t, 0, purgeOnce(ctx, st, now))
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	st := storetest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runJanitor(ctx, st, time.Millisecond, time.Minute, time.Now)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestReleasePendingEmails(t *testing.T) {
	st := storetest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, c := range []struct {
		email, username, pending string
		requested                time.Time
	}{
		{"a@example.com", "ada", "stale@example.com", now.Add(-time.Hour)},
		{"b@example.com", "bob", "fresh@example.com", now.Add(-time.Minute)},
	} {
		u := &domain.User{Email: c.email, Username: c.username, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
		require.NoError(t, st.Users().Create(ctx, u))
		require.NoError(t, st.Users().SetPendingEmail(ctx, u.ID, c.pending, c.requested))
	}

	assert.EqualValues(t, 1, releasePendingEmails(ctx, st, now.Add(-10*time.Minute)))

	a, err := st.Users().GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, a.PendingEmail)
	assert.Nil(t, a.PendingEmailRequestedAt)
	b, err := st.Users().GetByEmail(ctx, "b@example.com")
	require.NoError(t, err)
	require.NotNil(t, b.PendingEmail)
	assert.Equal(t, "fresh@example.com", *b.PendingEmail)
}
