package impl

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.verifiedUser("alice@example.com", "alice")
	s := f.login("alice@example.com", defaultNet)

	next, err := f.sessions.Refresh(ctx, s.RefreshToken, defaultNet)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken, next.RefreshToken)
	assert.Equal(t, *s.DeviceID, *next.DeviceID, "device binding survives rotation")
	assert.Equal(t, s.User.ID, next.User.ID)

	replay, err := f.sessions.Refresh(ctx, s.RefreshToken, defaultNet)
	assert.Nil(t, replay)
	assert.ErrorIs(t, err, domain.ErrSuspiciousActivity)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	assert.Equal(t, "invalid refresh token", domain.PublicMessage(err))

	var entry domain.AuditLog
	require.NoError(t, f.st.DB.Where("action = ?", domain.AuditSuspiciousActivity).First(&entry).Error)
	assert.Nil(t, entry.UserID, "replay is recorded without a user")

	_, err = f.sessions.Refresh(ctx, next.RefreshToken, defaultNet)
	assert.NoError(t, err, "the successor still works")
}

func TestRefreshConcurrentRotation(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser("alice@example.com", "alice")
	s := f.login("alice@example.com", defaultNet)

	const callers = 4
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.sessions.Refresh(context.Background(), s.RefreshToken, defaultNet)
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInvalidRefreshToken):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)
}

func TestRefreshExpired(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser("alice@example.com", "alice")
	s := f.login("alice@example.com", defaultNet)

	f.advance(7*24*time.Hour + time.Second)
	_, err := f.sessions.Refresh(context.Background(), s.RefreshToken, defaultNet)
	assert.ErrorIs(t, err, domain.ErrRefreshTokenExpired)
	assert.Equal(t, domain.KindExpired, domain.KindOf(err))
	assert.Zero(t, f.auditCount(domain.AuditSuspiciousActivity), "aging is not an anomaly")
}

func TestRefreshForDeletedUserConsumesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.verifiedUser("alice@example.com", "alice")
	s := f.login("alice@example.com", defaultNet)
	require.EqualValues(t, 1, f.tokenCount(id, domain.TokenRefresh))

	require.NoError(t, f.st.DB.Delete(&domain.User{}, "id = ?", id).Error)

	_, err := f.sessions.Refresh(ctx, s.RefreshToken, defaultNet)
	assert.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	assert.Zero(t, f.tokenCount(id, domain.TokenRefresh), "orphaned token is spent")
	assert.Zero(t, f.auditCount(domain.AuditSuspiciousActivity))

	_, err = f.sessions.Refresh(ctx, s.RefreshToken, defaultNet)
	assert.ErrorIs(t, err, domain.ErrSuspiciousActivity)
}

func TestRefreshRecordsLoginViaRefresh(t *testing.T) {
	f := newFixture(t)
	f.verifiedUser("alice@example.com", "alice")
	s := f.login("alice@example.com", defaultNet)
	_, err := f.sessions.Refresh(context.Background(), s.RefreshToken, defaultNet)
	require.NoError(t, err)

	var entries []domain.AuditLog
	require.NoError(t, f.st.DB.Where("action = ?", domain.AuditLoginSuccess).Find(&entries).Error)
	require.Len(t, entries, 2)
	var viaRefresh int
	for _, e := range entries {
		if strings.Contains(string(e.Metadata), `"via":"refresh_token"`) {
			viaRefresh++
		}
	}
	assert.Equal(t, 1, viaRefresh)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.verifiedUser("alice@example.com", "alice")
	s := f.login("alice@example.com", defaultNet)

	require.NoError(t, f.sessions.Logout(ctx, s.RefreshToken, defaultNet))
	require.NoError(t, f.sessions.Logout(ctx, s.RefreshToken, defaultNet))
	require.NoError(t, f.sessions.Logout(ctx, "", defaultNet))
	assert.Zero(t, f.tokenCount(id, domain.TokenRefresh))
	assert.EqualValues(t, 1, f.auditCount(domain.AuditLogout))
}

func TestRevokeDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.verifiedUser("alice@example.com", "alice")
	bob := f.verifiedUser("bob@example.com", "bob")
	a1 := f.login("alice@example.com", defaultNet)
	a2 := f.login("alice@example.com", netID("198.51.100.2", "Phone"))
	b1 := f.login("bob@example.com", defaultNet)

	require.NoError(t, f.sessions.RevokeDevice(ctx, alice, *a1.DeviceID, defaultNet))
	_, err := f.sessions.Refresh(ctx, a1.RefreshToken, defaultNet)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	_, err = f.sessions.Refresh(ctx, a2.RefreshToken, defaultNet)
	assert.NoError(t, err)

	require.NoError(t, f.sessions.RevokeDevice(ctx, alice, *a1.DeviceID, defaultNet), "second revoke is a no-op")
	require.NoError(t, f.sessions.RevokeDevice(ctx, alice, *b1.DeviceID, defaultNet), "foreign device looks absent")
	require.NoError(t, f.sessions.RevokeDevice(ctx, alice, uuid.New(), defaultNet))

	devices, err := f.sessions.ListDevices(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, devices, 1, "bob keeps his device")
	assert.EqualValues(t, 1, f.tokenCount(bob, domain.TokenRefresh))
	assert.EqualValues(t, 4, f.auditCount(domain.AuditDeviceRevoked))
}

func TestLogoutAllOtherDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.verifiedUser("alice@example.com", "alice")
	d1 := f.login("alice@example.com", netID("203.0.113.1", "Laptop"))
	d2 := f.login("alice@example.com", netID("203.0.113.2", "Phone"))
	d3 := f.login("alice@example.com", netID("203.0.113.3", "Tablet"))

	require.NoError(t, f.sessions.LogoutAllOtherDevices(ctx, id, d1.RefreshToken, defaultNet))

	devices, err := f.sessions.ListDevices(ctx, id)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, *d1.DeviceID, devices[0].ID)
	assert.EqualValues(t, 1, f.tokenCount(id, domain.TokenRefresh))

	for _, s := range []*dto.Session{d2, d3} {
		_, err := f.sessions.Refresh(ctx, s.RefreshToken, defaultNet)
		assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
	}
	_, err = f.sessions.Refresh(ctx, d1.RefreshToken, defaultNet)
	assert.NoError(t, err)
}

func TestLogoutAllOtherDevicesRequiresOwnSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.verifiedUser("alice@example.com", "alice")
	f.verifiedUser("bob@example.com", "bob")
	a := f.login("alice@example.com", defaultNet)
	b := f.login("bob@example.com", defaultNet)

	err := f.sessions.LogoutAllOtherDevices(ctx, alice, b.RefreshToken, defaultNet)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	err = f.sessions.LogoutAllOtherDevices(ctx, alice, "missing", defaultNet)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = f.sessions.Refresh(ctx, a.RefreshToken, defaultNet)
	assert.NoError(t, err, "failed call changed nothing")
}

func TestListDevicesMostRecentFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.verifiedUser("alice@example.com", "alice")
	f.login("alice@example.com", netID("203.0.113.1", "Old"))
	f.advance(time.Hour)
	recent := f.login("alice@example.com", netID("203.0.113.2", "New"))

	devices, err := f.sessions.ListDevices(ctx, id)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, *recent.DeviceID, devices[0].ID)
}
