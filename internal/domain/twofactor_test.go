package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoFactorStateMachine(t *testing.T) {
	var u User
	require.Equal(t, TwoFactorDisabled, u.TwoFactor().State)

	require.ErrorIs(t, u.PromoteTwoFactor(time.Now()), ErrTwoFactorNotPending)

	require.NoError(t, u.BeginTwoFactor("sealed-1"))
	tf := u.TwoFactor()
	assert.Equal(t, TwoFactorPending, tf.State)
	assert.Equal(t, "sealed-1", tf.Seed)

	// restarting while pending replaces the seed
	require.NoError(t, u.BeginTwoFactor("sealed-2"))
	assert.Equal(t, "sealed-2", u.TwoFactor().Seed)

	now := time.Now()
	require.NoError(t, u.PromoteTwoFactor(now))
	tf = u.TwoFactor()
	assert.Equal(t, TwoFactorEnabled, tf.State)
	assert.Equal(t, "sealed-2", tf.Seed)
	assert.Nil(t, u.TwoFactorTempSecret)
	require.NotNil(t, u.TwoFactorEnabledAt)
	assert.True(t, u.TwoFactorEnabledAt.Equal(now))

	require.ErrorIs(t, u.BeginTwoFactor("sealed-3"), ErrTwoFactorAlreadyEnabled)
	require.ErrorIs(t, u.PromoteTwoFactor(now), ErrTwoFactorAlreadyEnabled)
}

func TestUserIsLocked(t *testing.T) {
	now := time.Now()
	var u User
	assert.False(t, u.IsLocked(now))

	past := now.Add(-time.Minute)
	u.LockedUntil = &past
	assert.False(t, u.IsLocked(now))

	future := now.Add(time.Minute)
	u.LockedUntil = &future
	assert.True(t, u.IsLocked(now))
}

func TestGeoLocationLabel(t *testing.T) {
	var nilGeo *GeoLocation
	assert.Equal(t, "Unknown", nilGeo.Label())

	country, city := "Latvia", "Riga"
	assert.Equal(t, "Latvia", (&GeoLocation{Country: &country}).Label())
	assert.Equal(t, "Riga", (&GeoLocation{Country: &country, City: &city}).Label())
}
