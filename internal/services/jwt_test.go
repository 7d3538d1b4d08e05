package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/services"
)

func TestJWTRoles(t *testing.T) {
	clock := newFakeClock(day1)
	jwtService := services.NewJWTService("test-secret", time.Hour, "adapter-key", "admin-key", clock.Now)

	role, err := jwtService.RoleForKey("admin-key")
	require.NoError(t, err)
	assert.Equal(t, services.RoleAdmin, role)

	role, err = jwtService.RoleForKey("adapter-key")
	require.NoError(t, err)
	assert.Equal(t, services.RoleAdapter, role)

	_, err = jwtService.RoleForKey("guess")
	assert.ErrorIs(t, err, services.ErrInvalidAPIKey)
	_, err = jwtService.RoleForKey("")
	assert.ErrorIs(t, err, services.ErrInvalidAPIKey)
}

func TestJWTRoundTripAndExpiry(t *testing.T) {
	clock := newFakeClock(day1)
	jwtService := services.NewJWTService("test-secret", time.Hour, "adapter-key", "admin-key", clock.Now)

	token, expiresAt, err := jwtService.GenerateToken(services.RoleAdmin, 900)
	require.NoError(t, err)
	assert.Equal(t, day1.Add(time.Hour), expiresAt)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, services.RoleAdmin, claims.Role)
	assert.Equal(t, int64(900), claims.AdminID)
	assert.NotEmpty(t, claims.SessionID)

	other := services.NewJWTService("other-secret", time.Hour, "", "", clock.Now)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	clock.Advance(2 * time.Hour)
	_, err = jwtService.ValidateToken(token)
	assert.Error(t, err)
}
