package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

func TestSettingsDefaults(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, models.DefaultSettings(), env.engine.GetSettings())

	stored, err := env.store.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), *stored)
}

func TestSettingsUpdateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		key   models.SettingKey
		value string
	}{
		{models.SettingDailyBonusAmount, "0"},
		{models.SettingDailyBonusAmount, "51"},
		{models.SettingWelcomeBonusAmount, "many"},
		{models.SettingDailyBonusEnabled, "perhaps"},
		{models.SettingResultExpireSeconds, "-5"},
		{models.SettingKey("unknown"), "1"},
	}
	for _, tc := range cases {
		_, err := env.engine.UpdateSetting(ctx, tc.key, tc.value)
		assert.ErrorIs(t, err, models.ErrInvalidSettingValue, "%s=%s", tc.key, tc.value)
	}
	assert.Equal(t, models.DefaultSettings(), env.engine.GetSettings())

	updated, err := env.engine.UpdateSetting(ctx, models.SettingDailyBonusAmount, "50")
	require.NoError(t, err)
	assert.Equal(t, int64(50), updated.DailyBonusAmount)

	stored, err := env.store.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.DailyBonusAmount)
	assert.Contains(t, env.events.Types(), models.EventSettingChanged)
}

func TestSettingsRefreshSeesOtherInstances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := services.NewSettingsService(env.store, services.NoopBroadcaster, env.clock.Now)
	_, err := other.Init(ctx)
	require.NoError(t, err)

	_, err = other.Update(ctx, models.SettingWelcomeBonusAmount, "10")
	require.NoError(t, err)
	assert.Equal(t, int64(3), env.engine.GetSettings().WelcomeBonusAmount)

	require.NoError(t, env.engine.SettingsService().Refresh(ctx))
	assert.Equal(t, int64(10), env.engine.GetSettings().WelcomeBonusAmount)

	acct := env.newUser(t, 100, "alice")
	assert.Equal(t, int64(10), acct.Credits)
}

func TestSettingsInitKeepsStoredValues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingDailyBonusAmount, "7")

	restarted := services.NewSettingsService(env.store, services.NoopBroadcaster, env.clock.Now)
	settings, err := restarted.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), settings.DailyBonusAmount)
}
