package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	env := newTestEnv(t)
	scheduler := services.NewScheduler(env.engine.Referrals(), env.engine.SettingsService(), time.Minute)

	assert.Error(t, scheduler.Register("every now and then", ""))
	assert.NoError(t, scheduler.Register("@every 10m", "@every 1m"))
}

func TestSchedulerJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")

	referrer := int64(1)
	member := models.NewAccount(2, "orphan", &referrer, models.DefaultSettings(), env.clock.Now())
	_, err := env.store.CreateAccountIfAbsent(ctx, member)
	require.NoError(t, err)

	require.NoError(t, env.store.UpdateSetting(ctx, models.SettingDailyBonusAmount, models.Settings{DailyBonusAmount: 9}))

	env.clock.Advance(time.Hour)
	scheduler := services.NewScheduler(env.engine.Referrals(), env.engine.SettingsService(), time.Minute)
	scheduler.ReconcileReferrals()
	scheduler.RefreshSettings()

	assert.Equal(t, int64(4), env.balance(t, 1))
	assert.Equal(t, int64(9), env.engine.GetSettings().DailyBonusAmount)

	scheduler.Start()
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	scheduler.Stop(stopCtx)
}
