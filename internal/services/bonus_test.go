package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
)

func TestDailyBonusStreak(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingWelcomeBonusEnabled, "false")
	env.set(t, models.SettingDailyBonusAmount, "5")
	env.newUser(t, 100, "alice")

	steps := []struct {
		advance time.Duration
		streak  int64
		balance int64
	}{
		{0, 1, 5},
		{24 * time.Hour, 2, 10},
		// day 3 skipped
		{48 * time.Hour, 1, 15},
		{24 * time.Hour, 2, 20},
	}

	for i, step := range steps {
		env.clock.Advance(step.advance)

		res, err := env.engine.ClaimDailyBonus(ctx, 100)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, int64(5), res.Amount, "step %d", i)
		assert.Equal(t, step.streak, res.Streak, "step %d", i)
		assert.Equal(t, step.balance, res.Balance, "step %d", i)

		acct, err := env.store.GetAccount(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, step.streak, acct.DailyStreak, "step %d", i)
	}

	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(20), stats.CreditsEarned)
}

func TestDailyBonusOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")

	_, err := env.engine.ClaimDailyBonus(ctx, 100)
	require.NoError(t, err)

	env.clock.Advance(4 * time.Hour)
	_, err = env.engine.ClaimDailyBonus(ctx, 100)
	assert.ErrorIs(t, err, models.ErrAlreadyClaimedToday)

	var claimed *models.AlreadyClaimedError
	require.True(t, errors.As(err, &claimed))
	// day1 is 10:00 UTC, so 14:00 leaves ten hours.
	assert.Equal(t, 10*time.Hour, claimed.Remaining)

	assert.Equal(t, int64(4), env.balance(t, 100))
}

func TestDailyBonusConcurrentClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")

	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.ClaimDailyBonus(ctx, 100)
			if err == nil {
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, models.ErrAlreadyClaimedToday)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), ok.Load())
	assert.Equal(t, int64(4), env.balance(t, 100))
}

func TestDailyBonusDisabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")
	env.set(t, models.SettingDailyBonusEnabled, "false")

	_, err := env.engine.ClaimDailyBonus(ctx, 100)
	assert.ErrorIs(t, err, models.ErrBonusDisabled)

	// A disabled bonus does not consume the day's claim.
	env.set(t, models.SettingDailyBonusEnabled, "true")
	_, err = env.engine.ClaimDailyBonus(ctx, 100)
	assert.NoError(t, err)
}

func TestDailyBonusStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")

	status, err := env.engine.BonusStatus(ctx, 100)
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.False(t, status.ClaimedToday)
	assert.Zero(t, status.NextClaimAfter)

	_, err = env.engine.ClaimDailyBonus(ctx, 100)
	require.NoError(t, err)

	status, err = env.engine.BonusStatus(ctx, 100)
	require.NoError(t, err)
	assert.True(t, status.ClaimedToday)
	assert.Equal(t, int64(1), status.Streak)
	assert.Equal(t, 14*time.Hour, status.NextClaimAfter)

	_, err = env.engine.BonusStatus(ctx, 404)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestDailyBonusRequiresAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ClaimDailyBonus(context.Background(), 404)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestDailyBonusFailedCreditKeepsClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ledger := services.NewLedger(env.store, services.NoopBroadcaster, env.clock.Now)
	bonus := services.NewBonusEngine(env.store, ledger, services.NoopBroadcaster, time.UTC, env.clock.Now)

	// No account behind the claim, so the credit step fails after the insert.
	_, err := bonus.ClaimToday(ctx, 404, models.DefaultSettings())
	require.ErrorIs(t, err, models.ErrAccountNotFound)

	_, err = bonus.ClaimToday(ctx, 404, models.DefaultSettings())
	var claimed *models.AlreadyClaimedError
	assert.ErrorAs(t, err, &claimed, "the recorded claim still blocks a second payout today")
}
