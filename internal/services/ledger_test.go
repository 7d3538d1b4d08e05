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

func TestWelcomeBonusThenSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acct := env.newUser(t, 100, "alice")
	assert.Equal(t, int64(3), acct.Credits)

	for want := int64(2); want >= 0; want-- {
		balance, err := env.engine.TrySpendForSearch(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, want, balance)
	}

	_, err := env.engine.TrySpendForSearch(ctx, 100)
	assert.ErrorIs(t, err, models.ErrInsufficientCredits)
	assert.Equal(t, int64(0), env.balance(t, 100))

	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.CreditsEarned)
	assert.Equal(t, int64(3), stats.CreditsSpent)
}

func TestWelcomeBonusDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, models.SettingWelcomeBonusEnabled, "false")

	acct := env.newUser(t, 100, "alice")
	assert.Equal(t, int64(0), acct.Credits)
}

func TestConcurrentSpendNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingWelcomeBonusAmount, "20")
	env.newUser(t, 100, "alice")

	const attempts = 64
	var ok, insufficient atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.TrySpendForSearch(ctx, 100)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, models.ErrInsufficientCredits):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), ok.Load())
	assert.Equal(t, int64(attempts-20), insufficient.Load())
	assert.Equal(t, int64(20)-ok.Load(), env.balance(t, 100))
}

func TestAdminAdjustClampsAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingWelcomeBonusAmount, "4")
	env.newUser(t, 100, "alice")

	acct, err := env.engine.AdminAdjustCredits(ctx, 100, -1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Credits)

	acct, err = env.engine.AdminAdjustCredits(ctx, 100, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), acct.Credits)

	// Moderation adjustments stay out of earn/spend attribution.
	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.CreditsEarned)
	assert.Equal(t, int64(0), stats.CreditsSpent)

	assert.Contains(t, env.events.Types(), models.EventBalanceAdjusted)
}

func TestLedgerUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ledger := services.NewLedger(env.store, services.NoopBroadcaster, env.clock.Now)

	_, err := ledger.Credit(ctx, 404, 1, services.ReasonAdmin)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	_, err = ledger.TrySpend(ctx, 404, 1)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	_, err = ledger.AdminAdjust(ctx, 404, 5)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestLedgerRejectsNonPositiveAmounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")
	ledger := services.NewLedger(env.store, services.NoopBroadcaster, env.clock.Now)

	_, err := ledger.Credit(ctx, 100, 0, services.ReasonAdmin)
	assert.Error(t, err)

	_, err = ledger.TrySpend(ctx, 100, -1)
	assert.Error(t, err)
	assert.Equal(t, int64(3), env.balance(t, 100))
}

func TestBannedUserCannotSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")

	acct, err := env.engine.AdminSetBan(ctx, 100, true)
	require.NoError(t, err)
	assert.True(t, acct.Banned)
	assert.NotNil(t, acct.BanAt)

	_, err = env.engine.TrySpendForSearch(ctx, 100)
	assert.ErrorIs(t, err, models.ErrUserBanned)
	assert.Equal(t, int64(3), env.balance(t, 100))

	acct, err = env.engine.AdminSetBan(ctx, 100, false)
	require.NoError(t, err)
	assert.False(t, acct.Banned)
	assert.Nil(t, acct.BanAt)

	_, err = env.engine.TrySpendForSearch(ctx, 100)
	assert.NoError(t, err)
}

func TestFirstContactIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var created atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := env.engine.OnFirstContact(ctx, 100, "alice")
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), created.Load())
	assert.Equal(t, int64(3), env.balance(t, 100))
}

func TestMarkActiveUpdatesLastActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")

	env.clock.Advance(2 * time.Hour)
	_, _, err := env.engine.OnFirstContact(ctx, 100, "alice")
	require.NoError(t, err)
	env.engine.Wait()

	acct, err := env.store.GetAccount(ctx, 100)
	require.NoError(t, err)
	assert.True(t, acct.LastActiveAt.After(acct.JoinedAt))
}
