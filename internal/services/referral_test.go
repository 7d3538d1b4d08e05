package services_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
)

func TestReferralRewardsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")

	res, err := env.engine.ProcessReferral(ctx, 2, 1, "newcomer")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Rewarded)
	assert.Equal(t, int64(4), res.ReferrerBalance)
	require.NotNil(t, res.Account.ReferrerID)
	assert.Equal(t, int64(1), *res.Account.ReferrerID)

	res, err = env.engine.ProcessReferral(ctx, 2, 1, "newcomer")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Rewarded)

	assert.Equal(t, int64(4), env.balance(t, 1))
	assert.Equal(t, int64(3), env.balance(t, 2))
	assert.Contains(t, env.events.Types(), models.EventReferralRewarded)
}

func TestReferralExistingMemberNotRewarded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")
	env.newUser(t, 2, "already here")

	res, err := env.engine.ProcessReferral(ctx, 2, 1, "already here")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Rewarded)
	assert.Nil(t, res.Account.ReferrerID)
	assert.Equal(t, int64(3), env.balance(t, 1))
}

func TestReferralConcurrentJoins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")

	var rewarded atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.engine.ProcessReferral(ctx, 2, 1, "newcomer")
			if assert.NoError(t, err) && res.Rewarded {
				rewarded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), rewarded.Load())
	assert.Equal(t, int64(4), env.balance(t, 1))
}

func TestReferralPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")

	_, err := env.engine.ProcessReferral(ctx, 1, 1, "referrer")
	assert.ErrorIs(t, err, models.ErrSelfReferral)

}

func TestReferralUnknownReferrerDefersReward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.engine.ProcessReferral(ctx, 2, 99, "newcomer")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Rewarded)

	member, err := env.store.GetAccount(ctx, 2)
	require.NoError(t, err, "the member is registered even when the referrer is unknown")
	assert.Equal(t, int64(3), member.Credits)
	require.NotNil(t, member.ReferrerID)
	assert.Equal(t, int64(99), *member.ReferrerID)
	assert.False(t, member.ReferralRewarded)

	env.clock.Advance(10 * time.Minute)
	paid, err := env.engine.Referrals().Reconcile(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, paid, "nothing to pay while the referrer has no account")

	env.newUser(t, 99, "late referrer")
	paid, err = env.engine.Referrals().Reconcile(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	assert.Equal(t, int64(4), env.balance(t, 99))
}

func TestReferralReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")

	// A member stored with a referrer but whose reward step never ran.
	referrer := int64(1)
	member := models.NewAccount(2, "orphan", &referrer, models.DefaultSettings(), env.clock.Now())
	created, err := env.store.CreateAccountIfAbsent(ctx, member)
	require.NoError(t, err)
	require.True(t, created)

	referrals := env.engine.Referrals()

	paid, err := referrals.Reconcile(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, paid, "members inside the grace period are left alone")

	env.clock.Advance(10 * time.Minute)
	paid, err = referrals.Reconcile(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
	assert.Equal(t, int64(4), env.balance(t, 1))

	paid, err = referrals.Reconcile(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, paid)
	assert.Equal(t, int64(4), env.balance(t, 1))
}

func TestReferralSweepSkipsRewardedMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "referrer")

	_, err := env.engine.ProcessReferral(ctx, 2, 1, "newcomer")
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	paid, err := env.engine.Referrals().Reconcile(ctx, 5*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, paid)
	assert.Equal(t, int64(4), env.balance(t, 1))
}
