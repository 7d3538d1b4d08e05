package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
)

func seedBalances(t *testing.T, env *testEnv, balances map[int64]int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []int64{1, 2, 3, 4} {
		want, ok := balances[id]
		if !ok {
			continue
		}
		env.newUser(t, id, "user")
		_, err := env.engine.AdminAdjustCredits(ctx, id, want-3)
		require.NoError(t, err)
	}
}

func TestRankTiesShareAGap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedBalances(t, env, map[int64]int64{1: 9, 2: 5, 3: 5, 4: 1})

	want := map[int64]int64{1: 1, 2: 2, 3: 2, 4: 4}
	for id, rank := range want {
		got, err := env.engine.GetRank(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, rank, got, "user %d", id)
	}

	_, err := env.engine.GetRank(ctx, 404)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestLeaderboardByCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedBalances(t, env, map[int64]int64{1: 2, 2: 7, 3: 7, 4: 0})

	entries, err := env.engine.GetLeaderboard(ctx, 3, models.SortByCredits)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	ids := []int64{entries[0].Account.UserID, entries[1].Account.UserID, entries[2].Account.UserID}
	assert.Equal(t, []int64{2, 3, 1}, ids, "ties keep join order")
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Position)
		assert.NotNil(t, e.Stats)
	}
}

func TestLeaderboardBySearchesWithIdleAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "idle")
	env.newUser(t, 2, "busy")
	env.newUser(t, 3, "idle too")

	_, err := env.engine.RecordSearchOutcome(ctx, 2, "0911223344", true, nil)
	require.NoError(t, err)

	entries, err := env.engine.GetLeaderboard(ctx, 0, models.SortBySearches)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), entries[0].Account.UserID)
	assert.Equal(t, int64(1), entries[0].Stats.TotalSearches)
	assert.Equal(t, int64(1), entries[1].Account.UserID)
	assert.Equal(t, int64(0), entries[1].Stats.TotalSearches)
}

func TestLeaderboardEmpty(t *testing.T) {
	env := newTestEnv(t)

	entries, err := env.engine.GetLeaderboard(context.Background(), 10, models.SortBySearches)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 1, "Referrer")

	_, err := env.engine.ProcessReferral(ctx, 2, 1, "Member")
	require.NoError(t, err)

	profile, err := env.engine.GetProfile(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Member", profile.Account.Name)
	assert.Equal(t, "Referrer (1)", profile.ReferrerName)
	assert.Equal(t, int64(2), profile.Rank)
	assert.Equal(t, int64(3), profile.Stats.CreditsEarned)

	profile, err = env.engine.GetProfile(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, profile.ReferrerName)
	assert.Equal(t, int64(1), profile.Rank)

	_, err = env.engine.GetProfile(ctx, 404)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestProfileWithoutStats(t *testing.T) {
	env := newTestEnv(t)
	env.set(t, models.SettingWelcomeBonusEnabled, "false")
	env.newUser(t, 1, "fresh")

	profile, err := env.engine.GetProfile(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, profile.Stats)
	assert.Zero(t, profile.Stats.TotalSearches)
}

func TestAnalyticsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Joined 40, 10 and 3 days ago, then one hour ago.
	env.clock.Advance(-40 * 24 * time.Hour)
	env.newUser(t, 1, "founder")
	env.clock.Advance(30 * 24 * time.Hour)
	_, err := env.engine.ProcessReferral(ctx, 2, 1, "second")
	require.NoError(t, err)
	env.clock.Advance(7 * 24 * time.Hour)
	_, err = env.engine.ProcessReferral(ctx, 3, 1, "third")
	require.NoError(t, err)
	env.clock.Advance(3*24*time.Hour - time.Hour)
	_, err = env.engine.ProcessReferral(ctx, 4, 3, "fourth")
	require.NoError(t, err)
	env.clock.Advance(time.Hour)

	_, err = env.engine.RecordSearchOutcome(ctx, 4, "0911223344", true, nil)
	require.NoError(t, err)
	_, err = env.engine.RecordSearchOutcome(ctx, 4, "0911223344", false, nil)
	require.NoError(t, err)

	a, err := env.engine.AdminGetAnalytics(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(4), a.TotalUsers)
	assert.Equal(t, int64(1), a.Active24h)
	assert.Equal(t, int64(2), a.TotalSearches)
	assert.Equal(t, int64(1), a.SuccessfulSearches)
	// Four welcome bonuses plus three referral rewards.
	assert.Equal(t, int64(15), a.CreditsInCirculation)

	assert.Equal(t, models.WindowCounts{Today: 1, Week: 2, Month: 3}, a.Growth)
	assert.Equal(t, models.WindowCounts{Today: 1, Week: 2, Month: 3}, a.Active)

	require.Len(t, a.TopReferrers, 2)
	assert.Equal(t, models.ReferrerCount{UserID: 1, Name: "founder", Referrals: 2}, a.TopReferrers[0])
	assert.Equal(t, models.ReferrerCount{UserID: 3, Name: "third", Referrals: 1}, a.TopReferrers[1])
	assert.Equal(t, day1, a.GeneratedAt)
}
