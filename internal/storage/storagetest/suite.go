// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"CreateAccountIfAbsent", testCreateAccount},
		{"IncrementGuards", testIncrementGuards},
		{"ConcurrentSpend", testConcurrentSpend},
		{"StreakAndTouch", testStreakAndTouch},
		{"Ban", testBan},
		{"ReferralRewardedOnce", testReferralRewarded},
		{"Stats", testStats},
		{"Searches", testSearches},
		{"Claims", testClaims},
		{"Settings", testSettings},
		{"Aggregates", testAggregates},
		{"ScanAccounts", testScanAccounts},
		{"FindAccountsByName", testFindByName},
		{"PendingReferrals", testPendingReferrals},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func newAccount(id int64, name string, credits int64, joined time.Time, referrer *int64) *models.Account {
	return &models.Account{
		UserID:       id,
		Name:         name,
		Credits:      credits,
		ReferrerID:   referrer,
		JoinedAt:     joined,
		LastActiveAt: joined,
	}
}

func mustCreate(t *testing.T, s storage.Store, acct *models.Account) {
	t.Helper()
	created, err := s.CreateAccountIfAbsent(context.Background(), acct)
	require.NoError(t, err)
	require.True(t, created)
}

func ref(id int64) *int64 { return &id }

func testCreateAccount(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.GetAccount(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	mustCreate(t, s, newAccount(1, "Alice", 3, base, ref(9)))

	created, err := s.CreateAccountIfAbsent(ctx, newAccount(1, "Mallory", 50, base.Add(time.Hour), nil))
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, int64(3), got.Credits)
	require.NotNil(t, got.ReferrerID)
	assert.Equal(t, int64(9), *got.ReferrerID)
	assert.False(t, got.ReferralRewarded)
	assert.WithinDuration(t, base, got.JoinedAt, time.Millisecond)
	assert.False(t, got.Banned)
	assert.Nil(t, got.BanAt)
}

func testIncrementGuards(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustCreate(t, s, newAccount(1, "a", 4, base, nil))

	_, err := s.IncrementAccount(ctx, 2, models.FieldCredits, 1, storage.NoGuard())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	bal, err := s.IncrementAccount(ctx, 1, models.FieldCredits, -5, storage.AtLeast(0))
	assert.ErrorIs(t, err, storage.ErrConditionFailed)
	assert.Equal(t, int64(4), bal)

	bal, err = s.IncrementAccount(ctx, 1, models.FieldCredits, -4, storage.AtLeast(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	bal, err = s.IncrementAccount(ctx, 1, models.FieldCredits, 4, storage.NoGuard())
	require.NoError(t, err)
	assert.Equal(t, int64(4), bal)

	bal, err = s.IncrementAccount(ctx, 1, models.FieldCredits, -1000, storage.ClampAt(0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	got, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Credits)

	total, err := s.SumCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func testConcurrentSpend(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const initial, attempts = 25, 60
	mustCreate(t, s, newAccount(1, "a", initial, base, nil))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		failed int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementAccount(ctx, 1, models.FieldCredits, -1, storage.AtLeast(0))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, storage.ErrConditionFailed)
				failed++
			}
		}()
	}
	wg.Wait()

	got, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, initial, ok)
	assert.Equal(t, attempts-initial, failed)
	assert.Equal(t, int64(initial-ok), got.Credits)
}

func testStreakAndTouch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustCreate(t, s, newAccount(1, "a", 0, base, nil))

	require.NoError(t, s.SetDailyStreak(ctx, 1, 1))
	streak, err := s.IncrementAccount(ctx, 1, models.FieldDailyStreak, 1, storage.NoGuard())
	require.NoError(t, err)
	assert.Equal(t, int64(2), streak)

	later := base.Add(2 * time.Hour)
	require.NoError(t, s.TouchAccount(ctx, 1, later))

	got, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.DailyStreak)
	assert.WithinDuration(t, later, got.LastActiveAt, time.Millisecond)

	assert.ErrorIs(t, s.SetDailyStreak(ctx, 2, 1), storage.ErrNotFound)
	assert.ErrorIs(t, s.TouchAccount(ctx, 2, later), storage.ErrNotFound)
}

func testBan(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustCreate(t, s, newAccount(1, "a", 0, base, nil))

	at := base.Add(time.Hour)
	require.NoError(t, s.SetBanned(ctx, 1, true, at))
	got, err := s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Banned)
	require.NotNil(t, got.BanAt)
	assert.WithinDuration(t, at, *got.BanAt, time.Millisecond)

	require.NoError(t, s.SetBanned(ctx, 1, false, at))
	got, err = s.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.False(t, got.Banned)
	assert.Nil(t, got.BanAt)

	assert.ErrorIs(t, s.SetBanned(ctx, 2, true, at), storage.ErrNotFound)
}

func testReferralRewarded(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustCreate(t, s, newAccount(2, "member", 0, base, ref(1)))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		flips int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			flipped, err := s.MarkReferralRewarded(ctx, 2)
			assert.NoError(t, err)
			if flipped {
				mu.Lock()
				flips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, flips)

	got, err := s.GetAccount(ctx, 2)
	require.NoError(t, err)
	assert.True(t, got.ReferralRewarded)

	_, err = s.MarkReferralRewarded(ctx, 3)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testStats(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustCreate(t, s, newAccount(1, "a", 0, base, nil))

	_, err := s.GetStats(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.IncrementStats(ctx, 1, map[models.StatField]int64{
		models.StatTotalSearches:      1,
		models.StatSuccessfulSearches: 1,
		models.StatCreditsSpent:       1,
	}))
	require.NoError(t, s.IncrementStats(ctx, 1, map[models.StatField]int64{
		models.StatTotalSearches:  1,
		models.StatFailedSearches: 1,
	}))
	require.NoError(t, s.IncrementStats(ctx, 1, map[models.StatField]int64{
		models.StatCreditsEarned: 5,
	}))

	st, err := s.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalSearches)
	assert.Equal(t, int64(1), st.SuccessfulSearches)
	assert.Equal(t, int64(1), st.FailedSearches)
	assert.Equal(t, int64(5), st.CreditsEarned)
	assert.Equal(t, int64(1), st.CreditsSpent)

	sum, err := s.SumStats(ctx, models.StatTotalSearches)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum)
}

func testSearches(t *testing.T, s storage.Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := models.NewSearchRecord(1, "98765432"+string(rune('0'+i)), models.SearchKindMobile, i%2 == 0,
			json.RawMessage(`{"name":"x"}`), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.AppendSearch(ctx, rec))
	}

	n, err := s.CountSearches(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	page, err := s.ListSearches(ctx, 1, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "987654324", page[0].Term)
	assert.Equal(t, "987654323", page[1].Term)
	assert.True(t, page[0].Succeeded)
	assert.JSONEq(t, `{"name":"x"}`, string(page[0].Payload))
	assert.False(t, page[1].Succeeded)
	assert.Empty(t, page[1].Payload)

	page, err = s.ListSearches(ctx, 1, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "987654320", page[0].Term)

	page, err = s.ListSearches(ctx, 2, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testClaims(t *testing.T, s storage.Store) {
	ctx := context.Background()
	claim := &models.DailyClaim{UserID: 1, Day: "2024-05-01", ClaimedAt: base, Amount: 5}

	require.NoError(t, s.InsertClaim(ctx, claim))
	assert.ErrorIs(t, s.InsertClaim(ctx, claim), storage.ErrDuplicate)

	ok, err := s.HasClaim(ctx, 1, "2024-05-01")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasClaim(ctx, 1, "2024-04-30")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertClaim(ctx, &models.DailyClaim{UserID: 2, Day: "2024-05-01", ClaimedAt: base, Amount: 5}))
}

func testSettings(t *testing.T, s storage.Store) {
	ctx := context.Background()

	defaults := models.DefaultSettings()
	got, err := s.InitSettings(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults, *got)

	changed := defaults
	changed.DailyBonusAmount = 7
	require.NoError(t, s.UpdateSetting(ctx, models.SettingDailyBonusAmount, changed))

	// A second init must not overwrite stored values.
	got, err = s.InitSettings(ctx, defaults)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.DailyBonusAmount)

	changed.ResultExpirationEnabled = true
	require.NoError(t, s.UpdateSetting(ctx, models.SettingResultExpirationEnabled, changed))

	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, got.ResultExpirationEnabled)
	assert.Equal(t, int64(7), got.DailyBonusAmount)
	assert.Equal(t, defaults.WelcomeBonusAmount, got.WelcomeBonusAmount)
}

func testAggregates(t *testing.T, s storage.Store) {
	ctx := context.Background()

	mustCreate(t, s, newAccount(1, "old", 10, base.AddDate(0, 0, -40), nil))
	mustCreate(t, s, newAccount(2, "week", 4, base.AddDate(0, 0, -3), ref(1)))
	mustCreate(t, s, newAccount(3, "today", 4, base, ref(1)))
	mustCreate(t, s, newAccount(4, "today2", 0, base.Add(time.Minute), ref(2)))
	require.NoError(t, s.TouchAccount(ctx, 1, base.Add(time.Hour)))

	total, err := s.CountAccounts(ctx, storage.AccountFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	since := base.AddDate(0, 0, -7)
	n, err := s.CountAccounts(ctx, storage.AccountFilter{JoinedSince: &since})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	active := base.Add(30 * time.Minute)
	n, err = s.CountAccounts(ctx, storage.AccountFilter{ActiveSince: &active})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	above := int64(4)
	n, err = s.CountAccounts(ctx, storage.AccountFilter{CreditsAbove: &above})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sum, err := s.SumCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(18), sum)

	top, err := s.TopReferrers(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(1), top[0].UserID)
	assert.Equal(t, int64(2), top[0].Referrals)
	assert.Equal(t, int64(2), top[1].UserID)
	assert.Equal(t, int64(1), top[1].Referrals)
}

func testScanAccounts(t *testing.T, s storage.Store) {
	ctx := context.Background()

	mustCreate(t, s, newAccount(1, "a", 2, base, nil))
	mustCreate(t, s, newAccount(2, "b", 4, base.Add(time.Minute), nil))
	mustCreate(t, s, newAccount(3, "c", 2, base.Add(2*time.Minute), nil))
	mustCreate(t, s, newAccount(4, "d", 1, base.Add(3*time.Minute), nil))
	require.NoError(t, s.IncrementStats(ctx, 3, map[models.StatField]int64{models.StatTotalSearches: 3}))
	require.NoError(t, s.IncrementStats(ctx, 4, map[models.StatField]int64{models.StatTotalSearches: 1}))

	entries, err := s.ScanAccounts(ctx, storage.ScanQuery{SortBy: models.SortByCredits, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 3, 4}, entryIDs(entries))
	assert.Equal(t, int64(1), entries[0].Position)
	require.NotNil(t, entries[0].Stats)
	assert.Equal(t, int64(0), entries[0].Stats.TotalSearches)

	entries, err = s.ScanAccounts(ctx, storage.ScanQuery{SortBy: models.SortByCredits, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, entryIDs(entries))
	assert.Equal(t, int64(2), entries[0].Position)

	entries, err = s.ScanAccounts(ctx, storage.ScanQuery{SortBy: models.SortBySearches, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4, 1, 2}, entryIDs(entries))
	assert.Equal(t, int64(3), entries[0].Stats.TotalSearches)

	entries, err = s.ScanAccounts(ctx, storage.ScanQuery{SortBy: models.SortByJoined, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, entryIDs(entries))

	entries, err = s.ScanAccounts(ctx, storage.ScanQuery{SortBy: models.SortByCredits, Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func entryIDs(entries []*models.LeaderboardEntry) []int64 {
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Account.UserID)
	}
	return ids
}

func testFindByName(t *testing.T, s storage.Store) {
	ctx := context.Background()

	mustCreate(t, s, newAccount(1, "Alice Smith", 0, base, nil))
	mustCreate(t, s, newAccount(2, "bob", 0, base.Add(time.Minute), nil))
	mustCreate(t, s, newAccount(3, "ALICIA", 0, base.Add(2*time.Minute), nil))

	found, err := s.FindAccountsByName(ctx, "alic", 10)
	require.NoError(t, err)
	ids := make([]int64, 0, len(found))
	for _, a := range found {
		ids = append(ids, a.UserID)
	}
	assert.ElementsMatch(t, []int64{1, 3}, ids)

	found, err = s.FindAccountsByName(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testPendingReferrals(t *testing.T, s storage.Store) {
	ctx := context.Background()

	mustCreate(t, s, newAccount(1, "referrer", 0, base.Add(-time.Hour), nil))
	mustCreate(t, s, newAccount(2, "old", 0, base.Add(-30*time.Minute), ref(1)))
	mustCreate(t, s, newAccount(3, "rewarded", 0, base.Add(-20*time.Minute), ref(1)))
	mustCreate(t, s, newAccount(4, "fresh", 0, base, ref(1)))

	_, err := s.MarkReferralRewarded(ctx, 3)
	require.NoError(t, err)

	pending, err := s.PendingReferrals(ctx, base.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].UserID)
}
