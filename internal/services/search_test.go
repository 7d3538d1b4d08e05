package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
)

func TestSearchChargesOnSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.engine.Search(ctx, 100, "alice", " 0911223344 ")
	require.NoError(t, err)
	assert.True(t, out.Charged)
	assert.Equal(t, int64(2), out.Balance)
	assert.Nil(t, out.ExpiresAt)

	assert.Equal(t, "0911223344", out.Record.Term)
	assert.Equal(t, models.SearchKindMobile, out.Record.Kind)
	assert.True(t, out.Record.Succeeded)
	assert.JSONEq(t, `{"name":"someone"}`, string(out.Record.Payload))

	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.SuccessfulSearches)
	assert.Equal(t, int64(1), stats.CreditsSpent)
}

func TestSearchResultExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingResultExpirationEnabled, "true")
	env.set(t, models.SettingResultExpireSeconds, "90")

	out, err := env.engine.Search(ctx, 100, "alice", "123456789012")
	require.NoError(t, err)
	assert.Equal(t, models.SearchKindIDNumber, out.Record.Kind)
	require.NotNil(t, out.ExpiresAt)
	assert.Equal(t, day1.Add(90*time.Second), *out.ExpiresAt)
}

func TestFailedLookupIsFree(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.lookup.result = models.LookupResult{Reason: "No matching records found"}

	_, err := env.engine.Search(ctx, 100, "alice", "0911223344")
	assert.ErrorIs(t, err, models.ErrLookupFailed)

	var lookupErr *models.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "No matching records found", lookupErr.Reason)

	assert.Equal(t, int64(3), env.balance(t, 100))

	page, err := env.engine.GetHistory(ctx, 100, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.False(t, page.Records[0].Succeeded)
	assert.Nil(t, page.Records[0].Payload)

	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.FailedSearches)
	assert.Equal(t, int64(0), stats.CreditsSpent)
}

func TestSearchWithoutCreditsSkipsLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingWelcomeBonusEnabled, "false")

	_, err := env.engine.Search(ctx, 100, "alice", "0911223344")
	assert.ErrorIs(t, err, models.ErrInsufficientCredits)
	assert.Zero(t, env.lookup.Calls())
}

// A lookup that succeeds after the balance was drained elsewhere is not
// paid for, and the attempt is recorded as failed.
func TestSearchLosesDebitRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.set(t, models.SettingWelcomeBonusAmount, "1")
	env.newUser(t, 100, "alice")

	env.lookup.before = func() {
		_, err := env.engine.TrySpendForSearch(ctx, 100)
		assert.NoError(t, err)
	}

	_, err := env.engine.Search(ctx, 100, "alice", "0911223344")
	assert.ErrorIs(t, err, models.ErrInsufficientCredits)
	assert.Equal(t, 1, env.lookup.Calls())
	assert.Equal(t, int64(0), env.balance(t, 100))

	page, err := env.engine.GetHistory(ctx, 100, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.False(t, page.Records[0].Succeeded)

	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.CreditsSpent, "only the competing spend was charged")
	assert.Equal(t, int64(1), stats.FailedSearches)
}

func TestBannedUserCannotSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")
	_, err := env.engine.AdminSetBan(ctx, 100, true)
	require.NoError(t, err)

	_, err = env.engine.Search(ctx, 100, "alice", "0911223344")
	assert.ErrorIs(t, err, models.ErrUserBanned)
	assert.Zero(t, env.lookup.Calls())
}

func TestSearchRejectsEmptyTerm(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Search(context.Background(), 100, "alice", "   ")
	assert.Error(t, err)
	assert.Zero(t, env.lookup.Calls())
}

func TestHistoryPaging(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.newUser(t, 100, "alice")

	for i := 0; i < 12; i++ {
		env.clock.Advance(time.Second)
		_, err := env.engine.RecordSearchOutcome(ctx, 100, fmt.Sprintf("09%08d", i), i%3 != 0, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	first, err := env.engine.GetHistory(ctx, 100, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), first.Total)
	assert.Equal(t, 2, first.Pages)
	assert.Equal(t, 10, first.PageSize)
	require.Len(t, first.Records, 10)
	assert.Equal(t, "0900000011", first.Records[0].Term, "newest first")

	second, err := env.engine.GetHistory(ctx, 100, 2, 10)
	require.NoError(t, err)
	require.Len(t, second.Records, 2)
	assert.Equal(t, "0900000000", second.Records[1].Term)

	stats, err := env.store.GetStats(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalSearches)
	assert.Equal(t, int64(8), stats.SuccessfulSearches)
	assert.Equal(t, int64(4), stats.FailedSearches)

	_, err = env.engine.GetHistory(ctx, 404, 1, 10)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}
