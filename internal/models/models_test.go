package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
)

func TestNewAccountWelcomeBonus(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	settings := models.DefaultSettings()
	settings.WelcomeBonusAmount = 3
	acct := models.NewAccount(123456789, "alice", nil, settings, now)
	assert.Equal(t, int64(3), acct.Credits)
	assert.Equal(t, now, acct.JoinedAt)
	assert.False(t, acct.HasReferrer())

	settings.WelcomeBonusEnabled = false
	ref := int64(42)
	acct = models.NewAccount(123456789, "alice", &ref, settings, now)
	assert.Equal(t, int64(0), acct.Credits)
	assert.True(t, acct.HasReferrer())
}

func TestClassifyTerm(t *testing.T) {
	term, kind, err := models.ClassifyTerm("  123412341234 ")
	require.NoError(t, err)
	assert.Equal(t, "123412341234", term)
	assert.Equal(t, models.SearchKindIDNumber, kind)

	_, kind, err = models.ClassifyTerm("9876543210")
	require.NoError(t, err)
	assert.Equal(t, models.SearchKindMobile, kind)

	_, _, err = models.ClassifyTerm("   ")
	assert.Error(t, err)
}

func TestFailedSearchRecordDropsPayload(t *testing.T) {
	rec := models.NewSearchRecord(1, "9876543210", models.SearchKindMobile, false, []byte(`{"a":1}`), time.Now())
	assert.Nil(t, rec.Payload)
	assert.NotEmpty(t, rec.ID)
}

func TestSettingsSet(t *testing.T) {
	s := models.DefaultSettings()

	require.NoError(t, s.Set(models.SettingDailyBonusAmount, "50"))
	assert.Equal(t, int64(50), s.DailyBonusAmount)

	require.NoError(t, s.Set(models.SettingWelcomeBonusEnabled, "false"))
	assert.False(t, s.WelcomeBonusEnabled)

	for _, bad := range []string{"0", "51", "-3", "ten"} {
		err := s.Set(models.SettingWelcomeBonusAmount, bad)
		assert.ErrorIs(t, err, models.ErrInvalidSettingValue, bad)
	}
	assert.Equal(t, int64(3), s.WelcomeBonusAmount)

	err := s.Set(models.SettingResultExpireSeconds, "0")
	var settingErr *models.SettingError
	require.True(t, errors.As(err, &settingErr))
	assert.Equal(t, models.SettingResultExpireSeconds, settingErr.Key)

	assert.NoError(t, models.DefaultSettings().Validate())
}

func TestResultExpiry(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := models.DefaultSettings()
	assert.Nil(t, s.ResultExpiry(at))

	s.ResultExpirationEnabled = true
	s.ResultExpireSeconds = 90
	exp := s.ResultExpiry(at)
	require.NotNil(t, exp)
	assert.Equal(t, at.Add(90*time.Second), *exp)
}

func TestDayBoundaries(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	at := time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC) // 01:30 on May 2 in loc

	assert.Equal(t, "2024-05-02", models.DayKey(at, loc))
	assert.Equal(t, "2024-05-01", models.DayKey(at, time.UTC))
	assert.Equal(t, 22*time.Hour+30*time.Minute, models.UntilNextDay(at, loc))
}

func TestAlreadyClaimedErrorMatches(t *testing.T) {
	var err error = &models.AlreadyClaimedError{Remaining: 3 * time.Hour}
	assert.ErrorIs(t, err, models.ErrAlreadyClaimedToday)
	assert.Contains(t, err.Error(), "3h0m0s")
}

func TestAdminTaskValidate(t *testing.T) {
	task := &models.AdminTask{Kind: models.TaskAddCredits}
	assert.Error(t, task.Validate())

	task.TargetID = 7
	assert.NoError(t, task.Validate())

	task = &models.AdminTask{Kind: "broadcast"}
	assert.Error(t, task.Validate())
}

func TestPages(t *testing.T) {
	assert.Equal(t, 0, models.Pages(0, 10))
	assert.Equal(t, 1, models.Pages(10, 10))
	assert.Equal(t, 2, models.Pages(11, 10))
}

func TestParseSortBy(t *testing.T) {
	assert.Equal(t, models.SortBySearches, models.ParseSortBy("searches"))
	assert.Equal(t, models.SortByCredits, models.ParseSortBy("anything"))
}
