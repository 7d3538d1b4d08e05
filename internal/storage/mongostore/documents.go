package mongostore

import (
	"time"

	"infobot-backend/internal/models"
)

const (
	collAccounts = "users"
	collStats    = "user_stats"
	collSearches = "search_history"
	collClaims   = "daily_bonuses"
	collSettings = "bot_settings"

	settingsID = "main"
)

type accountDoc struct {
	UserID           int64      `bson:"_id"`
	Name             string     `bson:"name"`
	Credits          int64      `bson:"credits"`
	ReferrerID       *int64     `bson:"referrer_id,omitempty"`
	ReferralRewarded bool       `bson:"referral_rewarded"`
	JoinedAt         time.Time  `bson:"joined_at"`
	LastActiveAt     time.Time  `bson:"last_active_at"`
	Banned           bool       `bson:"banned"`
	BanAt            *time.Time `bson:"ban_at,omitempty"`
	DailyStreak      int64      `bson:"daily_streak"`
}

func newAccountDoc(a *models.Account) *accountDoc {
	return &accountDoc{
		UserID:           a.UserID,
		Name:             a.Name,
		Credits:          a.Credits,
		ReferrerID:       a.ReferrerID,
		ReferralRewarded: a.ReferralRewarded,
		JoinedAt:         a.JoinedAt,
		LastActiveAt:     a.LastActiveAt,
		Banned:           a.Banned,
		BanAt:            a.BanAt,
		DailyStreak:      a.DailyStreak,
	}
}

func (d *accountDoc) model() *models.Account {
	return &models.Account{
		UserID:           d.UserID,
		Name:             d.Name,
		Credits:          d.Credits,
		ReferrerID:       d.ReferrerID,
		ReferralRewarded: d.ReferralRewarded,
		JoinedAt:         d.JoinedAt,
		LastActiveAt:     d.LastActiveAt,
		Banned:           d.Banned,
		BanAt:            d.BanAt,
		DailyStreak:      d.DailyStreak,
	}
}

func (d *accountDoc) field(f models.AccountField) int64 {
	if f == models.FieldDailyStreak {
		return d.DailyStreak
	}
	return d.Credits
}

type statsDoc struct {
	UserID             int64 `bson:"_id"`
	TotalSearches      int64 `bson:"total_searches"`
	SuccessfulSearches int64 `bson:"successful_searches"`
	FailedSearches     int64 `bson:"failed_searches"`
	CreditsEarned      int64 `bson:"credits_earned"`
	CreditsSpent       int64 `bson:"credits_spent"`
}

func (d *statsDoc) model() *models.UserStats {
	return &models.UserStats{
		UserID:             d.UserID,
		TotalSearches:      d.TotalSearches,
		SuccessfulSearches: d.SuccessfulSearches,
		FailedSearches:     d.FailedSearches,
		CreditsEarned:      d.CreditsEarned,
		CreditsSpent:       d.CreditsSpent,
	}
}

type searchDoc struct {
	ID         string    `bson:"_id"`
	UserID     int64     `bson:"user_id"`
	Term       string    `bson:"term"`
	Kind       string    `bson:"search_type"`
	Succeeded  bool      `bson:"success"`
	Payload    string    `bson:"result_data,omitempty"`
	OccurredAt time.Time `bson:"timestamp"`
}

func (d *searchDoc) model() *models.SearchRecord {
	rec := &models.SearchRecord{
		ID:         d.ID,
		UserID:     d.UserID,
		Term:       d.Term,
		Kind:       models.SearchKind(d.Kind),
		Succeeded:  d.Succeeded,
		OccurredAt: d.OccurredAt,
	}
	if d.Payload != "" {
		rec.Payload = []byte(d.Payload)
	}
	return rec
}

type claimDoc struct {
	UserID    int64     `bson:"user_id"`
	Day       string    `bson:"date"`
	ClaimedAt time.Time `bson:"claimed_at"`
	Amount    int64     `bson:"amount"`
}

type settingsDoc struct {
	ID                      string `bson:"_id"`
	DailyBonusEnabled       bool   `bson:"daily_bonus_enabled"`
	DailyBonusAmount        int64  `bson:"daily_bonus_amount"`
	WelcomeBonusEnabled     bool   `bson:"welcome_bonus_enabled"`
	WelcomeBonusAmount      int64  `bson:"welcome_bonus_amount"`
	ResultExpirationEnabled bool   `bson:"result_expiration_enabled"`
	ResultExpireSeconds     int64  `bson:"result_expire_seconds"`
}

func (d *settingsDoc) model() *models.Settings {
	return &models.Settings{
		DailyBonusEnabled:       d.DailyBonusEnabled,
		DailyBonusAmount:        d.DailyBonusAmount,
		WelcomeBonusEnabled:     d.WelcomeBonusEnabled,
		WelcomeBonusAmount:      d.WelcomeBonusAmount,
		ResultExpirationEnabled: d.ResultExpirationEnabled,
		ResultExpireSeconds:     d.ResultExpireSeconds,
	}
}

// settingValue returns the typed value stored for key.
func settingValue(key models.SettingKey, s models.Settings) interface{} {
	switch key {
	case models.SettingDailyBonusEnabled:
		return s.DailyBonusEnabled
	case models.SettingDailyBonusAmount:
		return s.DailyBonusAmount
	case models.SettingWelcomeBonusEnabled:
		return s.WelcomeBonusEnabled
	case models.SettingWelcomeBonusAmount:
		return s.WelcomeBonusAmount
	case models.SettingResultExpirationEnabled:
		return s.ResultExpirationEnabled
	case models.SettingResultExpireSeconds:
		return s.ResultExpireSeconds
	}
	return nil
}
