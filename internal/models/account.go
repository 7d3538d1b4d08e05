package models

import "time"

type AccountField string

const (
	FieldCredits     AccountField = "credits"
	FieldDailyStreak AccountField = "daily_streak"
)

type Account struct {
	UserID           int64      `json:"user_id"`
	Name             string     `json:"name"`
	Credits          int64      `json:"credits"`
	ReferrerID       *int64     `json:"referrer_id,omitempty"`
	ReferralRewarded bool       `json:"referral_rewarded"`
	JoinedAt         time.Time  `json:"joined_at"`
	LastActiveAt     time.Time  `json:"last_active_at"`
	Banned           bool       `json:"banned"`
	BanAt            *time.Time `json:"ban_at,omitempty"`
	DailyStreak      int64      `json:"daily_streak"`
}

// NewAccount builds a first-contact account. Credits start at the welcome
// bonus when it is enabled.
func NewAccount(userID int64, name string, referrerID *int64, settings Settings, now time.Time) *Account {
	var credits int64
	if settings.WelcomeBonusEnabled {
		credits = settings.WelcomeBonusAmount
	}

	return &Account{
		UserID:       userID,
		Name:         name,
		Credits:      credits,
		ReferrerID:   referrerID,
		JoinedAt:     now,
		LastActiveAt: now,
	}
}

func (a *Account) HasReferrer() bool {
	return a.ReferrerID != nil
}

type UserStats struct {
	UserID             int64 `json:"user_id"`
	TotalSearches      int64 `json:"total_searches"`
	SuccessfulSearches int64 `json:"successful_searches"`
	FailedSearches     int64 `json:"failed_searches"`
	CreditsEarned      int64 `json:"credits_earned"`
	CreditsSpent       int64 `json:"credits_spent"`
}

type StatField string

const (
	StatTotalSearches      StatField = "total_searches"
	StatSuccessfulSearches StatField = "successful_searches"
	StatFailedSearches     StatField = "failed_searches"
	StatCreditsEarned      StatField = "credits_earned"
	StatCreditsSpent       StatField = "credits_spent"
)

// StatFields lists every counter in storage column order.
var StatFields = []StatField{
	StatTotalSearches,
	StatSuccessfulSearches,
	StatFailedSearches,
	StatCreditsEarned,
	StatCreditsSpent,
}

func (f StatField) Valid() bool {
	for _, known := range StatFields {
		if f == known {
			return true
		}
	}
	return false
}

// Add applies delta to the named counter.
func (s *UserStats) Add(field StatField, delta int64) {
	switch field {
	case StatTotalSearches:
		s.TotalSearches += delta
	case StatSuccessfulSearches:
		s.SuccessfulSearches += delta
	case StatFailedSearches:
		s.FailedSearches += delta
	case StatCreditsEarned:
		s.CreditsEarned += delta
	case StatCreditsSpent:
		s.CreditsSpent += delta
	}
}

func (s *UserStats) Get(field StatField) int64 {
	switch field {
	case StatTotalSearches:
		return s.TotalSearches
	case StatSuccessfulSearches:
		return s.SuccessfulSearches
	case StatFailedSearches:
		return s.FailedSearches
	case StatCreditsEarned:
		return s.CreditsEarned
	case StatCreditsSpent:
		return s.CreditsSpent
	}
	return 0
}

type Profile struct {
	Account      *Account   `json:"account"`
	Stats        *UserStats `json:"stats"`
	Rank         int64      `json:"rank"`
	ReferrerName string     `json:"referrer_name,omitempty"`
}

type ReferralResult struct {
	Account         *Account `json:"account"`
	Created         bool     `json:"created"`
	Rewarded        bool     `json:"rewarded"`
	ReferrerBalance int64    `json:"referrer_balance,omitempty"`
}
