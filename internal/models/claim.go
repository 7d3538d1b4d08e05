package models

import "time"

const dayLayout = "2006-01-02"

// DailyClaim is unique per (UserID, Day).
type DailyClaim struct {
	UserID    int64     `json:"user_id"`
	Day       string    `json:"day"`
	ClaimedAt time.Time `json:"claimed_at"`
	Amount    int64     `json:"amount"`
}

// DayKey formats the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// UntilNextDay is the time left before the next midnight in loc.
func UntilNextDay(t time.Time, loc *time.Location) time.Duration {
	next := StartOfDay(t, loc).AddDate(0, 0, 1)
	return next.Sub(t)
}

type BonusResult struct {
	Amount  int64 `json:"amount"`
	Streak  int64 `json:"streak"`
	Balance int64 `json:"balance"`
}

type BonusStatus struct {
	Enabled        bool          `json:"enabled"`
	ClaimedToday   bool          `json:"claimed_today"`
	Amount         int64         `json:"amount"`
	Streak         int64         `json:"streak"`
	NextClaimAfter time.Duration `json:"next_claim_after"`
}
