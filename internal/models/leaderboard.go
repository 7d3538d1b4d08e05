package models

import "time"

type SortBy string

const (
	SortByCredits  SortBy = "credits"
	SortBySearches SortBy = "searches"
	SortByJoined   SortBy = "joined"
)

// ParseSortBy falls back to credits for anything it does not recognise.
func ParseSortBy(s string) SortBy {
	switch SortBy(s) {
	case SortBySearches:
		return SortBySearches
	case SortByJoined:
		return SortByJoined
	default:
		return SortByCredits
	}
}

type LeaderboardEntry struct {
	Position int64      `json:"position"`
	Account  *Account   `json:"account"`
	Stats    *UserStats `json:"stats"`
}

type ReferrerCount struct {
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	Referrals int64  `json:"referrals"`
}

type WindowCounts struct {
	Today int64 `json:"today"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
}

type Analytics struct {
	TotalUsers           int64           `json:"total_users"`
	Active24h            int64           `json:"active_24h"`
	TotalSearches        int64           `json:"total_searches"`
	SuccessfulSearches   int64           `json:"successful_searches"`
	CreditsInCirculation int64           `json:"credits_in_circulation"`
	Growth               WindowCounts    `json:"growth"`
	Active               WindowCounts    `json:"active"`
	TopReferrers         []ReferrerCount `json:"top_referrers"`
	GeneratedAt          time.Time       `json:"generated_at"`
}
