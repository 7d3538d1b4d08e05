package redisstore

import "time"

const (
	KeyAccount       = "account:%d"
	KeyStats         = "stats:%d"
	KeySearches      = "searches:%d"
	KeyDailyClaim    = "daily:%d:%s"
	KeySettings      = "settings:main"
	KeyAccountTotals = "accounts:totals"
	KeyStatsTotals   = "stats:totals"
	KeyAccountNames  = "accounts:names"

	// Sorted sets. Members are rank members (see rankMember) so that equal
	// scores come back in join order.
	KeyByCredits  = "accounts:by_credits"
	KeyByJoined   = "accounts:by_joined"
	KeyByActive   = "accounts:by_active"
	KeyBySearches = "stats:by_searches"

	// Referral indexes use the plain user id as member.
	KeyReferralCounts  = "referrals:counts"
	KeyReferralPending = "referrals:pending"

	// Long enough for the streak check to see yesterday's claim.
	TTLDailyClaim = 7 * 24 * time.Hour

	scanBatch = 100
)
