// Package storage defines the backend contract the ledger is written against.
// Every method is atomic for the single record it touches; nothing spans
// records transactionally.
package storage

import (
	"context"
	"errors"
	"time"

	"infobot-backend/internal/models"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrConditionFailed = errors.New("conditional update rejected")
)

type GuardMode int

const (
	GuardNone GuardMode = iota
	// GuardFloor rejects the increment when the result would drop below Floor.
	GuardFloor
	// GuardClamp raises the result to Floor instead of rejecting it.
	GuardClamp
)

type Guard struct {
	Mode  GuardMode
	Floor int64
}

func NoGuard() Guard { return Guard{Mode: GuardNone} }

func AtLeast(floor int64) Guard { return Guard{Mode: GuardFloor, Floor: floor} }

func ClampAt(floor int64) Guard { return Guard{Mode: GuardClamp, Floor: floor} }

// Apply computes the guarded result of current+delta. ok is false when a
// floor guard rejects the update.
func (g Guard) Apply(current, delta int64) (next int64, ok bool) {
	next = current + delta
	switch g.Mode {
	case GuardFloor:
		if next < g.Floor {
			return current, false
		}
	case GuardClamp:
		if next < g.Floor {
			next = g.Floor
		}
	}
	return next, true
}

// AccountFilter fields are combined with AND. Backends that index each
// criterion separately may support only one at a time.
type AccountFilter struct {
	JoinedSince  *time.Time
	ActiveSince  *time.Time
	CreditsAbove *int64
}

func (f AccountFilter) criteria() int {
	n := 0
	if f.JoinedSince != nil {
		n++
	}
	if f.ActiveSince != nil {
		n++
	}
	if f.CreditsAbove != nil {
		n++
	}
	return n
}

// Single reports whether at most one criterion is set.
func (f AccountFilter) Single() bool {
	return f.criteria() <= 1
}

// Match evaluates the filter against one account.
func (f AccountFilter) Match(a *models.Account) bool {
	if f.JoinedSince != nil && a.JoinedAt.Before(*f.JoinedSince) {
		return false
	}
	if f.ActiveSince != nil && a.LastActiveAt.Before(*f.ActiveSince) {
		return false
	}
	if f.CreditsAbove != nil && a.Credits <= *f.CreditsAbove {
		return false
	}
	return true
}

// ScanQuery orders descending by SortBy; ties keep join order.
type ScanQuery struct {
	SortBy models.SortBy
	Limit  int
	Offset int
}

type AccountStore interface {
	// CreateAccountIfAbsent inserts acct unless the user already exists.
	CreateAccountIfAbsent(ctx context.Context, acct *models.Account) (bool, error)
	GetAccount(ctx context.Context, userID int64) (*models.Account, error)
	// IncrementAccount adds delta to an integer field and returns the new value.
	IncrementAccount(ctx context.Context, userID int64, field models.AccountField, delta int64, guard Guard) (int64, error)
	SetDailyStreak(ctx context.Context, userID int64, streak int64) error
	TouchAccount(ctx context.Context, userID int64, at time.Time) error
	SetBanned(ctx context.Context, userID int64, banned bool, at time.Time) error
	// MarkReferralRewarded flips referral_rewarded from false to true and
	// reports whether this call did the flip.
	MarkReferralRewarded(ctx context.Context, userID int64) (bool, error)
	FindAccountsByName(ctx context.Context, query string, limit int) ([]*models.Account, error)
	PendingReferrals(ctx context.Context, joinedBefore time.Time, limit int) ([]*models.Account, error)
}

type StatsStore interface {
	// IncrementStats upserts the stats record and applies all deltas at once.
	IncrementStats(ctx context.Context, userID int64, deltas map[models.StatField]int64) error
	GetStats(ctx context.Context, userID int64) (*models.UserStats, error)
}

type SearchStore interface {
	AppendSearch(ctx context.Context, rec *models.SearchRecord) error
	// ListSearches returns newest first.
	ListSearches(ctx context.Context, userID int64, limit, offset int) ([]*models.SearchRecord, error)
	CountSearches(ctx context.Context, userID int64) (int64, error)
}

type ClaimStore interface {
	// InsertClaim fails with ErrDuplicate when (user, day) already exists.
	InsertClaim(ctx context.Context, claim *models.DailyClaim) error
	HasClaim(ctx context.Context, userID int64, day string) (bool, error)
}

type SettingsStore interface {
	// InitSettings stores defaults for any missing field and returns the
	// stored record.
	InitSettings(ctx context.Context, defaults models.Settings) (*models.Settings, error)
	GetSettings(ctx context.Context) (*models.Settings, error)
	// UpdateSetting writes only the field named by key, taking its value from s.
	UpdateSetting(ctx context.Context, key models.SettingKey, s models.Settings) error
}

type AggregateStore interface {
	CountAccounts(ctx context.Context, filter AccountFilter) (int64, error)
	SumCredits(ctx context.Context) (int64, error)
	SumStats(ctx context.Context, field models.StatField) (int64, error)
	// TopReferrers groups accounts by referrer; Name is left empty.
	TopReferrers(ctx context.Context, limit int) ([]models.ReferrerCount, error)
	ScanAccounts(ctx context.Context, q ScanQuery) ([]*models.LeaderboardEntry, error)
}

type Store interface {
	AccountStore
	StatsStore
	SearchStore
	ClaimStore
	SettingsStore
	AggregateStore

	Ping(ctx context.Context) error
	Close() error
}

// ErrUnsupportedFilter is returned by backends that cannot combine criteria.
var ErrUnsupportedFilter = errors.New("filter combines more than one criterion")
