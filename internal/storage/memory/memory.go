// Package memory is an in-process storage backend. It is safe for concurrent
// use and is intended for tests and local development.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

var errClosed = errors.New("memory store is closed")

type claimKey struct {
	userID int64
	day    string
}

type Store struct {
	mu       sync.RWMutex
	accounts map[int64]*models.Account
	order    map[int64]int
	stats    map[int64]*models.UserStats
	searches map[int64][]*models.SearchRecord
	claims   map[claimKey]*models.DailyClaim
	settings *models.Settings
	closed   bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[int64]*models.Account),
		order:    make(map[int64]int),
		stats:    make(map[int64]*models.UserStats),
		searches: make(map[int64][]*models.SearchRecord),
		claims:   make(map[claimKey]*models.DailyClaim),
	}
}

func cloneAccount(a *models.Account) *models.Account {
	cp := *a
	if a.ReferrerID != nil {
		ref := *a.ReferrerID
		cp.ReferrerID = &ref
	}
	if a.BanAt != nil {
		at := *a.BanAt
		cp.BanAt = &at
	}
	return &cp
}

func (s *Store) statsOrZero(userID int64) *models.UserStats {
	if st, ok := s.stats[userID]; ok {
		cp := *st
		return &cp
	}
	return &models.UserStats{UserID: userID}
}

// Accounts ---------------------------------------------------------------

func (s *Store) CreateAccountIfAbsent(_ context.Context, acct *models.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[acct.UserID]; exists {
		return false, nil
	}
	s.accounts[acct.UserID] = cloneAccount(acct)
	s.order[acct.UserID] = len(s.order)
	return true, nil
}

func (s *Store) GetAccount(_ context.Context, userID int64) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneAccount(acct), nil
}

func (s *Store) IncrementAccount(_ context.Context, userID int64, field models.AccountField, delta int64, guard storage.Guard) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return 0, storage.ErrNotFound
	}

	var target *int64
	switch field {
	case models.FieldCredits:
		target = &acct.Credits
	case models.FieldDailyStreak:
		target = &acct.DailyStreak
	default:
		return 0, storage.ErrNotFound
	}

	next, ok := guard.Apply(*target, delta)
	if !ok {
		return *target, storage.ErrConditionFailed
	}
	*target = next
	return next, nil
}

func (s *Store) SetDailyStreak(_ context.Context, userID int64, streak int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return storage.ErrNotFound
	}
	acct.DailyStreak = streak
	return nil
}

func (s *Store) TouchAccount(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return storage.ErrNotFound
	}
	acct.LastActiveAt = at
	return nil
}

func (s *Store) SetBanned(_ context.Context, userID int64, banned bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return storage.ErrNotFound
	}
	acct.Banned = banned
	if banned {
		acct.BanAt = &at
	} else {
		acct.BanAt = nil
	}
	return nil
}

func (s *Store) MarkReferralRewarded(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if acct.ReferralRewarded {
		return false, nil
	}
	acct.ReferralRewarded = true
	return true, nil
}

func (s *Store) FindAccountsByName(_ context.Context, query string, limit int) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var matches []*models.Account
	for _, acct := range s.sortedLocked(models.SortByJoined) {
		if strings.Contains(strings.ToLower(acct.Name), needle) {
			matches = append(matches, cloneAccount(acct))
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

func (s *Store) PendingReferrals(_ context.Context, joinedBefore time.Time, limit int) ([]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []*models.Account
	for _, acct := range s.accounts {
		if acct.HasReferrer() && !acct.ReferralRewarded && acct.JoinedAt.Before(joinedBefore) {
			pending = append(pending, cloneAccount(acct))
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return s.order[pending[i].UserID] < s.order[pending[j].UserID]
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Stats ------------------------------------------------------------------

func (s *Store) IncrementStats(_ context.Context, userID int64, deltas map[models.StatField]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[userID]
	if !ok {
		st = &models.UserStats{UserID: userID}
		s.stats[userID] = st
	}
	for field, delta := range deltas {
		st.Add(field, delta)
	}
	return nil
}

func (s *Store) GetStats(_ context.Context, userID int64) (*models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stats[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// Searches ---------------------------------------------------------------

func (s *Store) AppendSearch(_ context.Context, rec *models.SearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.searches[rec.UserID] = append(s.searches[rec.UserID], &cp)
	return nil
}

func (s *Store) ListSearches(_ context.Context, userID int64, limit, offset int) ([]*models.SearchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.searches[userID]
	var out []*models.SearchRecord
	for i := len(all) - 1 - offset; i >= 0; i-- {
		cp := *all[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CountSearches(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.searches[userID])), nil
}

// Claims -----------------------------------------------------------------

func (s *Store) InsertClaim(_ context.Context, claim *models.DailyClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := claimKey{userID: claim.UserID, day: claim.Day}
	if _, exists := s.claims[key]; exists {
		return storage.ErrDuplicate
	}
	cp := *claim
	s.claims[key] = &cp
	return nil
}

func (s *Store) HasClaim(_ context.Context, userID int64, day string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.claims[claimKey{userID: userID, day: day}]
	return ok, nil
}

// Settings ---------------------------------------------------------------

func (s *Store) InitSettings(_ context.Context, defaults models.Settings) (*models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		cp := defaults
		s.settings = &cp
	}
	out := *s.settings
	return &out, nil
}

func (s *Store) GetSettings(_ context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, storage.ErrNotFound
	}
	out := *s.settings
	return &out, nil
}

func (s *Store) UpdateSetting(_ context.Context, key models.SettingKey, src models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		defaults := models.DefaultSettings()
		s.settings = &defaults
	}
	return s.settings.Set(key, src.Value(key))
}

// Aggregates -------------------------------------------------------------

func (s *Store) CountAccounts(_ context.Context, filter storage.AccountFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, acct := range s.accounts {
		if filter.Match(acct) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SumCredits(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, acct := range s.accounts {
		total += acct.Credits
	}
	return total, nil
}

func (s *Store) SumStats(_ context.Context, field models.StatField) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, st := range s.stats {
		total += st.Get(field)
	}
	return total, nil
}

func (s *Store) TopReferrers(_ context.Context, limit int) ([]models.ReferrerCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int64)
	for _, acct := range s.accounts {
		if acct.HasReferrer() {
			counts[*acct.ReferrerID]++
		}
	}

	out := make([]models.ReferrerCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, models.ReferrerCount{UserID: id, Referrals: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Referrals != out[j].Referrals {
			return out[i].Referrals > out[j].Referrals
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ScanAccounts(_ context.Context, q storage.ScanQuery) ([]*models.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked(q.SortBy)
	if q.Offset >= len(sorted) {
		return []*models.LeaderboardEntry{}, nil
	}
	sorted = sorted[q.Offset:]
	if q.Limit > 0 && len(sorted) > q.Limit {
		sorted = sorted[:q.Limit]
	}

	entries := make([]*models.LeaderboardEntry, 0, len(sorted))
	for i, acct := range sorted {
		entries = append(entries, &models.LeaderboardEntry{
			Position: int64(q.Offset + i + 1),
			Account:  cloneAccount(acct),
			Stats:    s.statsOrZero(acct.UserID),
		})
	}
	return entries, nil
}

// sortedLocked orders accounts descending by the sort key, keeping join
// order for ties. Newest joiners come first for SortByJoined.
func (s *Store) sortedLocked(by models.SortBy) []*models.Account {
	all := make([]*models.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		all = append(all, acct)
	}
	sort.Slice(all, func(i, j int) bool {
		return s.order[all[i].UserID] < s.order[all[j].UserID]
	})

	key := func(a *models.Account) int64 {
		switch by {
		case models.SortBySearches:
			if st, ok := s.stats[a.UserID]; ok {
				return st.TotalSearches
			}
			return 0
		case models.SortByJoined:
			return int64(s.order[a.UserID])
		default:
			return a.Credits
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return key(all[i]) > key(all[j])
	})
	return all
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
