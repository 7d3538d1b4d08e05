package services

import (
	"context"
	"errors"
	"fmt"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

const (
	DefaultLeaderboardSize = 10
	MaxLeaderboardSize     = 100
)

// RankService holds the read-only views over accounts and stats.
type RankService struct {
	store storage.Store
}

func NewRankService(store storage.Store) *RankService {
	return &RankService{store: store}
}

// Rank is 1 + the number of accounts holding strictly more credits, so tied
// balances share a rank and the next lower balance skips ahead.
func (r *RankService) Rank(ctx context.Context, userID int64) (int64, error) {
	acct, err := r.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, accountErr(err)
	}
	return r.rankOf(ctx, acct)
}

func (r *RankService) rankOf(ctx context.Context, acct *models.Account) (int64, error) {
	credits := acct.Credits
	above, err := r.store.CountAccounts(ctx, storage.AccountFilter{CreditsAbove: &credits})
	if err != nil {
		return 0, storageErr(err)
	}
	return above + 1, nil
}

// Leaderboard returns the top accounts by credits or searches. Accounts
// without stats sort as zero.
func (r *RankService) Leaderboard(ctx context.Context, limit int, sortBy models.SortBy) ([]*models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	if limit > MaxLeaderboardSize {
		limit = MaxLeaderboardSize
	}
	if sortBy != models.SortBySearches {
		sortBy = models.SortByCredits
	}

	entries, err := r.store.ScanAccounts(ctx, storage.ScanQuery{SortBy: sortBy, Limit: limit})
	if err != nil {
		return nil, storageErr(err)
	}
	for i, e := range entries {
		e.Position = int64(i + 1)
		if e.Stats == nil {
			e.Stats = &models.UserStats{UserID: e.Account.UserID}
		}
	}
	return entries, nil
}

// Profile joins the account with its stats, rank and referrer name.
func (r *RankService) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	acct, err := r.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, accountErr(err)
	}

	stats, err := r.statsOrZero(ctx, userID)
	if err != nil {
		return nil, err
	}

	rank, err := r.rankOf(ctx, acct)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{Account: acct, Stats: stats, Rank: rank}
	if acct.HasReferrer() {
		profile.ReferrerName = r.referrerName(ctx, *acct.ReferrerID)
	}
	return profile, nil
}

func (r *RankService) statsOrZero(ctx context.Context, userID int64) (*models.UserStats, error) {
	stats, err := r.store.GetStats(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return &models.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return stats, nil
}

func (r *RankService) referrerName(ctx context.Context, referrerID int64) string {
	ref, err := r.store.GetAccount(ctx, referrerID)
	if err != nil {
		return fmt.Sprintf("%d", referrerID)
	}
	return fmt.Sprintf("%s (%d)", ref.Name, referrerID)
}
