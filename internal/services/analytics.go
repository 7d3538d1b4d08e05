package services

import (
	"context"
	"errors"
	"time"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

const topReferrerCount = 5

// Analytics composes point-in-time aggregates. The reads are independent,
// so the totals need not agree with each other under concurrent writes.
type Analytics struct {
	store storage.Store
	loc   *time.Location
	now   func() time.Time
}

func NewAnalytics(store storage.Store, loc *time.Location, now func() time.Time) *Analytics {
	if loc == nil {
		loc = time.Local
	}
	return &Analytics{store: store, loc: loc, now: now}
}

func (a *Analytics) Snapshot(ctx context.Context) (*models.Analytics, error) {
	now := a.now()
	out := &models.Analytics{GeneratedAt: now}

	var err error
	if out.TotalUsers, err = a.store.CountAccounts(ctx, storage.AccountFilter{}); err != nil {
		return nil, storageErr(err)
	}

	dayAgo := now.Add(-24 * time.Hour)
	if out.Active24h, err = a.store.CountAccounts(ctx, storage.AccountFilter{ActiveSince: &dayAgo}); err != nil {
		return nil, storageErr(err)
	}

	if out.TotalSearches, err = a.store.SumStats(ctx, models.StatTotalSearches); err != nil {
		return nil, storageErr(err)
	}
	if out.SuccessfulSearches, err = a.store.SumStats(ctx, models.StatSuccessfulSearches); err != nil {
		return nil, storageErr(err)
	}
	if out.CreditsInCirculation, err = a.store.SumCredits(ctx); err != nil {
		return nil, storageErr(err)
	}

	today := models.StartOfDay(now, a.loc)
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, 0, -30)

	if out.Growth, err = a.windows(ctx, today, week, month, func(since *time.Time) storage.AccountFilter {
		return storage.AccountFilter{JoinedSince: since}
	}); err != nil {
		return nil, err
	}
	if out.Active, err = a.windows(ctx, today, week, month, func(since *time.Time) storage.AccountFilter {
		return storage.AccountFilter{ActiveSince: since}
	}); err != nil {
		return nil, err
	}

	if out.TopReferrers, err = a.topReferrers(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Analytics) windows(ctx context.Context, today, week, month time.Time, filter func(*time.Time) storage.AccountFilter) (models.WindowCounts, error) {
	var counts models.WindowCounts
	var err error

	if counts.Today, err = a.store.CountAccounts(ctx, filter(&today)); err != nil {
		return counts, storageErr(err)
	}
	if counts.Week, err = a.store.CountAccounts(ctx, filter(&week)); err != nil {
		return counts, storageErr(err)
	}
	if counts.Month, err = a.store.CountAccounts(ctx, filter(&month)); err != nil {
		return counts, storageErr(err)
	}
	return counts, nil
}

// topReferrers resolves display names and drops referrers whose account no
// longer resolves.
func (a *Analytics) topReferrers(ctx context.Context) ([]models.ReferrerCount, error) {
	counts, err := a.store.TopReferrers(ctx, topReferrerCount)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]models.ReferrerCount, 0, len(counts))
	for _, c := range counts {
		acct, err := a.store.GetAccount(ctx, c.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storageErr(err)
		}
		c.Name = acct.Name
		out = append(out, c)
	}
	return out, nil
}
