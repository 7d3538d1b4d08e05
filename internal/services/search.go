package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/metrics"
	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

const searchCost = 1

// SearchService runs paid lookups. The debit happens after the lookup has
// succeeded, through the same conditional decrement as any other spend.
type SearchService struct {
	store  storage.Store
	ledger *Ledger
	lookup LookupClient
	now    func() time.Time
	log    *logrus.Entry
}

func NewSearchService(store storage.Store, ledger *Ledger, lookup LookupClient, now func() time.Time) *SearchService {
	return &SearchService{
		store:  store,
		ledger: ledger,
		lookup: lookup,
		now:    now,
		log:    logger.Component("search"),
	}
}

// TrySpend debits the price of one search.
func (s *SearchService) TrySpend(ctx context.Context, userID int64) (int64, error) {
	return s.ledger.TrySpend(ctx, userID, searchCost)
}

// RecordOutcome appends the search record and bumps the matching counters.
// The payload of a failed search is dropped.
func (s *SearchService) RecordOutcome(ctx context.Context, userID int64, term string, kind models.SearchKind, succeeded bool, payload json.RawMessage) (*models.SearchRecord, error) {
	rec := models.NewSearchRecord(userID, term, kind, succeeded, payload, s.now())
	if err := s.store.AppendSearch(ctx, rec); err != nil {
		return nil, storageErr(err)
	}

	deltas := map[models.StatField]int64{models.StatTotalSearches: 1}
	result := "failed"
	if succeeded {
		deltas[models.StatSuccessfulSearches] = 1
		result = "ok"
	} else {
		deltas[models.StatFailedSearches] = 1
	}
	metrics.RecordSearch(string(kind), result)

	if err := s.store.IncrementStats(ctx, userID, deltas); err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID, "error": err}).
			Error("Failed to update search stats")
	}
	return rec, nil
}

// Run performs one paid search for acct. A failed lookup is recorded and
// costs nothing. A lookup that succeeds but loses the debit race is recorded
// as failed and reported as ErrInsufficientCredits.
func (s *SearchService) Run(ctx context.Context, acct *models.Account, rawTerm string, settings models.Settings) (*models.SearchOutcome, error) {
	term, kind, err := models.ClassifyTerm(rawTerm)
	if err != nil {
		return nil, err
	}

	// Advisory only. The debit below is the real check.
	if acct.Credits < searchCost {
		metrics.RecordSearch(string(kind), "insufficient")
		return nil, models.ErrInsufficientCredits
	}

	log := s.log.WithFields(logrus.Fields{"user_id": acct.UserID, "kind": kind})

	result := s.lookup.Lookup(ctx, kind, term)
	if !result.OK {
		if _, err := s.RecordOutcome(ctx, acct.UserID, term, kind, false, nil); err != nil {
			return nil, err
		}
		log.WithField("reason", result.Reason).Info("Lookup failed, search not charged")
		return nil, &models.LookupError{Reason: result.Reason}
	}

	balance, err := s.TrySpend(ctx, acct.UserID)
	if errors.Is(err, models.ErrInsufficientCredits) {
		if _, recErr := s.RecordOutcome(ctx, acct.UserID, term, kind, false, nil); recErr != nil {
			return nil, recErr
		}
		log.Warn("Lookup completed but debit lost the race, result withheld")
		return nil, models.ErrInsufficientCredits
	}
	if err != nil {
		return nil, err
	}

	rec, err := s.RecordOutcome(ctx, acct.UserID, term, kind, true, result.Payload)
	if err != nil {
		return nil, err
	}

	return &models.SearchOutcome{
		Record:    rec,
		Charged:   true,
		Balance:   balance,
		ExpiresAt: settings.ResultExpiry(rec.OccurredAt),
	}, nil
}

// History returns one page of searches, newest first.
func (s *SearchService) History(ctx context.Context, userID int64, page, pageSize int) (*models.HistoryPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	records, err := s.store.ListSearches(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, storageErr(err)
	}
	total, err := s.store.CountSearches(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}

	return &models.HistoryPage{
		Records:  records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    models.Pages(total, pageSize),
	}, nil
}
