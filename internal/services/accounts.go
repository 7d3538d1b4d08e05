package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

const activityTimeout = 5 * time.Second

type AccountService struct {
	store       storage.Store
	broadcaster Broadcaster
	now         func() time.Time
	log         *logrus.Entry

	pending sync.WaitGroup
}

func NewAccountService(store storage.Store, broadcaster Broadcaster, now func() time.Time) *AccountService {
	return &AccountService{
		store:       store,
		broadcaster: broadcaster,
		now:         now,
		log:         logger.Component("accounts"),
	}
}

// CreateIfAbsent returns the stored account and whether this call created
// it. Credits start at the welcome bonus when it is enabled.
func (s *AccountService) CreateIfAbsent(ctx context.Context, userID int64, name string, referrerID *int64, settings models.Settings) (*models.Account, bool, error) {
	acct := models.NewAccount(userID, name, referrerID, settings, s.now())

	created, err := s.store.CreateAccountIfAbsent(ctx, acct)
	if err != nil {
		return nil, false, storageErr(err)
	}
	if !created {
		existing, err := s.Get(ctx, userID)
		return existing, false, err
	}

	if acct.Credits > 0 {
		err := s.store.IncrementStats(ctx, userID, map[models.StatField]int64{
			models.StatCreditsEarned: acct.Credits,
		})
		if err != nil {
			s.log.WithFields(logrus.Fields{"user_id": userID, "error": err}).
				Error("Failed to record welcome bonus in stats")
		}
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"credits": acct.Credits,
	}).Info("Account created")

	s.broadcaster.Publish(models.NewLedgerEvent(models.EventAccountCreated, userID, acct.Credits, acct.Credits, acct.JoinedAt))
	return acct, true, nil
}

func (s *AccountService) Get(ctx context.Context, userID int64) (*models.Account, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, accountErr(err)
	}
	return acct, nil
}

// MarkActive records activity in the background. Failures are logged and
// never reach the caller.
func (s *AccountService) MarkActive(userID int64) {
	at := s.now()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), activityTimeout)
		defer cancel()

		if err := s.store.TouchAccount(ctx, userID, at); err != nil {
			s.log.WithFields(logrus.Fields{"user_id": userID, "error": err}).
				Warn("Failed to mark account active")
		}
	}()
}

// Wait blocks until background activity updates have finished.
func (s *AccountService) Wait() {
	s.pending.Wait()
}

func (s *AccountService) SetBanned(ctx context.Context, userID int64, banned bool) (*models.Account, error) {
	now := s.now()
	if err := s.store.SetBanned(ctx, userID, banned, now); err != nil {
		return nil, accountErr(err)
	}

	acct, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "banned": banned}).Info("Ban state changed")

	event := models.NewLedgerEvent(models.EventBanChanged, userID, 0, acct.Credits, now)
	if banned {
		event.Description = "banned"
	} else {
		event.Description = "unbanned"
	}
	s.broadcaster.Publish(event)
	return acct, nil
}

// Find resolves a numeric query to an exact id and anything else to a
// case-insensitive name match.
func (s *AccountService) Find(ctx context.Context, query string, limit int) ([]*models.Account, error) {
	if id, ok := parseUserID(query); ok {
		acct, err := s.Get(ctx, id)
		if errors.Is(err, models.ErrAccountNotFound) {
			return []*models.Account{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []*models.Account{acct}, nil
	}

	accounts, err := s.store.FindAccountsByName(ctx, query, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return accounts, nil
}

// List pages through accounts, newest joiners first.
func (s *AccountService) List(ctx context.Context, page, pageSize int) ([]*models.Account, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	entries, err := s.store.ScanAccounts(ctx, storage.ScanQuery{
		SortBy: models.SortByJoined,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, 0, storageErr(err)
	}
	total, err := s.store.CountAccounts(ctx, storage.AccountFilter{})
	if err != nil {
		return nil, 0, storageErr(err)
	}

	accounts := make([]*models.Account, 0, len(entries))
	for _, e := range entries {
		accounts = append(accounts, e.Account)
	}
	return accounts, total, nil
}
