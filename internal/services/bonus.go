package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/metrics"
	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

// BonusEngine grants one daily bonus per user per calendar day in loc.
type BonusEngine struct {
	store       storage.Store
	ledger      *Ledger
	broadcaster Broadcaster
	loc         *time.Location
	now         func() time.Time
	log         *logrus.Entry
}

func NewBonusEngine(store storage.Store, ledger *Ledger, broadcaster Broadcaster, loc *time.Location, now func() time.Time) *BonusEngine {
	if loc == nil {
		loc = time.Local
	}
	return &BonusEngine{
		store:       store,
		ledger:      ledger,
		broadcaster: broadcaster,
		loc:         loc,
		now:         now,
		log:         logger.Component("bonus"),
	}
}

// ClaimToday inserts today's claim, credits the bonus, then updates the
// streak. The claim insert is the double-claim guard.
func (b *BonusEngine) ClaimToday(ctx context.Context, userID int64, settings models.Settings) (*models.BonusResult, error) {
	if !settings.DailyBonusEnabled {
		metrics.RecordBonusClaim("disabled")
		return nil, models.ErrBonusDisabled
	}

	now := b.now()
	claim := &models.DailyClaim{
		UserID:    userID,
		Day:       models.DayKey(now, b.loc),
		ClaimedAt: now,
		Amount:    settings.DailyBonusAmount,
	}

	if err := b.store.InsertClaim(ctx, claim); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			metrics.RecordBonusClaim("already_claimed")
			return nil, &models.AlreadyClaimedError{Remaining: models.UntilNextDay(now, b.loc)}
		}
		return nil, storageErr(err)
	}

	balance, err := b.ledger.Credit(ctx, userID, settings.DailyBonusAmount, ReasonDailyBonus)
	if err != nil {
		// The claim row stays, so today's bonus is not paid again.
		b.log.WithFields(logrus.Fields{
			"user_id": userID,
			"day":     claim.Day,
			"error":   err,
		}).Error("Daily claim recorded but credit failed")
		return nil, err
	}

	streak := b.advanceStreak(ctx, userID, now)
	metrics.RecordBonusClaim("ok")

	b.log.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  settings.DailyBonusAmount,
		"streak":  streak,
	}).Info("Daily bonus claimed")

	b.broadcaster.Publish(models.NewLedgerEvent(models.EventBonusClaimed, userID, settings.DailyBonusAmount, balance, now))

	return &models.BonusResult{
		Amount:  settings.DailyBonusAmount,
		Streak:  streak,
		Balance: balance,
	}, nil
}

// advanceStreak extends the streak when yesterday was claimed and restarts
// it at 1 otherwise. It is best-effort and returns 0 when it fails.
func (b *BonusEngine) advanceStreak(ctx context.Context, userID int64, now time.Time) int64 {
	yesterday := models.DayKey(models.StartOfDay(now, b.loc).AddDate(0, 0, -1), b.loc)
	log := b.log.WithField("user_id", userID)

	claimedYesterday, err := b.store.HasClaim(ctx, userID, yesterday)
	if err != nil {
		log.WithField("error", err).Warn("Failed to read yesterday's claim")
		return 0
	}

	if claimedYesterday {
		streak, err := b.store.IncrementAccount(ctx, userID, models.FieldDailyStreak, 1, storage.NoGuard())
		if err != nil {
			log.WithField("error", err).Warn("Failed to extend streak")
			return 0
		}
		return streak
	}

	if err := b.store.SetDailyStreak(ctx, userID, 1); err != nil {
		log.WithField("error", err).Warn("Failed to reset streak")
		return 0
	}
	return 1
}

func (b *BonusEngine) Status(ctx context.Context, userID int64, settings models.Settings) (*models.BonusStatus, error) {
	acct, err := b.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, accountErr(err)
	}

	now := b.now()
	claimed, err := b.store.HasClaim(ctx, userID, models.DayKey(now, b.loc))
	if err != nil {
		return nil, storageErr(err)
	}

	status := &models.BonusStatus{
		Enabled:      settings.DailyBonusEnabled,
		ClaimedToday: claimed,
		Amount:       settings.DailyBonusAmount,
		Streak:       acct.DailyStreak,
	}
	if claimed {
		status.NextClaimAfter = models.UntilNextDay(now, b.loc)
	}
	return status, nil
}
