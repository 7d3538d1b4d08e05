package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/metrics"
	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

// Credit reasons, used for metrics labels and event descriptions.
const (
	ReasonDailyBonus = "daily_bonus"
	ReasonReferral   = "referral"
	ReasonAdmin      = "admin"
)

// Ledger is the only writer of account balances. Every mutation is one
// atomic increment on the account record; no lock is taken here.
type Ledger struct {
	store       storage.Store
	broadcaster Broadcaster
	now         func() time.Time
	log         *logrus.Entry
}

func NewLedger(store storage.Store, broadcaster Broadcaster, now func() time.Time) *Ledger {
	return &Ledger{
		store:       store,
		broadcaster: broadcaster,
		now:         now,
		log:         logger.Component("ledger"),
	}
}

// Credit adds amount to the balance and to credits_earned.
func (l *Ledger) Credit(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	balance, err := l.store.IncrementAccount(ctx, userID, models.FieldCredits, amount, storage.NoGuard())
	if err != nil {
		return 0, accountErr(err)
	}

	l.recordStats(ctx, userID, models.StatCreditsEarned, amount)
	metrics.RecordCredit(reason, amount)

	event := models.NewLedgerEvent(models.EventCreditsCredited, userID, amount, balance, l.now())
	event.Description = reason
	l.broadcaster.Publish(event)
	return balance, nil
}

// TrySpend decrements the balance only when it covers amount. The check and
// the decrement are one storage operation.
func (l *Ledger) TrySpend(ctx context.Context, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend amount must be positive, got %d", amount)
	}

	balance, err := l.store.IncrementAccount(ctx, userID, models.FieldCredits, -amount, storage.AtLeast(0))
	if errors.Is(err, storage.ErrConditionFailed) {
		metrics.RecordSpend("insufficient")
		return balance, models.ErrInsufficientCredits
	}
	if err != nil {
		metrics.RecordSpend("error")
		return 0, accountErr(err)
	}

	metrics.RecordSpend("ok")
	l.recordStats(ctx, userID, models.StatCreditsSpent, amount)

	l.broadcaster.Publish(models.NewLedgerEvent(models.EventCreditsSpent, userID, amount, balance, l.now()))
	return balance, nil
}

// AdminAdjust applies delta unconditionally, clamping the result at zero.
// Stats are not touched.
func (l *Ledger) AdminAdjust(ctx context.Context, userID, delta int64) (int64, error) {
	balance, err := l.store.IncrementAccount(ctx, userID, models.FieldCredits, delta, storage.ClampAt(0))
	if err != nil {
		return 0, accountErr(err)
	}

	l.log.WithFields(logrus.Fields{
		"user_id": userID,
		"delta":   delta,
		"balance": balance,
	}).Info("Balance adjusted by admin")

	event := models.NewLedgerEvent(models.EventBalanceAdjusted, userID, delta, balance, l.now())
	event.Description = ReasonAdmin
	l.broadcaster.Publish(event)
	return balance, nil
}

// recordStats runs after the balance has changed. Failures are logged only.
func (l *Ledger) recordStats(ctx context.Context, userID int64, field models.StatField, amount int64) {
	err := l.store.IncrementStats(ctx, userID, map[models.StatField]int64{field: amount})
	if err != nil {
		l.log.WithFields(logrus.Fields{
			"user_id": userID,
			"field":   field,
			"error":   err,
		}).Error("Failed to update stats after balance change")
	}
}
