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

const referralReward = 1

// ReferralEngine rewards a referrer when it brings in a brand-new account.
//
// Creating the member and crediting the referrer are separate atomic steps.
// The member's referral_rewarded flag is flipped before the credit, so a
// reward is paid at most once per member; members whose flag never got
// flipped are picked up by Reconcile.
type ReferralEngine struct {
	store       storage.Store
	accounts    *AccountService
	ledger      *Ledger
	broadcaster Broadcaster
	now         func() time.Time
	log         *logrus.Entry
}

func NewReferralEngine(store storage.Store, accounts *AccountService, ledger *Ledger, broadcaster Broadcaster, now func() time.Time) *ReferralEngine {
	return &ReferralEngine{
		store:       store,
		accounts:    accounts,
		ledger:      ledger,
		broadcaster: broadcaster,
		now:         now,
		log:         logger.Component("referral"),
	}
}

// Process creates the new member with referrerID attached. The referrer is
// rewarded only when this call created the member. A referrer without an
// account yet is paid by Reconcile once it has one. Self and bot referrals
// are rejected by the caller.
func (r *ReferralEngine) Process(ctx context.Context, newUserID, referrerID int64, name string, settings models.Settings) (*models.ReferralResult, error) {
	acct, created, err := r.accounts.CreateIfAbsent(ctx, newUserID, name, &referrerID, settings)
	if err != nil {
		return nil, err
	}

	result := &models.ReferralResult{Account: acct, Created: created}
	if !created {
		metrics.RecordReferral("existing_member")
		return result, nil
	}

	rewarded, balance, err := r.reward(ctx, acct)
	if err != nil {
		return nil, err
	}
	result.Rewarded = rewarded
	result.ReferrerBalance = balance
	return result, nil
}

// reward flips the member's flag and credits the referrer when the flip
// succeeded.
func (r *ReferralEngine) reward(ctx context.Context, member *models.Account) (bool, int64, error) {
	if !member.HasReferrer() {
		return false, 0, nil
	}
	referrerID := *member.ReferrerID

	// The flag stays unset until the referrer exists, so the reward is
	// deferred rather than lost.
	if _, err := r.accounts.Get(ctx, referrerID); err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			metrics.RecordReferral("unknown_referrer")
			r.log.WithFields(logrus.Fields{
				"user_id":     member.UserID,
				"referrer_id": referrerID,
			}).Info("Referrer has no account yet, reward deferred")
			return false, 0, nil
		}
		return false, 0, err
	}

	flipped, err := r.store.MarkReferralRewarded(ctx, member.UserID)
	if err != nil {
		return false, 0, accountErr(err)
	}
	if !flipped {
		metrics.RecordReferral("already_rewarded")
		return false, 0, nil
	}

	balance, err := r.ledger.Credit(ctx, referrerID, referralReward, ReasonReferral)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"user_id":     member.UserID,
			"referrer_id": referrerID,
			"error":       err,
		}).Error("Referral flagged as rewarded but credit failed")
		return false, 0, err
	}

	metrics.RecordReferral("rewarded")
	r.log.WithFields(logrus.Fields{
		"user_id":     member.UserID,
		"referrer_id": referrerID,
	}).Info("Referral rewarded")

	event := models.NewLedgerEvent(models.EventReferralRewarded, referrerID, referralReward, balance, r.now())
	event.RelatedUser = member.UserID
	r.broadcaster.Publish(event)
	return true, balance, nil
}

// Reconcile rewards members that joined with a referrer more than grace ago
// and were never rewarded. It returns how many rewards it paid.
func (r *ReferralEngine) Reconcile(ctx context.Context, grace time.Duration, limit int) (int, error) {
	pending, err := r.store.PendingReferrals(ctx, r.now().Add(-grace), limit)
	if err != nil {
		return 0, storageErr(err)
	}

	paid := 0
	for _, member := range pending {
		if err := ctx.Err(); err != nil {
			return paid, err
		}

		rewarded, _, err := r.reward(ctx, member)
		if err != nil {
			r.log.WithFields(logrus.Fields{"user_id": member.UserID, "error": err}).
				Warn("Failed to reconcile referral")
			continue
		}
		if rewarded {
			paid++
		}
	}

	if paid > 0 {
		r.log.WithField("rewarded", paid).Info("Reconciled pending referrals")
	}
	return paid, nil
}
