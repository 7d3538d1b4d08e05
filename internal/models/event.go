package models

import "time"

type EventType string

const (
	EventAccountCreated   EventType = "account_created"
	EventCreditsCredited  EventType = "credits_credited"
	EventCreditsSpent     EventType = "credits_spent"
	EventBalanceAdjusted  EventType = "balance_adjusted"
	EventBonusClaimed     EventType = "bonus_claimed"
	EventReferralRewarded EventType = "referral_rewarded"
	EventBanChanged       EventType = "ban_changed"
	EventSettingChanged   EventType = "setting_changed"
)

// LedgerEvent is published after a state change has been stored.
type LedgerEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	UserID       int64     `json:"user_id"`
	Amount       int64     `json:"amount,omitempty"`
	BalanceAfter int64     `json:"balance_after"`
	Description  string    `json:"description,omitempty"`
	RelatedUser  int64     `json:"related_user,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewLedgerEvent(eventType EventType, userID int64, amount, balanceAfter int64, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:           GenerateEventID(),
		Type:         eventType,
		UserID:       userID,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		CreatedAt:    now,
	}
}
