package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUserBanned          = errors.New("user is banned")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyClaimedToday = errors.New("daily bonus already claimed today")
	ErrBonusDisabled       = errors.New("daily bonus is disabled")
	ErrInvalidSettingValue = errors.New("invalid setting value")
	ErrLookupFailed        = errors.New("lookup failed")
	ErrStorageUnavailable  = errors.New("storage unavailable")

	ErrSelfReferral = errors.New("self referral is not allowed")
	ErrBotReferral  = errors.New("bot accounts cannot be referred")
	ErrTaskNotFound = errors.New("no pending admin task")
)

type AlreadyClaimedError struct {
	Remaining time.Duration
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("%s: next claim in %s", ErrAlreadyClaimedToday, e.Remaining.Truncate(time.Minute))
}

func (e *AlreadyClaimedError) Unwrap() error {
	return ErrAlreadyClaimedToday
}

type LookupError struct {
	Reason string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %s", ErrLookupFailed, e.Reason)
}

func (e *LookupError) Unwrap() error {
	return ErrLookupFailed
}

type SettingError struct {
	Key   SettingKey
	Value string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("%s: %s=%q", ErrInvalidSettingValue, e.Key, e.Value)
}

func (e *SettingError) Unwrap() error {
	return ErrInvalidSettingValue
}
