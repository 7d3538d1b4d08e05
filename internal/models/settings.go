package models

import (
	"strconv"
	"strings"
	"time"
)

type SettingKey string

const (
	SettingDailyBonusEnabled       SettingKey = "daily_bonus_enabled"
	SettingDailyBonusAmount        SettingKey = "daily_bonus_amount"
	SettingWelcomeBonusEnabled     SettingKey = "welcome_bonus_enabled"
	SettingWelcomeBonusAmount      SettingKey = "welcome_bonus_amount"
	SettingResultExpirationEnabled SettingKey = "result_expiration_enabled"
	SettingResultExpireSeconds     SettingKey = "result_expire_seconds"
)

var SettingKeys = []SettingKey{
	SettingDailyBonusEnabled,
	SettingDailyBonusAmount,
	SettingWelcomeBonusEnabled,
	SettingWelcomeBonusAmount,
	SettingResultExpirationEnabled,
	SettingResultExpireSeconds,
}

const (
	MinBonusAmount = 1
	MaxBonusAmount = 50
)

type Settings struct {
	DailyBonusEnabled       bool  `json:"daily_bonus_enabled"`
	DailyBonusAmount        int64 `json:"daily_bonus_amount"`
	WelcomeBonusEnabled     bool  `json:"welcome_bonus_enabled"`
	WelcomeBonusAmount      int64 `json:"welcome_bonus_amount"`
	ResultExpirationEnabled bool  `json:"result_expiration_enabled"`
	ResultExpireSeconds     int64 `json:"result_expire_seconds"`
}

func DefaultSettings() Settings {
	return Settings{
		DailyBonusEnabled:       true,
		DailyBonusAmount:        1,
		WelcomeBonusEnabled:     true,
		WelcomeBonusAmount:      3,
		ResultExpirationEnabled: false,
		ResultExpireSeconds:     3600,
	}
}

func (k SettingKey) Valid() bool {
	for _, known := range SettingKeys {
		if k == known {
			return true
		}
	}
	return false
}

func (k SettingKey) IsToggle() bool {
	switch k {
	case SettingDailyBonusEnabled, SettingWelcomeBonusEnabled, SettingResultExpirationEnabled:
		return true
	}
	return false
}

// Set parses raw and assigns it to the field named by key. The receiver is
// left untouched when the value is rejected.
func (s *Settings) Set(key SettingKey, raw string) error {
	raw = strings.TrimSpace(raw)

	if key.IsToggle() {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return &SettingError{Key: key, Value: raw}
		}
		switch key {
		case SettingDailyBonusEnabled:
			s.DailyBonusEnabled = v
		case SettingWelcomeBonusEnabled:
			s.WelcomeBonusEnabled = v
		case SettingResultExpirationEnabled:
			s.ResultExpirationEnabled = v
		}
		return nil
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return &SettingError{Key: key, Value: raw}
	}

	switch key {
	case SettingDailyBonusAmount, SettingWelcomeBonusAmount:
		if v < MinBonusAmount || v > MaxBonusAmount {
			return &SettingError{Key: key, Value: raw}
		}
		if key == SettingDailyBonusAmount {
			s.DailyBonusAmount = v
		} else {
			s.WelcomeBonusAmount = v
		}
	case SettingResultExpireSeconds:
		if v <= 0 {
			return &SettingError{Key: key, Value: raw}
		}
		s.ResultExpireSeconds = v
	default:
		return &SettingError{Key: key, Value: raw}
	}
	return nil
}

// Value renders the field named by key the way Set parses it.
func (s Settings) Value(key SettingKey) string {
	switch key {
	case SettingDailyBonusEnabled:
		return strconv.FormatBool(s.DailyBonusEnabled)
	case SettingDailyBonusAmount:
		return strconv.FormatInt(s.DailyBonusAmount, 10)
	case SettingWelcomeBonusEnabled:
		return strconv.FormatBool(s.WelcomeBonusEnabled)
	case SettingWelcomeBonusAmount:
		return strconv.FormatInt(s.WelcomeBonusAmount, 10)
	case SettingResultExpirationEnabled:
		return strconv.FormatBool(s.ResultExpirationEnabled)
	case SettingResultExpireSeconds:
		return strconv.FormatInt(s.ResultExpireSeconds, 10)
	}
	return ""
}

// Validate checks every field against the accepted ranges.
func (s Settings) Validate() error {
	for _, key := range SettingKeys {
		probe := s
		if err := probe.Set(key, s.Value(key)); err != nil {
			return err
		}
	}
	return nil
}

// ResultExpiry reports when a result shown at occurredAt should be withdrawn.
func (s Settings) ResultExpiry(occurredAt time.Time) *time.Time {
	if !s.ResultExpirationEnabled || s.ResultExpireSeconds <= 0 {
		return nil
	}
	at := occurredAt.Add(time.Duration(s.ResultExpireSeconds) * time.Second)
	return &at
}
