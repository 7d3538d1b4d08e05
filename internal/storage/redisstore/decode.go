package redisstore

import (
	"fmt"
	"strconv"
	"time"

	"infobot-backend/internal/models"
)

func parseInt(data map[string]string, field string) int64 {
	v, _ := strconv.ParseInt(data[field], 10, 64)
	return v
}

func parseMillis(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

func decodeAccount(data map[string]string) (*models.Account, error) {
	userID, err := strconv.ParseInt(data["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt account hash: %w", err)
	}

	acct := &models.Account{
		UserID:           userID,
		Name:             data["name"],
		Credits:          parseInt(data, "credits"),
		ReferralRewarded: data["referral_rewarded"] == "1",
		Banned:           data["banned"] == "1",
		DailyStreak:      parseInt(data, "daily_streak"),
	}

	if raw := data["referrer_id"]; raw != "" {
		ref, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			acct.ReferrerID = &ref
		}
	}
	acct.JoinedAt, _ = parseMillis(data["joined_at"])
	acct.LastActiveAt, _ = parseMillis(data["last_active_at"])
	if at, ok := parseMillis(data["ban_at"]); ok {
		acct.BanAt = &at
	}
	return acct, nil
}

func decodeStats(userID int64, data map[string]string) *models.UserStats {
	st := &models.UserStats{UserID: userID}
	for _, field := range models.StatFields {
		st.Add(field, parseInt(data, string(field)))
	}
	return st
}
