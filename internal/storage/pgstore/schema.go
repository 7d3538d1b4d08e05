package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"infobot-backend/internal/models"
)

type accountRow struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	UserID           int64      `bun:"user_id,pk"`
	Name             string     `bun:"name,notnull"`
	Credits          int64      `bun:"credits,notnull"`
	ReferrerID       *int64     `bun:"referrer_id"`
	ReferralRewarded bool       `bun:"referral_rewarded,notnull"`
	JoinedAt         time.Time  `bun:"joined_at,notnull,type:timestamptz"`
	LastActiveAt     time.Time  `bun:"last_active_at,notnull,type:timestamptz"`
	Banned           bool       `bun:"banned,notnull"`
	BanAt            *time.Time `bun:"ban_at,type:timestamptz"`
	DailyStreak      int64      `bun:"daily_streak,notnull"`
}

func newAccountRow(a *models.Account) *accountRow {
	return &accountRow{
		UserID:           a.UserID,
		Name:             a.Name,
		Credits:          a.Credits,
		ReferrerID:       a.ReferrerID,
		ReferralRewarded: a.ReferralRewarded,
		JoinedAt:         a.JoinedAt,
		LastActiveAt:     a.LastActiveAt,
		Banned:           a.Banned,
		BanAt:            a.BanAt,
		DailyStreak:      a.DailyStreak,
	}
}

func (r *accountRow) model() *models.Account {
	return &models.Account{
		UserID:           r.UserID,
		Name:             r.Name,
		Credits:          r.Credits,
		ReferrerID:       r.ReferrerID,
		ReferralRewarded: r.ReferralRewarded,
		JoinedAt:         r.JoinedAt,
		LastActiveAt:     r.LastActiveAt,
		Banned:           r.Banned,
		BanAt:            r.BanAt,
		DailyStreak:      r.DailyStreak,
	}
}

type statsRow struct {
	bun.BaseModel `bun:"table:user_stats,alias:us"`

	UserID             int64 `bun:"user_id,pk"`
	TotalSearches      int64 `bun:"total_searches,notnull"`
	SuccessfulSearches int64 `bun:"successful_searches,notnull"`
	FailedSearches     int64 `bun:"failed_searches,notnull"`
	CreditsEarned      int64 `bun:"credits_earned,notnull"`
	CreditsSpent       int64 `bun:"credits_spent,notnull"`
}

func (r *statsRow) model() *models.UserStats {
	return &models.UserStats{
		UserID:             r.UserID,
		TotalSearches:      r.TotalSearches,
		SuccessfulSearches: r.SuccessfulSearches,
		FailedSearches:     r.FailedSearches,
		CreditsEarned:      r.CreditsEarned,
		CreditsSpent:       r.CreditsSpent,
	}
}

type searchRow struct {
	bun.BaseModel `bun:"table:search_history,alias:sh"`

	ID         string    `bun:"id,pk"`
	UserID     int64     `bun:"user_id,notnull"`
	Term       string    `bun:"term,notnull"`
	Kind       string    `bun:"kind,notnull"`
	Succeeded  bool      `bun:"succeeded,notnull"`
	Payload    string    `bun:"payload,type:jsonb,nullzero"`
	OccurredAt time.Time `bun:"occurred_at,notnull,type:timestamptz"`
}

func (r *searchRow) model() *models.SearchRecord {
	rec := &models.SearchRecord{
		ID:         r.ID,
		UserID:     r.UserID,
		Term:       r.Term,
		Kind:       models.SearchKind(r.Kind),
		Succeeded:  r.Succeeded,
		OccurredAt: r.OccurredAt,
	}
	if r.Payload != "" {
		rec.Payload = []byte(r.Payload)
	}
	return rec
}

type claimRow struct {
	bun.BaseModel `bun:"table:daily_claims,alias:dc"`

	UserID    int64     `bun:"user_id,pk"`
	Day       string    `bun:"day,pk"`
	ClaimedAt time.Time `bun:"claimed_at,notnull,type:timestamptz"`
	Amount    int64     `bun:"amount,notnull"`
}

const settingsID = "main"

type settingsRow struct {
	bun.BaseModel `bun:"table:settings,alias:st"`

	ID                      string `bun:"id,pk"`
	DailyBonusEnabled       bool   `bun:"daily_bonus_enabled,notnull"`
	DailyBonusAmount        int64  `bun:"daily_bonus_amount,notnull"`
	WelcomeBonusEnabled     bool   `bun:"welcome_bonus_enabled,notnull"`
	WelcomeBonusAmount      int64  `bun:"welcome_bonus_amount,notnull"`
	ResultExpirationEnabled bool   `bun:"result_expiration_enabled,notnull"`
	ResultExpireSeconds     int64  `bun:"result_expire_seconds,notnull"`
}

func newSettingsRow(s models.Settings) *settingsRow {
	return &settingsRow{
		ID:                      settingsID,
		DailyBonusEnabled:       s.DailyBonusEnabled,
		DailyBonusAmount:        s.DailyBonusAmount,
		WelcomeBonusEnabled:     s.WelcomeBonusEnabled,
		WelcomeBonusAmount:      s.WelcomeBonusAmount,
		ResultExpirationEnabled: s.ResultExpirationEnabled,
		ResultExpireSeconds:     s.ResultExpireSeconds,
	}
}

func (r *settingsRow) model() *models.Settings {
	return &models.Settings{
		DailyBonusEnabled:       r.DailyBonusEnabled,
		DailyBonusAmount:        r.DailyBonusAmount,
		WelcomeBonusEnabled:     r.WelcomeBonusEnabled,
		WelcomeBonusAmount:      r.WelcomeBonusAmount,
		ResultExpirationEnabled: r.ResultExpirationEnabled,
		ResultExpireSeconds:     r.ResultExpireSeconds,
	}
}

var tables = []interface{}{
	(*accountRow)(nil),
	(*statsRow)(nil),
	(*searchRow)(nil),
	(*claimRow)(nil),
	(*settingsRow)(nil),
}

type index struct {
	name    string
	model   interface{}
	columns []string
}

var indexes = []index{
	{"accounts_credits_idx", (*accountRow)(nil), []string{"credits DESC", "joined_at"}},
	{"accounts_joined_idx", (*accountRow)(nil), []string{"joined_at"}},
	{"accounts_active_idx", (*accountRow)(nil), []string{"last_active_at"}},
	{"accounts_referrer_idx", (*accountRow)(nil), []string{"referrer_id"}},
	{"search_history_user_idx", (*searchRow)(nil), []string{"user_id", "occurred_at DESC"}},
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).IfNotExists()
		for _, col := range idx.columns {
			q = q.ColumnExpr(col)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}
