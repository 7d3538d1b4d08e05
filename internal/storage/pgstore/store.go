// Package pgstore keeps the ledger in PostgreSQL through bun over a pgx
// pool. Conditional balance updates are single UPDATE statements, so the
// row lock Postgres takes is the only coordination needed.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

type Store struct {
	pool *pgxpool.Pool
	db   *bun.DB
}

var _ storage.Store = (*Store)(nil)

func New(ctx context.Context, dsn string, poolSize int) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if poolSize > 0 {
		poolConfig.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, db: db}, nil
}

// Reset truncates every ledger table.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE TABLE accounts, user_stats, search_history, daily_claims, settings`)
	if err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	err := s.db.Close()
	s.pool.Close()
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Accounts ---------------------------------------------------------------

func (s *Store) CreateAccountIfAbsent(ctx context.Context, acct *models.Account) (bool, error) {
	res, err := s.db.NewInsert().
		Model(newAccountRow(acct)).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	row := new(accountRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (s *Store) IncrementAccount(ctx context.Context, userID int64, field models.AccountField, delta int64, guard storage.Guard) (int64, error) {
	col := bun.Ident(string(field))

	var (
		query string
		args  []interface{}
	)
	switch guard.Mode {
	case storage.GuardFloor:
		query = `UPDATE accounts SET ? = ? + ? WHERE user_id = ? AND ? + ? >= ? RETURNING ?`
		args = []interface{}{col, col, delta, userID, col, delta, guard.Floor, col}
	case storage.GuardClamp:
		query = `UPDATE accounts SET ? = GREATEST(? + ?, ?) WHERE user_id = ? RETURNING ?`
		args = []interface{}{col, col, delta, guard.Floor, userID, col}
	default:
		query = `UPDATE accounts SET ? = ? + ? WHERE user_id = ? RETURNING ?`
		args = []interface{}{col, col, delta, userID, col}
	}

	var next int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to increment %s: %w", field, err)
	}

	// No row came back: either the account is missing or the guard held.
	var current int64
	err = s.db.NewSelect().
		Model((*accountRow)(nil)).
		ColumnExpr("?", col).
		Where("user_id = ?", userID).
		Scan(ctx, &current)
	if err != nil {
		return 0, notFound(err)
	}
	return current, storage.ErrConditionFailed
}

func (s *Store) SetDailyStreak(ctx context.Context, userID int64, streak int64) error {
	return requireRow(s.db.NewUpdate().
		Model((*accountRow)(nil)).
		Set("daily_streak = ?", streak).
		Where("user_id = ?", userID).
		Exec(ctx))
}

func (s *Store) TouchAccount(ctx context.Context, userID int64, at time.Time) error {
	return requireRow(s.db.NewUpdate().
		Model((*accountRow)(nil)).
		Set("last_active_at = ?", at).
		Where("user_id = ?", userID).
		Exec(ctx))
}

func (s *Store) SetBanned(ctx context.Context, userID int64, banned bool, at time.Time) error {
	var banAt *time.Time
	if banned {
		banAt = &at
	}
	return requireRow(s.db.NewUpdate().
		Model((*accountRow)(nil)).
		Set("banned = ?", banned).
		Set("ban_at = ?", banAt).
		Where("user_id = ?", userID).
		Exec(ctx))
}

func (s *Store) MarkReferralRewarded(ctx context.Context, userID int64) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*accountRow)(nil)).
		Set("referral_rewarded = TRUE").
		Where("user_id = ?", userID).
		Where("NOT referral_rewarded").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	exists, err := s.db.NewSelect().Model((*accountRow)(nil)).Where("user_id = ?", userID).Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) FindAccountsByName(ctx context.Context, query string, limit int) ([]*models.Account, error) {
	var rows []*accountRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("name ILIKE ?", "%"+likeEscaper.Replace(query)+"%").
		OrderExpr("joined_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to search names: %w", err)
	}
	return accountModels(rows), nil
}

func (s *Store) PendingReferrals(ctx context.Context, joinedBefore time.Time, limit int) ([]*models.Account, error) {
	var rows []*accountRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("referrer_id IS NOT NULL").
		Where("NOT referral_rewarded").
		Where("joined_at < ?", joinedBefore).
		OrderExpr("joined_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list pending referrals: %w", err)
	}
	return accountModels(rows), nil
}

func accountModels(rows []*accountRow) []*models.Account {
	out := make([]*models.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

// Stats ------------------------------------------------------------------

func (s *Store) IncrementStats(ctx context.Context, userID int64, deltas map[models.StatField]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	st := &models.UserStats{UserID: userID}
	q := s.db.NewInsert().On("CONFLICT (user_id) DO UPDATE")
	for _, field := range models.StatFields {
		delta, ok := deltas[field]
		if !ok {
			continue
		}
		st.Add(field, delta)
		col := bun.Ident(string(field))
		q = q.Set("? = us.? + EXCLUDED.?", col, col, col)
	}

	row := &statsRow{
		UserID:             userID,
		TotalSearches:      st.TotalSearches,
		SuccessfulSearches: st.SuccessfulSearches,
		FailedSearches:     st.FailedSearches,
		CreditsEarned:      st.CreditsEarned,
		CreditsSpent:       st.CreditsSpent,
	}
	if _, err := q.Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	row := new(statsRow)
	if err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

// Searches ---------------------------------------------------------------

func (s *Store) AppendSearch(ctx context.Context, rec *models.SearchRecord) error {
	row := &searchRow{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Term:       rec.Term,
		Kind:       string(rec.Kind),
		Succeeded:  rec.Succeeded,
		Payload:    string(rec.Payload),
		OccurredAt: rec.OccurredAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append search: %w", err)
	}
	return nil
}

func (s *Store) ListSearches(ctx context.Context, userID int64, limit, offset int) ([]*models.SearchRecord, error) {
	var rows []*searchRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		OrderExpr("occurred_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}

	out := make([]*models.SearchRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (s *Store) CountSearches(ctx context.Context, userID int64) (int64, error) {
	n, err := s.db.NewSelect().Model((*searchRow)(nil)).Where("user_id = ?", userID).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return int64(n), nil
}

// Claims -----------------------------------------------------------------

func (s *Store) InsertClaim(ctx context.Context, claim *models.DailyClaim) error {
	row := &claimRow{
		UserID:    claim.UserID,
		Day:       claim.Day,
		ClaimedAt: claim.ClaimedAt,
		Amount:    claim.Amount,
	}
	res, err := s.db.NewInsert().Model(row).On("CONFLICT (user_id, day) DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrDuplicate
	}
	return nil
}

func (s *Store) HasClaim(ctx context.Context, userID int64, day string) (bool, error) {
	return s.db.NewSelect().
		Model((*claimRow)(nil)).
		Where("user_id = ?", userID).
		Where("day = ?", day).
		Exists(ctx)
}

// Settings ---------------------------------------------------------------

func (s *Store) InitSettings(ctx context.Context, defaults models.Settings) (*models.Settings, error) {
	_, err := s.db.NewInsert().
		Model(newSettingsRow(defaults)).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init settings: %w", err)
	}
	return s.GetSettings(ctx)
}

func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	row := new(settingsRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", settingsID).Scan(ctx); err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

func (s *Store) UpdateSetting(ctx context.Context, key models.SettingKey, src models.Settings) error {
	return requireRow(s.db.NewUpdate().
		Model(newSettingsRow(src)).
		Column(string(key)).
		WherePK().
		Exec(ctx))
}

// Aggregates -------------------------------------------------------------

func (s *Store) CountAccounts(ctx context.Context, filter storage.AccountFilter) (int64, error) {
	q := s.db.NewSelect().Model((*accountRow)(nil))
	if filter.JoinedSince != nil {
		q = q.Where("joined_at >= ?", *filter.JoinedSince)
	}
	if filter.ActiveSince != nil {
		q = q.Where("last_active_at >= ?", *filter.ActiveSince)
	}
	if filter.CreditsAbove != nil {
		q = q.Where("credits > ?", *filter.CreditsAbove)
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return int64(n), nil
}

func (s *Store) SumCredits(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.NewSelect().
		Model((*accountRow)(nil)).
		ColumnExpr("COALESCE(SUM(credits), 0)").
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum credits: %w", err)
	}
	return sum, nil
}

func (s *Store) SumStats(ctx context.Context, field models.StatField) (int64, error) {
	var sum int64
	err := s.db.NewSelect().
		Model((*statsRow)(nil)).
		ColumnExpr("COALESCE(SUM(?), 0)", bun.Ident(string(field))).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s: %w", field, err)
	}
	return sum, nil
}

func (s *Store) TopReferrers(ctx context.Context, limit int) ([]models.ReferrerCount, error) {
	var rows []struct {
		UserID    int64 `bun:"user_id"`
		Referrals int64 `bun:"referrals"`
	}
	q := s.db.NewSelect().
		Model((*accountRow)(nil)).
		ColumnExpr("referrer_id AS user_id").
		ColumnExpr("COUNT(*) AS referrals").
		Where("referrer_id IS NOT NULL").
		Group("referrer_id").
		OrderExpr("referrals DESC, referrer_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	out := make([]models.ReferrerCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ReferrerCount{UserID: r.UserID, Referrals: r.Referrals})
	}
	return out, nil
}

func (s *Store) ScanAccounts(ctx context.Context, q storage.ScanQuery) ([]*models.LeaderboardEntry, error) {
	var rows []*accountRow
	sel := s.db.NewSelect().Model(&rows)

	switch q.SortBy {
	case models.SortBySearches:
		sel = sel.Join("LEFT JOIN user_stats AS us ON us.user_id = a.user_id").
			OrderExpr("COALESCE(us.total_searches, 0) DESC, a.joined_at ASC, a.user_id ASC")
	case models.SortByJoined:
		sel = sel.OrderExpr("a.joined_at DESC, a.user_id DESC")
	default:
		sel = sel.OrderExpr("a.credits DESC, a.joined_at ASC, a.user_id ASC")
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	sel = sel.Offset(q.Offset)

	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %w", err)
	}
	if len(rows) == 0 {
		return []*models.LeaderboardEntry{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	var stats []*statsRow
	if err := s.db.NewSelect().Model(&stats).Where("user_id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	byUser := make(map[int64]*models.UserStats, len(stats))
	for _, st := range stats {
		byUser[st.UserID] = st.model()
	}

	entries := make([]*models.LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		st, ok := byUser[r.UserID]
		if !ok {
			st = &models.UserStats{UserID: r.UserID}
		}
		entries = append(entries, &models.LeaderboardEntry{
			Position: int64(q.Offset + i + 1),
			Account:  r.model(),
			Stats:    st,
		})
	}
	return entries, nil
}
