// Package redisstore keeps the ledger in Redis hashes with sorted-set
// indexes. Conditional updates run as Lua scripts, so the store targets a
// single Redis node rather than a cluster.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

type Store struct {
	client *redis.Client
}

var _ storage.Store = (*Store)(nil)

func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

const maxJoinKey int64 = 1 << 53

// rankMember sorts descending in join order when scores tie, because
// ZREVRANGE breaks ties by reverse lexicographic member order.
func rankMember(userID int64, joinedAt time.Time) string {
	return fmt.Sprintf("%016d:%d", maxJoinKey-joinedAt.UnixMilli(), userID)
}

func memberUserID(member string) (int64, error) {
	idx := strings.LastIndexByte(member, ':')
	if idx < 0 {
		return strconv.ParseInt(member, 10, 64)
	}
	return strconv.ParseInt(member[idx+1:], 10, 64)
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func scriptStatus(status int64) error {
	if status < 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Accounts ---------------------------------------------------------------

func (s *Store) CreateAccountIfAbsent(ctx context.Context, acct *models.Account) (bool, error) {
	referrer := ""
	if acct.ReferrerID != nil {
		referrer = strconv.FormatInt(*acct.ReferrerID, 10)
	}

	keys := []string{
		fmt.Sprintf(KeyAccount, acct.UserID),
		KeyByCredits,
		KeyByJoined,
		KeyByActive,
		KeyBySearches,
		KeyAccountTotals,
		KeyAccountNames,
		KeyReferralCounts,
		KeyReferralPending,
	}
	args := []interface{}{
		acct.UserID,
		acct.Name,
		acct.Credits,
		referrer,
		millis(acct.JoinedAt),
		strings.ToLower(acct.Name),
		rankMember(acct.UserID, acct.JoinedAt),
		millis(acct.LastActiveAt),
		acct.DailyStreak,
		boolFlag(acct.ReferralRewarded),
	}

	created, err := createAccountScript.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to create account: %w", err)
	}
	return created == 1, nil
}

func (s *Store) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	data, err := s.client.HGetAll(ctx, fmt.Sprintf(KeyAccount, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return decodeAccount(data)
}

func (s *Store) IncrementAccount(ctx context.Context, userID int64, field models.AccountField, delta int64, guard storage.Guard) (int64, error) {
	mode := "none"
	switch guard.Mode {
	case storage.GuardFloor:
		mode = "floor"
	case storage.GuardClamp:
		mode = "clamp"
	}

	keys := []string{fmt.Sprintf(KeyAccount, userID), KeyByCredits, KeyAccountTotals}
	res, err := incrementScript.Run(ctx, s.client, keys, string(field), delta, mode, guard.Floor).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", field, err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected increment reply: %v", res)
	}

	switch res[0] {
	case -1:
		return 0, storage.ErrNotFound
	case 0:
		return res[1], storage.ErrConditionFailed
	}
	return res[1], nil
}

func (s *Store) SetDailyStreak(ctx context.Context, userID int64, streak int64) error {
	key := fmt.Sprintf(KeyAccount, userID)
	status, err := setFieldScript.Run(ctx, s.client, []string{key}, string(models.FieldDailyStreak), streak).Int64()
	if err != nil {
		return fmt.Errorf("failed to set streak: %w", err)
	}
	return scriptStatus(status)
}

func (s *Store) TouchAccount(ctx context.Context, userID int64, at time.Time) error {
	keys := []string{fmt.Sprintf(KeyAccount, userID), KeyByActive}
	status, err := touchScript.Run(ctx, s.client, keys, millis(at)).Int64()
	if err != nil {
		return fmt.Errorf("failed to touch account: %w", err)
	}
	return scriptStatus(status)
}

func (s *Store) SetBanned(ctx context.Context, userID int64, banned bool, at time.Time) error {
	banAt := ""
	if banned {
		banAt = millis(at)
	}

	key := fmt.Sprintf(KeyAccount, userID)
	status, err := banScript.Run(ctx, s.client, []string{key}, boolFlag(banned), banAt).Int64()
	if err != nil {
		return fmt.Errorf("failed to set ban: %w", err)
	}
	return scriptStatus(status)
}

func (s *Store) MarkReferralRewarded(ctx context.Context, userID int64) (bool, error) {
	keys := []string{fmt.Sprintf(KeyAccount, userID), KeyReferralPending}
	status, err := markReferralScript.Run(ctx, s.client, keys, userID).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to mark referral: %w", err)
	}
	if err := scriptStatus(status); err != nil {
		return false, err
	}
	return status == 1, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *Store) FindAccountsByName(ctx context.Context, query string, limit int) ([]*models.Account, error) {
	pattern := "*" + globEscaper.Replace(strings.ToLower(query)) + "*"

	var (
		ids    []int64
		cursor uint64
	)
	for {
		kvs, next, err := s.client.HScan(ctx, KeyAccountNames, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan names: %w", err)
		}
		for i := 0; i+1 < len(kvs); i += 2 {
			id, err := strconv.ParseInt(kvs[i], 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		cursor = next
		if cursor == 0 || (limit > 0 && len(ids) >= limit) {
			break
		}
	}

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return s.bulkGetAccounts(ctx, ids)
}

func (s *Store) PendingReferrals(ctx context.Context, joinedBefore time.Time, limit int) ([]*models.Account, error) {
	members, err := s.client.ZRangeByScore(ctx, KeyReferralPending, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + millis(joinedBefore),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending referrals: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return s.bulkGetAccounts(ctx, ids)
}

func (s *Store) bulkGetAccounts(ctx context.Context, ids []int64) ([]*models.Account, error) {
	if len(ids) == 0 {
		return []*models.Account{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, fmt.Sprintf(KeyAccount, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	accounts := make([]*models.Account, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}
		acct, err := decodeAccount(data)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// Stats ------------------------------------------------------------------

func (s *Store) IncrementStats(ctx context.Context, userID int64, deltas map[models.StatField]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(deltas)*2)
	for _, field := range models.StatFields {
		if delta, ok := deltas[field]; ok {
			args = append(args, string(field), delta)
		}
	}

	keys := []string{
		fmt.Sprintf(KeyStats, userID),
		KeyStatsTotals,
		KeyBySearches,
		fmt.Sprintf(KeyAccount, userID),
	}
	if err := incrementStatsScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

func (s *Store) GetStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	data, err := s.client.HGetAll(ctx, fmt.Sprintf(KeyStats, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}
	return decodeStats(userID, data), nil
}

// Searches ---------------------------------------------------------------

func (s *Store) AppendSearch(ctx context.Context, rec *models.SearchRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal search: %w", err)
	}
	return s.client.LPush(ctx, fmt.Sprintf(KeySearches, rec.UserID), data).Err()
}

func (s *Store) ListSearches(ctx context.Context, userID int64, limit, offset int) ([]*models.SearchRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	items, err := s.client.LRange(ctx, fmt.Sprintf(KeySearches, userID), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list searches: %w", err)
	}

	records := make([]*models.SearchRecord, 0, len(items))
	for _, item := range items {
		var rec models.SearchRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (s *Store) CountSearches(ctx context.Context, userID int64) (int64, error) {
	n, err := s.client.LLen(ctx, fmt.Sprintf(KeySearches, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count searches: %w", err)
	}
	return n, nil
}

// Claims -----------------------------------------------------------------

func (s *Store) InsertClaim(ctx context.Context, claim *models.DailyClaim) error {
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}

	key := fmt.Sprintf(KeyDailyClaim, claim.UserID, claim.Day)
	ok, err := s.client.SetNX(ctx, key, data, TTLDailyClaim).Result()
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	if !ok {
		return storage.ErrDuplicate
	}
	return nil
}

func (s *Store) HasClaim(ctx context.Context, userID int64, day string) (bool, error) {
	n, err := s.client.Exists(ctx, fmt.Sprintf(KeyDailyClaim, userID, day)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return n == 1, nil
}

// Settings ---------------------------------------------------------------

func (s *Store) InitSettings(ctx context.Context, defaults models.Settings) (*models.Settings, error) {
	pipe := s.client.TxPipeline()
	for _, key := range models.SettingKeys {
		pipe.HSetNX(ctx, KeySettings, string(key), defaults.Value(key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to init settings: %w", err)
	}
	return s.GetSettings(ctx)
}

func (s *Store) GetSettings(ctx context.Context) (*models.Settings, error) {
	data, err := s.client.HGetAll(ctx, KeySettings).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	settings := models.DefaultSettings()
	for _, key := range models.SettingKeys {
		raw, ok := data[string(key)]
		if !ok {
			continue
		}
		if err := settings.Set(key, raw); err != nil {
			return nil, err
		}
	}
	return &settings, nil
}

func (s *Store) UpdateSetting(ctx context.Context, key models.SettingKey, src models.Settings) error {
	return s.client.HSet(ctx, KeySettings, string(key), src.Value(key)).Err()
}

// Aggregates -------------------------------------------------------------

func (s *Store) CountAccounts(ctx context.Context, filter storage.AccountFilter) (int64, error) {
	if !filter.Single() {
		return 0, storage.ErrUnsupportedFilter
	}

	var cmd *redis.IntCmd
	switch {
	case filter.JoinedSince != nil:
		cmd = s.client.ZCount(ctx, KeyByJoined, millis(*filter.JoinedSince), "+inf")
	case filter.ActiveSince != nil:
		cmd = s.client.ZCount(ctx, KeyByActive, millis(*filter.ActiveSince), "+inf")
	case filter.CreditsAbove != nil:
		cmd = s.client.ZCount(ctx, KeyByCredits, "("+strconv.FormatInt(*filter.CreditsAbove, 10), "+inf")
	default:
		cmd = s.client.ZCard(ctx, KeyByJoined)
	}

	n, err := cmd.Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

func (s *Store) SumCredits(ctx context.Context) (int64, error) {
	return s.hashCounter(ctx, KeyAccountTotals, string(models.FieldCredits))
}

func (s *Store) SumStats(ctx context.Context, field models.StatField) (int64, error) {
	return s.hashCounter(ctx, KeyStatsTotals, string(field))
}

func (s *Store) hashCounter(ctx context.Context, key, field string) (int64, error) {
	n, err := s.client.HGet(ctx, key, field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) TopReferrers(ctx context.Context, limit int) ([]models.ReferrerCount, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	zs, err := s.client.ZRevRangeWithScores(ctx, KeyReferralCounts, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read referral counts: %w", err)
	}

	out := make([]models.ReferrerCount, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, models.ReferrerCount{UserID: id, Referrals: int64(z.Score)})
	}
	return out, nil
}

func (s *Store) ScanAccounts(ctx context.Context, q storage.ScanQuery) ([]*models.LeaderboardEntry, error) {
	index := KeyByCredits
	switch q.SortBy {
	case models.SortBySearches:
		index = KeyBySearches
	case models.SortByJoined:
		index = KeyByJoined
	}

	stop := int64(-1)
	if q.Limit > 0 {
		stop = int64(q.Offset + q.Limit - 1)
	}
	members, err := s.client.ZRevRange(ctx, index, int64(q.Offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", index, err)
	}
	if len(members) == 0 {
		return []*models.LeaderboardEntry{}, nil
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := memberUserID(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	pipe := s.client.Pipeline()
	accountCmds := make([]*redis.MapStringStringCmd, len(ids))
	statsCmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		accountCmds[i] = pipe.HGetAll(ctx, fmt.Sprintf(KeyAccount, id))
		statsCmds[i] = pipe.HGetAll(ctx, fmt.Sprintf(KeyStats, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}

	entries := make([]*models.LeaderboardEntry, 0, len(ids))
	for i, id := range ids {
		data, err := accountCmds[i].Result()
		if err != nil || len(data) == 0 {
			continue
		}
		acct, err := decodeAccount(data)
		if err != nil {
			return nil, err
		}
		statsData, _ := statsCmds[i].Result()
		entries = append(entries, &models.LeaderboardEntry{
			Position: int64(q.Offset + i + 1),
			Account:  acct,
			Stats:    decodeStats(id, statsData),
		})
	}
	return entries, nil
}
