package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

type EngineOptions struct {
	// Location decides where calendar days start for bonuses and analytics.
	Location     *time.Location
	AdminTaskTTL time.Duration
	Now          func() time.Time
}

// Engine is the adapter-facing API. It owns the ban gate and activity
// tracking for user-initiated calls and hands the current settings snapshot
// to every engine call.
type Engine struct {
	accounts  *AccountService
	ledger    *Ledger
	bonus     *BonusEngine
	referrals *ReferralEngine
	search    *SearchService
	ranks     *RankService
	analytics *Analytics
	settings  *SettingsService
	tasks     *AdminTasks
	log       *logrus.Entry
}

func NewEngine(store storage.Store, lookup LookupClient, broadcaster Broadcaster, opts EngineOptions) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.AdminTaskTTL <= 0 {
		opts.AdminTaskTTL = 5 * time.Minute
	}
	if broadcaster == nil {
		broadcaster = NoopBroadcaster
	}

	accounts := NewAccountService(store, broadcaster, opts.Now)
	ledger := NewLedger(store, broadcaster, opts.Now)
	settings := NewSettingsService(store, broadcaster, opts.Now)

	return &Engine{
		accounts:  accounts,
		ledger:    ledger,
		bonus:     NewBonusEngine(store, ledger, broadcaster, opts.Location, opts.Now),
		referrals: NewReferralEngine(store, accounts, ledger, broadcaster, opts.Now),
		search:    NewSearchService(store, ledger, lookup, opts.Now),
		ranks:     NewRankService(store),
		analytics: NewAnalytics(store, opts.Location, opts.Now),
		settings:  settings,
		tasks:     NewAdminTasks(opts.AdminTaskTTL, accounts, ledger, settings, opts.Now),
		log:       logger.Component("engine"),
	}
}

// Init loads or creates the settings record. Call once before serving.
func (e *Engine) Init(ctx context.Context) error {
	settings, err := e.settings.Init(ctx)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"daily_bonus":   settings.DailyBonusAmount,
		"welcome_bonus": settings.WelcomeBonusAmount,
	}).Info("Settings loaded")
	return nil
}

// Wait blocks until background activity updates have finished.
func (e *Engine) Wait() {
	e.accounts.Wait()
}

func (e *Engine) Referrals() *ReferralEngine { return e.referrals }

func (e *Engine) SettingsService() *SettingsService { return e.settings }

func (e *Engine) Tasks() *AdminTasks { return e.tasks }

// OnFirstContact creates the account on first sight and marks it active
// otherwise. Banned accounts are returned as is; the gate applies to paid
// and rewarding calls.
func (e *Engine) OnFirstContact(ctx context.Context, userID int64, name string) (*models.Account, bool, error) {
	acct, created, err := e.accounts.CreateIfAbsent(ctx, userID, name, nil, e.settings.Current())
	if err != nil {
		return nil, false, err
	}
	if !created {
		e.accounts.MarkActive(userID)
	}
	return acct, created, nil
}

// active loads the account, rejects banned users and records activity.
func (e *Engine) active(ctx context.Context, userID int64) (*models.Account, error) {
	acct, err := e.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct.Banned {
		return nil, models.ErrUserBanned
	}
	e.accounts.MarkActive(userID)
	return acct, nil
}

func (e *Engine) TrySpendForSearch(ctx context.Context, userID int64) (int64, error) {
	if _, err := e.active(ctx, userID); err != nil {
		return 0, err
	}
	return e.search.TrySpend(ctx, userID)
}

func (e *Engine) RecordSearchOutcome(ctx context.Context, userID int64, term string, succeeded bool, payload json.RawMessage) (*models.SearchRecord, error) {
	term, kind, err := models.ClassifyTerm(term)
	if err != nil {
		return nil, err
	}
	if _, err := e.accounts.Get(ctx, userID); err != nil {
		return nil, err
	}
	return e.search.RecordOutcome(ctx, userID, term, kind, succeeded, payload)
}

// Search creates the account if needed and runs one paid lookup.
func (e *Engine) Search(ctx context.Context, userID int64, name, term string) (*models.SearchOutcome, error) {
	settings := e.settings.Current()

	acct, _, err := e.accounts.CreateIfAbsent(ctx, userID, name, nil, settings)
	if err != nil {
		return nil, err
	}
	if acct.Banned {
		return nil, models.ErrUserBanned
	}
	e.accounts.MarkActive(userID)

	return e.search.Run(ctx, acct, term, settings)
}

func (e *Engine) ClaimDailyBonus(ctx context.Context, userID int64) (*models.BonusResult, error) {
	if _, err := e.active(ctx, userID); err != nil {
		return nil, err
	}
	return e.bonus.ClaimToday(ctx, userID, e.settings.Current())
}

func (e *Engine) BonusStatus(ctx context.Context, userID int64) (*models.BonusStatus, error) {
	return e.bonus.Status(ctx, userID, e.settings.Current())
}

// ProcessReferral expects self and bot referrals to be filtered already.
func (e *Engine) ProcessReferral(ctx context.Context, newUserID, referrerID int64, name string) (*models.ReferralResult, error) {
	if newUserID == referrerID {
		return nil, models.ErrSelfReferral
	}
	return e.referrals.Process(ctx, newUserID, referrerID, name, e.settings.Current())
}

func (e *Engine) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	return e.ranks.Profile(ctx, userID)
}

func (e *Engine) GetRank(ctx context.Context, userID int64) (int64, error) {
	return e.ranks.Rank(ctx, userID)
}

func (e *Engine) GetLeaderboard(ctx context.Context, limit int, sortBy models.SortBy) ([]*models.LeaderboardEntry, error) {
	return e.ranks.Leaderboard(ctx, limit, sortBy)
}

func (e *Engine) GetHistory(ctx context.Context, userID int64, page, pageSize int) (*models.HistoryPage, error) {
	if _, err := e.accounts.Get(ctx, userID); err != nil {
		return nil, err
	}
	return e.search.History(ctx, userID, page, pageSize)
}

func (e *Engine) AdminAdjustCredits(ctx context.Context, userID, delta int64) (*models.Account, error) {
	if _, err := e.ledger.AdminAdjust(ctx, userID, delta); err != nil {
		return nil, err
	}
	return e.accounts.Get(ctx, userID)
}

func (e *Engine) AdminSetBan(ctx context.Context, userID int64, banned bool) (*models.Account, error) {
	return e.accounts.SetBanned(ctx, userID, banned)
}

func (e *Engine) AdminGetAnalytics(ctx context.Context) (*models.Analytics, error) {
	return e.analytics.Snapshot(ctx)
}

func (e *Engine) AdminFindUsers(ctx context.Context, query string) ([]*models.Account, error) {
	return e.accounts.Find(ctx, query, findUserLimit)
}

func (e *Engine) AdminListUsers(ctx context.Context, page, pageSize int) ([]*models.Account, int64, error) {
	return e.accounts.List(ctx, page, pageSize)
}

func (e *Engine) GetSettings() models.Settings {
	return e.settings.Current()
}

func (e *Engine) UpdateSetting(ctx context.Context, key models.SettingKey, raw string) (models.Settings, error) {
	return e.settings.Update(ctx, key, raw)
}
