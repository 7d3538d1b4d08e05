package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/models"
)

const (
	maxOpenTasks  = 1024
	findUserLimit = 10
)

// AdminTasks holds at most one pending ask-and-wait interaction per admin.
// A task is consumed by Submit or Cancel, or disappears when its TTL runs out.
type AdminTasks struct {
	tasks    *expirable.LRU[int64, *models.AdminTask]
	ttl      time.Duration
	accounts *AccountService
	ledger   *Ledger
	settings *SettingsService
	now      func() time.Time
	log      *logrus.Entry
}

func NewAdminTasks(ttl time.Duration, accounts *AccountService, ledger *Ledger, settings *SettingsService, now func() time.Time) *AdminTasks {
	t := &AdminTasks{
		ttl:      ttl,
		accounts: accounts,
		ledger:   ledger,
		settings: settings,
		now:      now,
		log:      logger.Component("admin_tasks"),
	}
	t.tasks = expirable.NewLRU[int64, *models.AdminTask](maxOpenTasks, nil, ttl)
	return t
}

// Begin opens a task for adminID, replacing any task already open.
func (t *AdminTasks) Begin(ctx context.Context, adminID int64, kind models.TaskKind, targetID int64) (*models.AdminTask, error) {
	now := t.now()
	task := &models.AdminTask{
		ID:        models.GenerateTaskID(),
		AdminID:   adminID,
		Kind:      kind,
		TargetID:  targetID,
		CreatedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	if kind.NeedsTarget() {
		if _, err := t.accounts.Get(ctx, targetID); err != nil {
			return nil, err
		}
	}

	t.tasks.Add(adminID, task)
	t.log.WithFields(logrus.Fields{"admin_id": adminID, "kind": kind}).Debug("Admin task opened")
	return task, nil
}

// Pending returns the open task for adminID, if any.
func (t *AdminTasks) Pending(adminID int64) (*models.AdminTask, bool) {
	return t.tasks.Get(adminID)
}

// Submit consumes the open task with the admin's reply.
func (t *AdminTasks) Submit(ctx context.Context, adminID int64, input string) (*models.TaskResult, error) {
	task, ok := t.tasks.Get(adminID)
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	// Only the caller whose Remove succeeds owns the task.
	if !t.tasks.Remove(adminID) {
		return nil, models.ErrTaskNotFound
	}

	input = strings.TrimSpace(input)
	result := &models.TaskResult{Task: task}

	switch task.Kind {
	case models.TaskAddCredits, models.TaskRemoveCredits:
		amount, err := strconv.ParseInt(input, 10, 64)
		if err != nil || amount <= 0 {
			return nil, fmt.Errorf("amount must be a positive integer, got %q", input)
		}
		if task.Kind == models.TaskRemoveCredits {
			amount = -amount
		}
		if _, err := t.ledger.AdminAdjust(ctx, task.TargetID, amount); err != nil {
			return nil, err
		}
		acct, err := t.accounts.Get(ctx, task.TargetID)
		if err != nil {
			return nil, err
		}
		result.Account = acct
		result.Message = fmt.Sprintf("balance of %d is now %d", acct.UserID, acct.Credits)

	case models.TaskSetDailyBonusAmount, models.TaskSetWelcomeBonusAmount:
		key := models.SettingDailyBonusAmount
		if task.Kind == models.TaskSetWelcomeBonusAmount {
			key = models.SettingWelcomeBonusAmount
		}
		updated, err := t.settings.Update(ctx, key, input)
		if err != nil {
			return nil, err
		}
		result.Message = fmt.Sprintf("%s is now %s", key, updated.Value(key))

	case models.TaskFindUser:
		users, err := t.accounts.Find(ctx, input, findUserLimit)
		if err != nil {
			return nil, err
		}
		result.Users = users
		result.Message = fmt.Sprintf("%d users found", len(users))
	}

	t.log.WithFields(logrus.Fields{"admin_id": adminID, "kind": task.Kind}).Info("Admin task completed")
	return result, nil
}

// Cancel drops the open task and reports whether there was one.
func (t *AdminTasks) Cancel(adminID int64) bool {
	return t.tasks.Remove(adminID)
}
