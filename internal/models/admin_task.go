package models

import (
	"fmt"
	"time"
)

type TaskKind string

const (
	TaskAddCredits            TaskKind = "add_credits"
	TaskRemoveCredits         TaskKind = "remove_credits"
	TaskSetDailyBonusAmount   TaskKind = "set_daily_bonus_amount"
	TaskSetWelcomeBonusAmount TaskKind = "set_welcome_bonus_amount"
	TaskFindUser              TaskKind = "find_user"
)

func (k TaskKind) NeedsTarget() bool {
	return k == TaskAddCredits || k == TaskRemoveCredits
}

// AdminTask is a pending ask-and-wait interaction opened by an admin.
type AdminTask struct {
	ID        string    `json:"id"`
	AdminID   int64     `json:"admin_id"`
	Kind      TaskKind  `json:"kind"`
	TargetID  int64     `json:"target_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t *AdminTask) Validate() error {
	switch t.Kind {
	case TaskAddCredits, TaskRemoveCredits, TaskSetDailyBonusAmount, TaskSetWelcomeBonusAmount, TaskFindUser:
	default:
		return fmt.Errorf("invalid task kind: %s", t.Kind)
	}
	if t.Kind.NeedsTarget() && t.TargetID == 0 {
		return fmt.Errorf("task %s needs a target user", t.Kind)
	}
	return nil
}

type TaskResult struct {
	Task    *AdminTask `json:"task"`
	Message string     `json:"message"`
	Account *Account   `json:"account,omitempty"`
	Users   []*Account `json:"users,omitempty"`
}
