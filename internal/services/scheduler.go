package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
)

const (
	referralSweepLimit = 500
	jobTimeout         = time.Minute
)

// Scheduler runs the background jobs: the referral reconciliation sweep and
// the settings refresh.
type Scheduler struct {
	cron      *cron.Cron
	referrals *ReferralEngine
	settings  *SettingsService
	grace     time.Duration
	log       *logrus.Entry
}

func NewScheduler(referrals *ReferralEngine, settings *SettingsService, grace time.Duration) *Scheduler {
	log := logger.Component("scheduler")
	cronLog := cron.PrintfLogger(log)

	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		referrals: referrals,
		settings:  settings,
		grace:     grace,
		log:       log,
	}
}

// Register adds both jobs. An empty spec disables that job.
func (s *Scheduler) Register(referralSpec, settingsSpec string) error {
	if referralSpec != "" {
		if _, err := s.cron.AddFunc(referralSpec, s.ReconcileReferrals); err != nil {
			return fmt.Errorf("invalid referral sweep schedule %q: %w", referralSpec, err)
		}
	}
	if settingsSpec != "" {
		if _, err := s.cron.AddFunc(settingsSpec, s.RefreshSettings); err != nil {
			return fmt.Errorf("invalid settings refresh schedule %q: %w", settingsSpec, err)
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("Scheduler started")
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stopped before running jobs finished")
	}
}

func (s *Scheduler) ReconcileReferrals() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.referrals.Reconcile(ctx, s.grace, referralSweepLimit); err != nil {
		s.log.WithField("error", err).Error("Referral sweep failed")
	}
}

func (s *Scheduler) RefreshSettings() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.settings.Refresh(ctx); err != nil {
		s.log.WithField("error", err).Warn("Settings refresh failed")
	}
}
