package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"infobot-backend/internal/logger"
	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

// SettingsService keeps an in-process snapshot of the settings singleton.
// Engines take the snapshot by value for each call.
type SettingsService struct {
	store       storage.Store
	broadcaster Broadcaster
	now         func() time.Time
	current     atomic.Pointer[models.Settings]
	log         *logrus.Entry
}

func NewSettingsService(store storage.Store, broadcaster Broadcaster, now func() time.Time) *SettingsService {
	s := &SettingsService{
		store:       store,
		broadcaster: broadcaster,
		now:         now,
		log:         logger.Component("settings"),
	}
	defaults := models.DefaultSettings()
	s.current.Store(&defaults)
	return s
}

// Init stores defaults for any missing field. Call once at startup.
func (s *SettingsService) Init(ctx context.Context) (models.Settings, error) {
	stored, err := s.store.InitSettings(ctx, models.DefaultSettings())
	if err != nil {
		return models.Settings{}, storageErr(err)
	}
	s.current.Store(stored)
	return *stored, nil
}

func (s *SettingsService) Current() models.Settings {
	return *s.current.Load()
}

// Refresh reloads the snapshot so changes made by other instances show up.
func (s *SettingsService) Refresh(ctx context.Context) error {
	stored, err := s.store.GetSettings(ctx)
	if err != nil {
		return storageErr(err)
	}
	s.current.Store(stored)
	return nil
}

// Update validates raw against key, writes it through and swaps the snapshot.
func (s *SettingsService) Update(ctx context.Context, key models.SettingKey, raw string) (models.Settings, error) {
	if !key.Valid() {
		return models.Settings{}, &models.SettingError{Key: key, Value: raw}
	}

	next := s.Current()
	if err := next.Set(key, raw); err != nil {
		return models.Settings{}, err
	}

	if err := s.store.UpdateSetting(ctx, key, next); err != nil {
		return models.Settings{}, storageErr(err)
	}

	// Other fields may have been changed elsewhere since the last refresh.
	if err := s.Refresh(ctx); err != nil {
		s.log.WithField("error", err).Warn("Failed to reload settings after update")
		s.current.Store(&next)
	}

	s.log.WithFields(logrus.Fields{"key": key, "value": next.Value(key)}).Info("Setting updated")

	event := models.NewLedgerEvent(models.EventSettingChanged, 0, 0, 0, s.now())
	event.Description = fmt.Sprintf("%s=%s", key, next.Value(key))
	s.broadcaster.Publish(event)
	return s.Current(), nil
}
