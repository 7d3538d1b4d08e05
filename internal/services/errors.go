package services

import (
	"errors"
	"fmt"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
)

// storageErr passes through domain errors and the storage sentinels the
// caller branches on; anything else means the backend is unavailable.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, storage.ErrConditionFailed),
		errors.Is(err, models.ErrStorageUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
}

// accountErr is storageErr with NotFound reported as a missing account.
func accountErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return models.ErrAccountNotFound
	}
	return storageErr(err)
}
