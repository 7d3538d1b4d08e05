package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"infobot-backend/internal/models"
)

// statusFor maps domain errors to HTTP status codes. Unknown errors are
// treated as bad input.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrUserBanned):
		return http.StatusForbidden
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyClaimedToday):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidSettingValue), errors.Is(err, models.ErrBonusDisabled),
		errors.Is(err, models.ErrSelfReferral), errors.Is(err, models.ErrBotReferral):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrLookupFailed):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err,
		}).Error(message)
	}

	body := gin.H{
		"error":   message,
		"details": err.Error(),
	}

	var claimed *models.AlreadyClaimedError
	if errors.As(err, &claimed) {
		body["retry_after"] = int64(claimed.Remaining.Seconds())
	}

	c.JSON(status, body)
}

// userIDParam reads the :id path parameter, writing a 400 when it is not a
// positive integer.
func userIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
