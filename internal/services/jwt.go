package services

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RoleAdapter Role = "adapter"
	RoleAdmin   Role = "admin"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// Claims identify an adapter client; AdminID is set for admin tokens so
// admin task sessions can be keyed by it.
type Claims struct {
	Role      Role   `json:"role"`
	AdminID   int64  `json:"admin_id,omitempty"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret     []byte
	ttl        time.Duration
	adapterKey string
	adminKey   string
	now        func() time.Time
}

func NewJWTService(secret string, ttl time.Duration, adapterKey, adminKey string, now func() time.Time) *JWTService {
	return &JWTService{
		secret:     []byte(secret),
		ttl:        ttl,
		adapterKey: adapterKey,
		adminKey:   adminKey,
		now:        now,
	}
}

// RoleForKey maps an API key to the role it grants.
func (s *JWTService) RoleForKey(apiKey string) (Role, error) {
	switch {
	case apiKey == "":
		return "", ErrInvalidAPIKey
	case s.adminKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.adminKey)) == 1:
		return RoleAdmin, nil
	case s.adapterKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.adapterKey)) == 1:
		return RoleAdapter, nil
	}
	return "", ErrInvalidAPIKey
}

func (s *JWTService) GenerateToken(role Role, adminID int64) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Role:      role,
		AdminID:   adminID,
		SessionID: uuid.New().String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(role),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
