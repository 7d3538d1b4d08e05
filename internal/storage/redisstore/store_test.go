package redisstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/storage"
	"infobot-backend/internal/storage/redisstore"
	"infobot-backend/internal/storage/storagetest"
)

// testDB keeps the suite away from data in the default database.
const testDB = 15

func newTestStore(t *testing.T) storage.Store {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: testDB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	return redisstore.NewWithClient(client)
}

func TestRedisStore(t *testing.T) {
	storagetest.Run(t, newTestStore)
}

func TestRedisClaimExpires(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	claim := &models.DailyClaim{UserID: 1, Day: "2024-05-01", ClaimedAt: time.Now(), Amount: 1}
	require.NoError(t, s.InsertClaim(ctx, claim))

	client := redis.NewClient(&redis.Options{Addr: os.Getenv("TEST_REDIS_ADDR"), DB: testDB})
	defer client.Close()

	ttl, err := client.TTL(ctx, "daily:1:2024-05-01").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 6*24*time.Hour)
}

func TestRedisRejectsCombinedFilter(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	since := time.Now()
	above := int64(1)
	_, err := s.CountAccounts(context.Background(), storage.AccountFilter{JoinedSince: &since, CreditsAbove: &above})
	assert.ErrorIs(t, err, storage.ErrUnsupportedFilter)
}
