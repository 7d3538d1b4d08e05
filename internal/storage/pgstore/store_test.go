package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"infobot-backend/internal/storage"
	"infobot-backend/internal/storage/pgstore"
	"infobot-backend/internal/storage/storagetest"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := pgstore.New(ctx, dsn, 8)
		require.NoError(t, err)
		require.NoError(t, s.Reset(ctx))
		return s
	})
}
