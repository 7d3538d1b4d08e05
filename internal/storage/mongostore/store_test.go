package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"infobot-backend/internal/storage"
	"infobot-backend/internal/storage/mongostore"
	"infobot-backend/internal/storage/storagetest"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping mongo integration test")
	}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s, err := mongostore.New(ctx, uri, "infobot_test")
		require.NoError(t, err)
		require.NoError(t, s.Reset(ctx))
		return s
	})
}
