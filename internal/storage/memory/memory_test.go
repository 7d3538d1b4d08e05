package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"infobot-backend/internal/storage"
	"infobot-backend/internal/storage/memory"
	"infobot-backend/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return memory.New()
	})
}

func TestClosedStoreFailsPing(t *testing.T) {
	s := memory.New()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
