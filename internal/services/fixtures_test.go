package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"infobot-backend/internal/models"
	"infobot-backend/internal/services"
	"infobot-backend/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLookup struct {
	mu     sync.Mutex
	calls  int
	result models.LookupResult
	// before runs inside Lookup, before the result is returned.
	before func()
}

func (f *fakeLookup) Lookup(_ context.Context, _ models.SearchKind, _ string) models.LookupResult {
	f.mu.Lock()
	f.calls++
	hook := f.before
	result := f.result
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return result
}

func (f *fakeLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (b *recordingBroadcaster) Publish(event models.LedgerEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) Types() []models.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]models.EventType, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.Type)
	}
	return types
}

type testEnv struct {
	engine *services.Engine
	store  *memory.Store
	clock  *fakeClock
	lookup *fakeLookup
	events *recordingBroadcaster
}

var day1 = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  memory.New(),
		clock:  newFakeClock(day1),
		lookup: &fakeLookup{result: models.LookupResult{OK: true, Payload: json.RawMessage(`{"name":"someone"}`)}},
		events: &recordingBroadcaster{},
	}
	env.engine = services.NewEngine(env.store, env.lookup, env.events, services.EngineOptions{
		Location:     time.UTC,
		AdminTaskTTL: time.Minute,
		Now:          env.clock.Now,
	})
	require.NoError(t, env.engine.Init(context.Background()))

	t.Cleanup(func() {
		env.engine.Wait()
		env.store.Close()
	})
	return env
}

func (env *testEnv) set(t *testing.T, key models.SettingKey, value string) {
	t.Helper()
	_, err := env.engine.UpdateSetting(context.Background(), key, value)
	require.NoError(t, err)
}

func (env *testEnv) newUser(t *testing.T, userID int64, name string) *models.Account {
	t.Helper()
	acct, created, err := env.engine.OnFirstContact(context.Background(), userID, name)
	require.NoError(t, err)
	require.True(t, created)
	return acct
}

func (env *testEnv) balance(t *testing.T, userID int64) int64 {
	t.Helper()
	acct, err := env.store.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return acct.Credits
}
