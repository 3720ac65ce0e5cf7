package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weatherteam/core"
	"github.com/hupe1980/weatherteam/internal/testutil"
)

// Interface compliance (compile-time assertion)
var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*RedisStore)(nil)
)

var demoKey = core.SessionKey{AppName: "weather_tutorial_app", UserID: "user_state_demo", SessionID: "session_state_demo_001"}

func setupRedis(t *testing.T, optFns ...func(o *RedisOptions)) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, optFns...)
	t.Cleanup(func() { _ = store.Close() })

	return mr, store
}

func stores(t *testing.T) map[string]core.SessionStore {
	_, rs := setupRedis(t)
	return map[string]core.SessionStore{
		"memory": NewInMemoryStore(),
		"redis":  rs,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sess, err := store.Create(ctx, demoKey, map[string]any{"user_preference_temperature_unit": "Celsius"})
			require.NoError(t, err)
			assert.Equal(t, demoKey, sess.Key)

			_, err = store.Create(ctx, demoKey, nil)
			assert.ErrorIs(t, err, core.ErrSessionExists)

			got, err := store.Get(ctx, demoKey)
			require.NoError(t, err)
			assert.Equal(t, "Celsius", core.GetString(got, "user_preference_temperature_unit", ""))
			assert.Empty(t, got.GetEvents())

			_, err = store.Get(ctx, core.SessionKey{AppName: "x", UserID: "y", SessionID: "z"})
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestStore_AppendEventAppliesDelta(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Create(ctx, demoKey, map[string]any{"user_preference_temperature_unit": "Celsius"})
			require.NoError(t, err)

			user := testutil.NewEventBuilder().Author(core.RoleUser).UserText("weather in London?").Build()
			resp := testutil.NewEventBuilder().
				Author("weather_agent").
				FunctionResponse("c1", "get_weather_stateful", map[string]any{"status": "success"}, nil).
				StateDelta("last_city_checked_stateful", "London").
				Build()

			require.NoError(t, store.AppendEvent(ctx, demoKey, user))
			require.NoError(t, store.AppendEvent(ctx, demoKey, resp))

			got, err := store.Get(ctx, demoKey)
			require.NoError(t, err)
			assert.Equal(t, "London", core.GetString(got, "last_city_checked_stateful", ""))

			events := got.GetEvents()
			require.Len(t, events, 2)
			assert.Equal(t, "weather in London?", events[0].Text())
			assert.Equal(t, resp.ID, events[1].ID)
			require.Len(t, events[1].GetFunctionResponses(), 1)
			assert.Equal(t, "get_weather_stateful", events[1].GetFunctionResponses()[0].Name)

			err = store.AppendEvent(ctx, core.SessionKey{AppName: "missing"}, user)
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestStore_ApplyDeltaAndDelete(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Create(ctx, demoKey, nil)
			require.NoError(t, err)

			require.NoError(t, store.ApplyDelta(ctx, demoKey, map[string]any{
				"user_preference_temperature_unit":  "Fahrenheit",
				"guardrail_block_keyword_triggered": true,
			}))

			got, err := store.Get(ctx, demoKey)
			require.NoError(t, err)
			assert.Equal(t, "Fahrenheit", core.GetString(got, "user_preference_temperature_unit", ""))
			assert.True(t, core.GetBool(got, "guardrail_block_keyword_triggered"))

			require.NoError(t, store.Delete(ctx, demoKey))
			assert.ErrorIs(t, store.Delete(ctx, demoKey), core.ErrSessionNotFound)
			_, err = store.Get(ctx, demoKey)
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	sess, err := store.Create(ctx, demoKey, map[string]any{"k": "v"})
	require.NoError(t, err)
	sess.Set("k", "mutated")

	got, err := store.Get(ctx, demoKey)
	require.NoError(t, err)
	assert.Equal(t, "v", core.GetString(got, "k", ""))
}

func TestRedisStore_KeysAndTTL(t *testing.T) {
	mr, store := setupRedis(t, func(o *RedisOptions) {
		o.KeyPrefix = "test:"
		o.TTL = time.Hour
	})
	ctx := context.Background()

	_, err := store.Create(ctx, demoKey, map[string]any{"user_preference_temperature_unit": "Celsius"})
	require.NoError(t, err)

	base := "test:weather_tutorial_app:user_state_demo:session_state_demo_001"
	assert.True(t, mr.Exists(base+":meta"))
	assert.Equal(t, `"Celsius"`, mr.HGet(base+":state", "user_preference_temperature_unit"))
	assert.Equal(t, time.Hour, mr.TTL(base+":state"))

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, demoKey)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestRedisStore_Ping(t *testing.T) {
	mr, store := setupRedis(t)
	require.NoError(t, store.Ping(context.Background()))

	mr.SetError("LOADING")
	assert.Error(t, store.Ping(context.Background()))
}

func TestNewRedisStoreFromAddr(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedisStoreFromAddr(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	defer store.Close()

	_, err = NewRedisStoreFromAddr(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
