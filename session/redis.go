package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/weatherteam/core"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// KeyPrefix namespaces every key; defaults to "weatherteam:session:".
	KeyPrefix string
	// TTL expires idle sessions; zero keeps them forever.
	TTL time.Duration
}

// RedisStore persists sessions in Redis. Each session uses three keys:
//   - {prefix}{app}:{user}:{id}:meta    hash with created/updated timestamps
//   - {prefix}{app}:{user}:{id}:state   hash of JSON-encoded state values
//   - {prefix}{app}:{user}:{id}:events  list of JSON-encoded events
//
// Writes touching more than one key run in a MULTI/EXEC transaction so an
// event and its state delta land together.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{KeyPrefix: "weatherteam:session:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisStore{client: client, keyPrefix: opts.KeyPrefix, ttl: opts.TTL}
}

// NewRedisStoreFromAddr dials addr and verifies the connection.
func NewRedisStoreFromAddr(ctx context.Context, addr, password string, db int, optFns ...func(o *RedisOptions)) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, optFns...), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

// Ping checks if the store is healthy.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) base(key core.SessionKey) string {
	return s.keyPrefix + key.AppName + ":" + key.UserID + ":" + key.SessionID
}

func (s *RedisStore) metaKey(key core.SessionKey) string   { return s.base(key) + ":meta" }
func (s *RedisStore) stateKey(key core.SessionKey) string  { return s.base(key) + ":state" }
func (s *RedisStore) eventsKey(key core.SessionKey) string { return s.base(key) + ":events" }

// Create stores a new session seeded with initial state.
func (s *RedisStore) Create(ctx context.Context, key core.SessionKey, initial map[string]any) (*core.Session, error) {
	sess := core.NewSession(key, initial)

	ok, err := s.client.HSetNX(ctx, s.metaKey(key), "created", sess.Created.Format(time.RFC3339Nano)).Result()
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}
	if !ok {
		return nil, core.ErrSessionExists
	}

	state, err := encodeState(initial)
	if err != nil {
		return nil, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.metaKey(key), "updated", sess.Updated.Format(time.RFC3339Nano))
		if len(state) > 0 {
			pipe.HSet(ctx, s.stateKey(key), state)
		}
		s.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session %s: %w", key, err)
	}

	return sess, nil
}

// Get loads the session.
func (s *RedisStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	var (
		metaCmd   *redis.MapStringStringCmd
		stateCmd  *redis.MapStringStringCmd
		eventsCmd *redis.StringSliceCmd
	)

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey(key))
		stateCmd = pipe.HGetAll(ctx, s.stateKey(key))
		eventsCmd = pipe.LRange(ctx, s.eventsKey(key), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get session %s: %w", key, err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, core.ErrSessionNotFound
	}

	state := make(map[string]any, len(stateCmd.Val()))
	for k, raw := range stateCmd.Val() {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode state %q: %w", k, err)
		}
		state[k] = v
	}

	sess := core.NewSession(key, state)
	sess.Created = parseTime(meta["created"])
	sess.Updated = parseTime(meta["updated"])

	for i, raw := range eventsCmd.Val() {
		var ev core.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", i, err)
		}
		sess.Events = append(sess.Events, ev)
	}

	return sess, nil
}

// AppendEvent records ev and applies its state delta atomically.
func (s *RedisStore) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	if err := s.ensureExists(ctx, key); err != nil {
		return err
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	delta, err := encodeState(ev.Actions.StateDelta)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.eventsKey(key), raw)
		if len(delta) > 0 {
			pipe.HSet(ctx, s.stateKey(key), delta)
		}
		pipe.HSet(ctx, s.metaKey(key), "updated", time.Now().UTC().Format(time.RFC3339Nano))
		s.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append event to %s: %w", key, err)
	}

	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *RedisStore) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}

	if err := s.ensureExists(ctx, key); err != nil {
		return err
	}

	encoded, err := encodeState(delta)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.stateKey(key), encoded)
		pipe.HSet(ctx, s.metaKey(key), "updated", time.Now().UTC().Format(time.RFC3339Nano))
		s.expire(ctx, pipe, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply delta to %s: %w", key, err)
	}

	return nil
}

// Delete removes all keys of the session.
func (s *RedisStore) Delete(ctx context.Context, key core.SessionKey) error {
	n, err := s.client.Del(ctx, s.metaKey(key), s.stateKey(key), s.eventsKey(key)).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) ensureExists(ctx context.Context, key core.SessionKey) error {
	n, err := s.client.Exists(ctx, s.metaKey(key)).Result()
	if err != nil {
		return fmt.Errorf("lookup session %s: %w", key, err)
	}
	if n == 0 {
		return core.ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) expire(ctx context.Context, pipe redis.Pipeliner, key core.SessionKey) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, s.metaKey(key), s.ttl)
	pipe.Expire(ctx, s.stateKey(key), s.ttl)
	pipe.Expire(ctx, s.eventsKey(key), s.ttl)
}

func encodeState(state map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(state))
	for k, v := range state {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode state %q: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
