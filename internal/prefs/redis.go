package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys.
const (
	KeyRecentFiles  = "mapview_recent_files"
	KeyLastSelected = "mapview_last_selected"
	KeyPreferences  = "mapview_preferences"
)

// RedisBackend keeps each part of State under its own key, each expiring
// maxAge after the last save.
type RedisBackend struct {
	rdb    *redis.Client
	prefix string
	maxAge time.Duration
}

// NewRedisBackend creates a Redis backend. prefix namespaces the keys, so
// several viewers can share one Redis.
func NewRedisBackend(rdb *redis.Client, prefix string, maxAge time.Duration) *RedisBackend {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &RedisBackend{rdb: rdb, prefix: prefix, maxAge: maxAge}
}

// OpenRedis connects to addr. An empty addr returns nil.
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

func (b *RedisBackend) key(k string) string { return b.prefix + k }

func (b *RedisBackend) Load(ctx context.Context) (State, bool, error) {
	vals, err := b.rdb.MGet(ctx, b.key(KeyRecentFiles), b.key(KeyLastSelected), b.key(KeyPreferences)).Result()
	if err != nil {
		return State{}, false, err
	}

	var st State
	found := false
	if s, ok := vals[0].(string); ok {
		if err := json.Unmarshal([]byte(s), &st.RecentFiles); err != nil {
			return State{}, false, err
		}
		found = true
	}
	if s, ok := vals[1].(string); ok {
		st.LastSelected = s
		found = true
	}
	if s, ok := vals[2].(string); ok {
		if err := json.Unmarshal([]byte(s), &st.Preferences); err != nil {
			return State{}, false, err
		}
		found = true
	}
	return st, found, nil
}

func (b *RedisBackend) Save(ctx context.Context, st State) error {
	recent, err := json.Marshal(st.RecentFiles)
	if err != nil {
		return err
	}
	preferences, err := json.Marshal(st.Preferences)
	if err != nil {
		return err
	}

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, b.key(KeyRecentFiles), recent, b.maxAge)
	if st.LastSelected != "" {
		pipe.Set(ctx, b.key(KeyLastSelected), st.LastSelected, b.maxAge)
	} else {
		pipe.Del(ctx, b.key(KeyLastSelected))
	}
	pipe.Set(ctx, b.key(KeyPreferences), preferences, b.maxAge)
	_, err = pipe.Exec(ctx)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
