package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/i474232898/nimbus/internal/weather"
)

// RedisStore keeps one sorted set per (category, key), scored by fetchedAt in
// epoch millis. Every operation is a single atomic Redis command (or MULTI
// block), so no client-side locking is needed.
type RedisStore struct {
	r      redis.Cmdable
	prefix string
}

// NewRedisStore creates a Redis-backed store. prefix namespaces the keys.
func NewRedisStore(r redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{r: r, prefix: prefix}
}

// ConnectRedis creates a client and checks the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (s *RedisStore) setKey(category weather.Category, key string) string {
	k := "weather:" + string(category) + ":" + key
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

type redisMember struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
	Key      string    `json:"key"`
	Payload  []byte    `json:"payload"`
}

// Write adds the entry and pushes the set's TTL out to twice the expiry window,
// so abandoned locations eventually disappear without a purge.
func (s *RedisStore) Write(ctx context.Context, entry weather.CacheEntry) error {
	member, err := json.Marshal(redisMember{
		ID:       entry.ID,
		Category: string(entry.Category),
		Key:      entry.Key,
		Payload:  entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("redis store: encode: %w", err)
	}

	k := s.setKey(entry.Category, entry.Key)
	_, err = s.r.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(entry.FetchedAtMillis()), Member: string(member)})
		pipe.Expire(ctx, k, 2*weather.Window(entry.Category))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: write: %w", err)
	}
	return nil
}

// ReadLatest returns the highest-scored member.
func (s *RedisStore) ReadLatest(ctx context.Context, category weather.Category, key string) (weather.CacheEntry, bool, error) {
	zs, err := s.r.ZRevRangeWithScores(ctx, s.setKey(category, key), 0, 0).Result()
	if errors.Is(err, redis.Nil) {
		return weather.CacheEntry{}, false, nil
	}
	if err != nil {
		return weather.CacheEntry{}, false, fmt.Errorf("redis store: read: %w", err)
	}
	if len(zs) == 0 {
		return weather.CacheEntry{}, false, nil
	}

	raw, ok := zs[0].Member.(string)
	if !ok {
		return weather.CacheEntry{}, false, fmt.Errorf("redis store: unexpected member type %T", zs[0].Member)
	}
	var m redisMember
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return weather.CacheEntry{}, false, fmt.Errorf("redis store: decode: %w", err)
	}
	return weather.CacheEntry{
		ID:        m.ID,
		Category:  weather.Category(m.Category),
		Key:       m.Key,
		Payload:   m.Payload,
		FetchedAt: weather.FromMillis(int64(zs[0].Score)),
	}, true, nil
}

// PurgeExpired removes members scored at or below the expiry cutoff.
func (s *RedisStore) PurgeExpired(ctx context.Context, category weather.Category, key string, now time.Time) (int, error) {
	cutoff := weather.ExpiryCutoff(category, now).UnixMilli()
	n, err := s.r.ZRemRangeByScore(ctx, s.setKey(category, key), "-inf", strconv.FormatInt(cutoff, 10)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: purge: %w", err)
	}
	return int(n), nil
}
