package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix = "ssohub:"
	expiryIndexKey   = "sessions:expiry"
)

// RedisConfig configures a RedisRegistry
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	KeyPrefix  string
	// Grace keeps a session document readable this long past its expiry so
	// the reaper can still run its logout cascade.
	Grace time.Duration
}

// RedisRegistry stores sessions as JSON documents in Redis, with a sorted set
// indexing session IDs by expiry time.
//
// Logout state is persisted when a session is written; claims taken by one
// process are not visible to another.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	grace  time.Duration
}

// NewRedisClient parses cfg.URL and verifies the connection
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewRedisRegistry wraps an existing client
func NewRedisRegistry(client *redis.Client, cfg RedisConfig) *RedisRegistry {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix, grace: cfg.Grace}
}

func (r *RedisRegistry) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *RedisRegistry) indexKey() string {
	return r.prefix + expiryIndexKey
}

// Lookup returns the session with the given ID
func (r *RedisRegistry) Lookup(ctx context.Context, id string) (*Session, error) {
	key := r.sessionKey(id)

	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		// A corrupt document is dropped and reported as missing; one bad record
		// is not an outage.
		_ = r.Delete(ctx, id)
		return nil, fmt.Errorf("%w: corrupt record %s: %v", ErrSessionNotFound, Redact(id), err)
	}
	return &s, nil
}

// Add stores a session and indexes it by expiry
func (r *RedisRegistry) Add(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var ttl time.Duration
	if !session.ExpiresAt.IsZero() {
		ttl = time.Until(session.ExpiresAt) + r.grace
		if ttl <= 0 {
			ttl = time.Second
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(session.ID), data, ttl)
	if !session.ExpiresAt.IsZero() {
		pipe.ZAdd(ctx, r.indexKey(), &redis.Z{
			Score:  float64(session.ExpiresAt.Unix()),
			Member: session.ID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis write failed: %w", err)
	}
	return nil
}

// Delete removes the session document and its index entry
func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(id))
	pipe.ZRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Expired lists session IDs whose expiry is at or before now
func (r *RedisRegistry) Expired(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis expiry scan failed: %w", err)
	}
	return ids, nil
}

// Close closes the underlying client
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
