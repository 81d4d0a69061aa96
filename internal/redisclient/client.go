package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"claim-service/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	extendScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		extendScript:  redis.NewScript(extendLockScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping is used by the readiness probe
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AcquireLock tries once to take lockKey. The returned token proves
// ownership to ReleaseLock and ExtendLock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	return token, ok, nil
}

// ReleaseLock releases lockKey if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// ExtendLock pushes the expiry of a held lock; false means it was lost
func (c *Client) ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	result, err := c.extendScript.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("lock:%s", lockKey)}, token, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("extend lock script failed: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return n == 1, nil
}

// SetIdempotencyKey stores value under key unless the key already exists
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Result()
}

// GetIdempotencyKey returns the stored value; ok is false when the key is unknown
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Locker serializes critical sections across replicas
type Locker struct {
	client *Client
	ttl    time.Duration
	retry  time.Duration
}

// NewLocker creates a Locker whose locks expire after ttl
func NewLocker(client *Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock blocks until key is held or ctx is done. The lock is refreshed at
// half its ttl until unlock is called.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	var token string
	for {
		t, ok, err := l.client.AcquireLock(ctx, key, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			token = t
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if ok, err := l.client.ExtendLock(context.Background(), key, token, l.ttl); err != nil || !ok {
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		// release must outlive a cancelled request context
		_ = l.client.ReleaseLock(context.Background(), key, token)
	}, nil
}

// IdempotencyStore remembers which reservation answered an Idempotency-Key
type IdempotencyStore struct {
	client *Client
	ttl    time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore with keys expiring after ttl
func NewIdempotencyStore(client *Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Get returns the reservation recorded for key
func (s *IdempotencyStore) Get(ctx context.Context, key string) (models.CommitRecord, bool, error) {
	var record models.CommitRecord
	v, ok, err := s.client.GetIdempotencyKey(ctx, key)
	if err != nil || !ok {
		return record, false, err
	}
	if err := json.Unmarshal([]byte(v), &record); err != nil {
		return record, false, fmt.Errorf("corrupt idempotency value for %s: %w", key, err)
	}
	return record, true, nil
}

// Put records the reservation for key; an existing entry is kept
func (s *IdempotencyStore) Put(ctx context.Context, key string, record models.CommitRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = s.client.SetIdempotencyKey(ctx, key, data, s.ttl)
	return err
}
