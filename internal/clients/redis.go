package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"catalog-platform/seeder/internal/bootstrap"
	"catalog-platform/seeder/internal/config"
)

const (
	redisProbeName = "redis"

	// scanBatch is the COUNT hint passed to SCAN.
	scanBatch = 100
)

// redisConn is the subset of Redis commands used by RedisClient. It is
// implemented by the real go-redis client and by test doubles.
type redisConn interface {
	PingResult(ctx context.Context) (string, error)
	ScanPage(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	Close() error
}

// realRedisConn adapts *redis.Client to redisConn so tests need not build
// go-redis command values.
type realRedisConn struct {
	client *redis.Client
}

func (r *realRedisConn) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisConn) ScanPage(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return r.client.Scan(ctx, cursor, match, count).Result()
}

func (r *realRedisConn) Delete(ctx context.Context, keys ...string) (int64, error) {
	return r.client.Del(ctx, keys...).Result()
}

func (r *realRedisConn) Close() error {
	return r.client.Close()
}

// RedisClient invalidates cached catalog entries and probes Redis, each call
// behind a circuit breaker.
type RedisClient struct {
	cfg  config.RedisConfig
	cb   *gobreaker.CircuitBreaker
	conn redisConn
}

// NewRedisClient creates a RedisClient. No connection is opened at
// construction time; a go-redis client is built per call.
func NewRedisClient(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		cfg: cfg,
		cb:  cb,
	}
}

// InvalidateCatalog deletes every key under the configured prefix and
// returns how many were removed.
func (c *RedisClient) InvalidateCatalog(ctx context.Context) (int64, error) {
	v, err := c.cb.Execute(func() (any, error) {
		conn, release := c.open()
		defer release()

		match := c.cfg.KeyPrefix + "*"
		var (
			cursor  uint64
			removed int64
		)
		for {
			keys, next, err := conn.ScanPage(ctx, cursor, match, scanBatch)
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", match, err)
			}
			if len(keys) > 0 {
				n, err := conn.Delete(ctx, keys...)
				if err != nil {
					return nil, fmt.Errorf("deleting cached catalog keys: %w", err)
				}
				removed += n
			}
			if next == 0 {
				return removed, nil
			}
			cursor = next
		}
	})
	if err != nil {
		return 0, breakerError(err)
	}
	return v.(int64), nil
}

// Probe sends PING and expects PONG.
func (c *RedisClient) Probe(ctx context.Context) bootstrap.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		conn, release := c.open()
		defer release()

		val, err := conn.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	return probeResult(redisProbeName, start, err)
}

// open returns the injected connection, or a new client that release closes.
func (c *RedisClient) open() (redisConn, func()) {
	if c.conn != nil {
		return c.conn, func() {}
	}
	conn := &realRedisConn{
		client: redis.NewClient(&redis.Options{
			Addr:     c.cfg.Addr(),
			Password: c.cfg.Password,
			DB:       c.cfg.DB,
		}),
	}
	return conn, func() { conn.Close() } //nolint:errcheck
}
