package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Clark-Hu/movieweb/internal/metrics"
)

const (
	defaultKeyPrefix = "movieweb:discovery:"
	maxTxAttempts    = 5
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisStore keeps each session's history as a JSON array under one key.
// Updates use WATCH so concurrent rounds for the same session do not lose
// titles.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	max    int
	ttl    time.Duration
}

// NewRedisStore wraps client. A positive ttl is refreshed on every write.
func NewRedisStore(client redis.UniversalClient, max int, ttl time.Duration) *RedisStore {
	if max <= 0 {
		max = DefaultHistoryMax
	}
	return &RedisStore{client: client, prefix: defaultKeyPrefix, max: max, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisStore) Exclusions(ctx context.Context, sessionID string) ([]string, error) {
	return load(ctx, s.client, s.key(sessionID))
}

func (s *RedisStore) RecordShown(ctx context.Context, sessionID string, titles []string) (int, error) {
	k := s.key(sessionID)
	var added int
	txf := func(tx *redis.Tx) error {
		history, err := load(ctx, tx, k)
		if err != nil {
			return err
		}
		merged, n := merge(history, titles, s.max)
		added = n
		if n == 0 {
			return nil
		}
		payload, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("redis record history: %w", err)
		}
		if added > 0 {
			metrics.DiscoveryTitlesRecorded.WithLabelValues("redis").Add(float64(added))
		}
		return added, nil
	}
	return 0, fmt.Errorf("redis record history: %w", redis.TxFailedErr)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) ([]string, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get history: %w", err)
	}
	var titles []string
	if err := json.Unmarshal(raw, &titles); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return titles, nil
}
