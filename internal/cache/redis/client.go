package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/metrics"
	"github.com/family-profiler/backend/pkg/logger"
)

const cacheType = "narrative"

// Narrative is the cached output of one narrative generation.
type Narrative struct {
	Text        string    `json:"text"`
	Tags        []string  `json:"tags"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Client caches narratives by profile id. Profile ids are content
// fingerprints, so a hit is only possible for an identical batch.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return NewWithClient(client, ttl), nil
}

// NewWithClient wraps an existing connection.
func NewWithClient(client *redis.Client, ttl time.Duration) *Client {
	return &Client{client: client, ttl: ttl}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func narrativeKey(profileID string) string {
	return fmt.Sprintf("narrative:%s", profileID)
}

func (c *Client) SetNarrative(ctx context.Context, profileID string, n Narrative) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal narrative: %w", err)
	}

	err = c.client.Set(ctx, narrativeKey(profileID), data, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set narrative cache: %w", err)
	}

	logger.Debug("Narrative cached", zap.String("profile_id", profileID), zap.Duration("ttl", c.ttl))
	return nil
}

// GetNarrative reports false without error on a miss.
func (c *Client) GetNarrative(ctx context.Context, profileID string) (Narrative, bool, error) {
	var n Narrative

	data, err := c.client.Get(ctx, narrativeKey(profileID)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return n, false, nil
	}
	if err != nil {
		return n, false, fmt.Errorf("failed to get narrative cache: %w", err)
	}

	if err := json.Unmarshal(data, &n); err != nil {
		return n, false, fmt.Errorf("failed to unmarshal narrative: %w", err)
	}

	metrics.CacheHits.WithLabelValues(cacheType).Inc()
	logger.Debug("Narrative cache hit", zap.String("profile_id", profileID))
	return n, true, nil
}
