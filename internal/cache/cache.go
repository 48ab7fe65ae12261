package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TariqKichawele/BrightData/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the Redis-backed helper interface. Job state is never cached here;
// Postgres stays the only source of truth.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// JobEvent is published on every job status transition.
type JobEvent struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
	At     time.Time        `json:"at"`
}

// Publisher announces job transitions. Publishing is best-effort; callers log
// and ignore failures.
type Publisher interface {
	PublishJobEvent(ctx context.Context, ev JobEvent) error
}

// Subscriber streams the events of a single job.
type Subscriber interface {
	SubscribeJobEvents(ctx context.Context, jobID uuid.UUID) (<-chan JobEvent, func() error, error)
}

// RedisCache implements Cache, Publisher and Subscriber using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) PublishJobEvent(ctx context.Context, ev JobEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	return c.client.Publish(ctx, JobEventsChannel(ev.JobID), b).Err()
}

// SubscribeJobEvents returns a channel of decoded events for jobID and a func
// that ends the subscription. The channel is closed once the subscription ends.
func (c *RedisCache) SubscribeJobEvents(ctx context.Context, jobID uuid.UUID) (<-chan JobEvent, func() error, error) {
	ps := c.client.Subscribe(ctx, JobEventsChannel(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe job events: %w", err)
	}

	out := make(chan JobEvent)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, ps.Close, nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishJobEvent(context.Context, JobEvent) error { return nil }
