package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPrefix = "directory"
	DefaultTTL    = 30 * time.Second
)

// Redis keeps bindings as expiring keys. A published binding is refreshed by a
// heartbeat job so it disappears on its own when the server dies.
type Redis struct {
	redis  *redis.Client
	prefix string // e.g. "directory" -> "directory:AuctionService"
	ttl    time.Duration

	mu        sync.Mutex
	heartbeat gocron.Scheduler
	jobs      map[string]gocron.Job
}

type RedisOption func(*Redis)

func WithTTL(ttl time.Duration) RedisOption {
	return func(d *Redis) {
		d.ttl = ttl
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) (*Redis, error) {
	d := &Redis{
		redis:  client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
		jobs:   make(map[string]gocron.Job),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.ttl <= 0 {
		d.ttl = DefaultTTL
	}

	heartbeat, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat scheduler: %w", err)
	}
	heartbeat.Start()
	d.heartbeat = heartbeat

	return d, nil
}

func (d *Redis) key(name string) string {
	return fmt.Sprintf("%s:%s", d.prefix, name)
}

// Publish writes the binding and keeps it alive until Withdraw or Close.
func (d *Redis) Publish(ctx context.Context, name string, address string) error {
	if err := d.redis.Set(ctx, d.key(name), address, d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish binding %s: %w", name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if job, ok := d.jobs[name]; ok {
		_ = d.heartbeat.RemoveJob(job.ID())
	}

	job, err := d.heartbeat.NewJob(
		gocron.DurationJob(d.ttl/3),
		gocron.NewTask(func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), d.ttl/3)
			defer cancel()

			if err := d.redis.Set(refreshCtx, d.key(name), address, d.ttl).Err(); err != nil {
				log.Error().Err(err).Str("binding", name).Msg("failed to refresh directory binding")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule binding heartbeat: %w", err)
	}
	d.jobs[name] = job

	log.Info().Str("binding", name).Str("address", address).Dur("ttl", d.ttl).Msg("directory binding published")
	return nil
}

func (d *Redis) Resolve(ctx context.Context, name string) (string, error) {
	address, err := d.redis.Get(ctx, d.key(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrNotBound, name)
		}
		return "", fmt.Errorf("failed to resolve binding %s: %w", name, err)
	}
	return address, nil
}

func (d *Redis) Withdraw(ctx context.Context, name string) error {
	d.mu.Lock()
	if job, ok := d.jobs[name]; ok {
		_ = d.heartbeat.RemoveJob(job.ID())
		delete(d.jobs, name)
	}
	d.mu.Unlock()

	return d.redis.Del(ctx, d.key(name)).Err()
}

// Close stops refreshing bindings. Keys already written expire with their TTL.
func (d *Redis) Close() error {
	return d.heartbeat.Shutdown()
}
