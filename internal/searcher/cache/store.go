package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/MotherTongues/mothertongues/pkg/metrics"
	pkgredis "github.com/MotherTongues/mothertongues/pkg/redis"
	"github.com/MotherTongues/mothertongues/pkg/resilience"
)

// Store holds encoded results by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// MemoryStore keeps results in process with go-cache.
type MemoryStore struct {
	items *gocache.Cache
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	cleanup := 2 * ttl
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &MemoryStore{items: gocache.New(ttl, cleanup)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	s.items.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	var deleted int64
	for key := range s.items.Items() {
		if strings.HasPrefix(key, prefix) {
			s.items.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}

// RedisStore keeps results in Redis. Calls go through a circuit breaker so
// an unreachable Redis costs one fast failure per query instead of a
// timeout.
type RedisStore struct {
	client  *pkgredis.Client
	breaker *resilience.CircuitBreaker
}

// NewRedisStore wraps client. When m is not nil the breaker state is
// exported as mtd_circuit_breaker_state{name="redis-cache"}.
func NewRedisStore(client *pkgredis.Client, m *metrics.Metrics) *RedisStore {
	cfg := resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
	}
	if m != nil {
		cfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &RedisStore{
		client:  client,
		breaker: resilience.NewCircuitBreaker("redis-cache", cfg),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := s.breaker.Execute(func() error {
		var err error
		value, found, err = s.client.Get(ctx, key)
		return err
	})
	return value, found, err
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.breaker.Execute(func() error {
		return s.client.Set(ctx, key, value, ttl)
	})
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	var deleted int64
	err := s.breaker.Execute(func() error {
		var err error
		deleted, err = s.client.DeletePrefix(ctx, prefix)
		return err
	})
	return deleted, err
}

// Ping probes Redis directly, bypassing the breaker, for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
