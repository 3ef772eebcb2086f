package cache

import (
	"context"
	"fmt"

	"github.com/MotherTongues/mothertongues/pkg/config"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
	pkgredis "github.com/MotherTongues/mothertongues/pkg/redis"
)

// OpenStore returns the store selected by cfg.Backend, or nil for "none".
// closeFn releases the Redis connection when there is one.
func OpenStore(ctx context.Context, cfg config.CacheConfig, rc config.RedisConfig, m *metrics.Metrics) (store Store, closeFn func() error, err error) {
	closeFn = func() error { return nil }
	switch cfg.Backend {
	case config.CacheNone:
		return nil, closeFn, nil
	case config.CacheMemory, "":
		return NewMemoryStore(cfg.TTL), closeFn, nil
	case config.CacheRedis:
		client, err := pkgredis.NewClient(ctx, rc)
		if err != nil {
			return nil, closeFn, fmt.Errorf("opening query cache: %w", err)
		}
		return NewRedisStore(client, m), client.Close, nil
	default:
		return nil, closeFn, fmt.Errorf("opening query cache: unknown backend %q", cfg.Backend)
	}
}
