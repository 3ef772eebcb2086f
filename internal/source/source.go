// Package source loads dictionary entries from the configured backing
// store: a JSON file produced by the MTD parsers or a PostgreSQL table.
package source

import (
	"context"
	"fmt"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/pkg/config"
	"github.com/MotherTongues/mothertongues/pkg/postgres"
	"github.com/MotherTongues/mothertongues/pkg/resilience"
)

// Source yields the full set of entries for one build.
type Source interface {
	Load(ctx context.Context) ([]dictionary.Entry, error)
	Name() string
}

// Retrying retries transient load failures. Errors marked with
// resilience.Permanent, such as malformed records, fail immediately.
type Retrying struct {
	src Source
	cfg resilience.RetryConfig
}

func NewRetrying(src Source, cfg resilience.RetryConfig) *Retrying {
	return &Retrying{src: src, cfg: cfg}
}

func (r *Retrying) Name() string {
	return r.src.Name()
}

func (r *Retrying) Load(ctx context.Context) ([]dictionary.Entry, error) {
	var entries []dictionary.Entry
	err := resilience.Retry(ctx, "load "+r.src.Name(), r.cfg, func() error {
		var err error
		entries, err = r.src.Load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Open builds the source selected by cfg.Type, wrapped in Retrying. The
// returned close function releases any connection the source holds.
func Open(ctx context.Context, cfg config.SourceConfig, pg config.PostgresConfig) (Source, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Type {
	case config.SourceFile, "":
		return NewRetrying(NewFile(cfg.Path), resilience.RetryConfig{}), noop, nil
	case config.SourcePostgres:
		client, err := postgres.New(ctx, pg)
		if err != nil {
			return nil, noop, fmt.Errorf("opening entry source: %w", err)
		}
		return NewRetrying(NewPostgres(client.DB, cfg.Table), resilience.RetryConfig{}), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("opening entry source: unknown type %q", cfg.Type)
	}
}
