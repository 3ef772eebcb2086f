// Package reload rebuilds dictionary indexes when a DictionaryUpdated event
// arrives on Kafka and announces each new generation on the completion
// topic.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/internal/searcher"
	"github.com/MotherTongues/mothertongues/internal/source"
	"github.com/MotherTongues/mothertongues/pkg/config"
	"github.com/MotherTongues/mothertongues/pkg/kafka"
	"github.com/MotherTongues/mothertongues/pkg/logger"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
	"github.com/MotherTongues/mothertongues/pkg/resilience"
)

type Builder interface {
	Build(ctx context.Context, side config.Side, entries []dictionary.Entry) (searcher.Handle, error)
}

// Invalidator drops cached results of a side after it is rebuilt.
type Invalidator interface {
	InvalidateSide(ctx context.Context, side config.Side) error
}

type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Reloader runs load, build and publish for each side named by an event.
type Reloader struct {
	source       source.Source
	builder      Builder
	cache        Invalidator
	publisher    Publisher
	buildTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

type Option func(*Reloader)

// WithCache invalidates cached query results after each successful build.
func WithCache(c Invalidator) Option {
	return func(r *Reloader) { r.cache = c }
}

// WithPublisher sends an IndexBuilt event per side.
func WithPublisher(p Publisher) Option {
	return func(r *Reloader) { r.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reloader) { r.metrics = m }
}

func New(src source.Source, builder Builder, buildTimeout time.Duration, opts ...Option) *Reloader {
	r := &Reloader{
		source:       src,
		builder:      builder,
		buildTimeout: buildTimeout,
		logger:       logger.WithComponent("reloader"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reload loads entries once and rebuilds each of sides. A side whose build
// fails keeps serving its previous index; the first such error is
// returned after every side has been attempted.
func (r *Reloader) Reload(ctx context.Context, sides []config.Side) error {
	entries, err := r.source.Load(ctx)
	if err != nil {
		r.record("load_failed")
		return fmt.Errorf("reloading from %s: %w", r.source.Name(), err)
	}

	var firstErr error
	for _, side := range sides {
		handle, err := r.buildSide(ctx, side, entries)
		r.announce(ctx, side, handle, err)
		if err != nil {
			r.logger.Error("rebuild failed, keeping previous index", "side", side, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if r.cache != nil {
			if err := r.cache.InvalidateSide(ctx, side); err != nil {
				r.logger.Warn("cache invalidation failed", "side", side, "error", err)
			}
		}
		r.logger.Info("side rebuilt",
			"side", side,
			"generation", handle.Generation,
			"entries", handle.Stats.Entries,
			"terms", handle.Stats.Terms,
		)
	}
	if firstErr != nil {
		r.record("build_failed")
		return firstErr
	}
	r.record("ok")
	return nil
}

func (r *Reloader) buildSide(ctx context.Context, side config.Side, entries []dictionary.Entry) (searcher.Handle, error) {
	var handle searcher.Handle
	err := resilience.WithTimeout(ctx, r.buildTimeout, "build "+string(side), func(ctx context.Context) error {
		h, err := r.builder.Build(ctx, side, entries)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	return handle, err
}

func (r *Reloader) announce(ctx context.Context, side config.Side, handle searcher.Handle, buildErr error) {
	if r.publisher == nil {
		return
	}
	event := IndexBuilt{Side: string(side), At: r.now().UTC()}
	if buildErr != nil {
		event.Error = buildErr.Error()
	} else {
		event.Generation = handle.Generation
		event.Handle = handle
	}
	if err := r.publisher.Publish(ctx, kafka.Event{Key: string(side), Value: event}); err != nil {
		r.logger.Warn("failed to publish index built event", "side", side, "error", err)
	}
}

func (r *Reloader) record(status string) {
	if r.metrics != nil {
		r.metrics.ReloadEventsTotal.WithLabelValues(status).Inc()
	}
}

// HandleMessage returns a kafka.MessageHandler for DictionaryUpdated
// events. Undecodable events and unknown sides are logged and
// acknowledged; a failed load or build is returned so the message is not
// committed.
func (r *Reloader) HandleMessage() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DictionaryUpdated](value)
		if err != nil {
			r.logger.Error("failed to decode dictionary update event", "error", err, "key", string(key))
			r.record("invalid")
			return nil
		}
		sides, err := parseSides(event.Sides)
		if err != nil {
			r.logger.Error("dictionary update names an unknown side", "error", err, "key", string(key))
			r.record("invalid")
			return nil
		}
		r.logger.Info("dictionary update received", "sides", sides, "reason", event.Reason)
		if err := r.Reload(ctx, sides); err != nil {
			return fmt.Errorf("handling dictionary update: %w", err)
		}
		return nil
	}
}

func parseSides(names []string) ([]config.Side, error) {
	if len(names) == 0 {
		return config.Sides, nil
	}
	seen := make(map[config.Side]struct{}, len(names))
	sides := make([]config.Side, 0, len(names))
	for _, name := range names {
		side, err := config.ParseSide(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[side]; dup {
			continue
		}
		seen[side] = struct{}{}
		sides = append(sides, side)
	}
	return sides, nil
}

// Consumer drives a Reloader from a Kafka topic.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, r *Reloader) *Consumer {
	return &Consumer{
		consumer: kafka.NewConsumer(cfg, cfg.Topics.DictionaryUpdated, r.HandleMessage()),
		logger:   logger.WithComponent("reload-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("reload consumer starting")
	return c.consumer.Start(ctx)
}
