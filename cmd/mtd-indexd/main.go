package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/MotherTongues/mothertongues/internal/reload"
	"github.com/MotherTongues/mothertongues/internal/searcher"
	"github.com/MotherTongues/mothertongues/internal/searcher/cache"
	"github.com/MotherTongues/mothertongues/internal/source"
	"github.com/MotherTongues/mothertongues/pkg/config"
	"github.com/MotherTongues/mothertongues/pkg/health"
	"github.com/MotherTongues/mothertongues/pkg/kafka"
	"github.com/MotherTongues/mothertongues/pkg/logger"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/development.yaml", "path to config file")
	sourcePath := pflag.String("source", "", "override source.path")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *sourcePath != "" {
		cfg.Source.Path = *sourcePath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("mtd-indexd failed", "error", err)
		os.Exit(1)
	}
	slog.Info("mtd-indexd stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting mtd-indexd",
		"source", cfg.Source.Type,
		"cache", cfg.Cache.Backend,
		"l1", cfg.Dictionary.L1Name,
		"l2", cfg.Dictionary.L2Name,
	)

	m := metrics.New(prometheus.DefaultRegisterer)
	engine := searcher.New(cfg.Dictionary, cfg.Search, m)
	checker := health.NewChecker()
	for _, side := range config.Sides {
		side := side
		checker.Register("index_"+string(side), health.FromError(func(context.Context) error {
			return engine.Ready(side)
		}))
	}

	src, closeSource, err := source.Open(ctx, cfg.Source, cfg.Postgres)
	if err != nil {
		return err
	}
	defer closeSource()

	opts := []reload.Option{reload.WithMetrics(m)}
	store, closeStore, err := cache.OpenStore(ctx, cfg.Cache, cfg.Redis, m)
	if err != nil {
		return err
	}
	defer closeStore()
	if store != nil {
		qc := cache.New(engine, store, cfg.Cache.TTL, m)
		opts = append(opts, reload.WithCache(qc))
		if rs, ok := store.(*cache.RedisStore); ok {
			checker.Register("redis", health.Degradable(rs.Ping))
		}
	}

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt)
		defer producer.Close()
		opts = append(opts, reload.WithPublisher(producer))
	}

	reloader := reload.New(src, engine, cfg.Search.BuildTimeout, opts...)

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
	}

	// Readiness stays down for any side whose initial build fails; a later
	// DictionaryUpdated event can still bring it up.
	if err := reloader.Reload(ctx, config.Sides); err != nil {
		slog.Error("initial build incomplete", "error", err)
	}

	if producer != nil {
		consumer := reload.NewConsumer(cfg.Kafka, reloader)
		slog.Info("watching for dictionary updates",
			"topic", cfg.Kafka.Topics.DictionaryUpdated,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("reload consumer error", "error", err)
		}
	} else {
		slog.Info("no kafka brokers configured, serving the initial build only")
		<-ctx.Done()
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	return nil
}
