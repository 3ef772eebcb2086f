// Package searcher owns the published index snapshot of each dictionary side
// and runs approximate queries against it.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/internal/index"
	"github.com/MotherTongues/mothertongues/internal/matcher"
	"github.com/MotherTongues/mothertongues/internal/tokenizer"
	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
)

type slot struct {
	current atomic.Pointer[Snapshot]
	// publish serializes generation assignment; builds themselves run
	// outside it.
	publish sync.Mutex
}

// Engine builds and serves the L1 and L2 indexes.
type Engine struct {
	dict     config.DictionaryConfig
	search   config.SearchConfig
	slots    map[config.Side]*slot
	metrics  *metrics.Metrics
	logger   *slog.Logger
	querySeq atomic.Uint64
}

// New creates an engine with no published index. m may be nil.
func New(dict config.DictionaryConfig, search config.SearchConfig, m *metrics.Metrics) *Engine {
	slots := make(map[config.Side]*slot, len(config.Sides))
	for _, side := range config.Sides {
		slots[side] = &slot{}
	}
	return &Engine{
		dict:    dict,
		search:  search,
		slots:   slots,
		metrics: m,
		logger:  slog.Default().With("component", "search-engine"),
	}
}

// Build indexes entries with the profile of side and publishes the result.
// On any error the previously published snapshot stays in place.
func (e *Engine) Build(ctx context.Context, side config.Side, entries []dictionary.Entry) (Handle, error) {
	sl, ok := e.slots[side]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownSide, side)
	}
	start := time.Now()
	snap, err := e.compile(ctx, side, entries)
	if err != nil {
		e.recordBuild(side, "error", start, nil)
		e.logger.Error("index build failed", "side", side, "entries", len(entries), "error", err)
		return Handle{}, err
	}

	sl.publish.Lock()
	if err := ctx.Err(); err != nil {
		sl.publish.Unlock()
		e.recordBuild(side, "error", start, nil)
		e.logger.Warn("index build abandoned, keeping previous index", "side", side, "error", err)
		return Handle{}, fmt.Errorf("publishing %s index: %w", side, err)
	}
	if prev := sl.current.Load(); prev != nil {
		snap.Generation = prev.Generation + 1
	} else {
		snap.Generation = 1
	}
	snap.BuiltAt = time.Now()
	sl.current.Store(snap)
	sl.publish.Unlock()

	took := time.Since(start)
	e.recordBuild(side, "success", start, snap)
	e.logger.Info("index published",
		"side", side,
		"generation", snap.Generation,
		"strategy", snap.Matcher.Strategy(),
		"entries", snap.Index.Stats().Entries,
		"terms", snap.Index.Stats().Terms,
		"duration_ms", took.Milliseconds(),
	)
	return snap.handle(took), nil
}

func (e *Engine) compile(ctx context.Context, side config.Side, entries []dictionary.Entry) (*Snapshot, error) {
	prefix := "dictionary." + string(side)
	profile := e.dict.Side(side)
	if err := profile.Validate(prefix); err != nil {
		return nil, err
	}
	analyzer, err := tokenizer.NewAnalyzer(profile)
	if err != nil {
		return nil, apperrors.Prefix(prefix, err)
	}
	idx, err := index.Build(ctx, entries, index.BuildOptions{
		KeysToIndex: profile.KeysToIndex,
		Analyzer:    analyzer,
		BM25:        profile.BM25,
	})
	if err != nil {
		return nil, fmt.Errorf("building %s index: %w", side, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("building %s index: %w", side, err)
	}
	m, err := matcher.New(profile, idx.Terms(), e.search.Workers)
	if err != nil {
		return nil, apperrors.Prefix(prefix, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("building %s matcher: %w", side, err)
	}
	return &Snapshot{
		Side:     side,
		Profile:  profile,
		Index:    idx,
		Matcher:  m,
		Analyzer: analyzer,
	}, nil
}

// Snapshot returns the published snapshot of side, or nil before the first
// successful build.
func (e *Engine) Snapshot(side config.Side) *Snapshot {
	sl, ok := e.slots[side]
	if !ok {
		return nil
	}
	return sl.current.Load()
}

// Ready reports ErrIndexUnavailable until side has a published index.
func (e *Engine) Ready(side config.Side) error {
	if e.Snapshot(side) == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrIndexUnavailable, side)
	}
	return nil
}

func (e *Engine) recordBuild(side config.Side, status string, start time.Time, snap *Snapshot) {
	if e.metrics == nil {
		return
	}
	label := string(side)
	e.metrics.IndexBuildsTotal.WithLabelValues(label, status).Inc()
	e.metrics.IndexBuildDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if snap == nil {
		return
	}
	stats := snap.Index.Stats()
	e.metrics.IndexTerms.WithLabelValues(label).Set(float64(stats.Terms))
	e.metrics.IndexEntries.WithLabelValues(label).Set(float64(stats.Entries))
	e.metrics.IndexGeneration.WithLabelValues(label).Set(float64(snap.Generation))
}
