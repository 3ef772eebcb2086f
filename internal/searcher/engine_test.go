package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
	"github.com/MotherTongues/mothertongues/pkg/metrics"
	"github.com/MotherTongues/mothertongues/pkg/tracing"
)

func testConfig(tweak func(l1 *config.SideConfig)) *config.Config {
	cfg := config.Default()
	cfg.Dictionary.L1.KeysToIndex = []string{"word"}
	cfg.Dictionary.L2.KeysToIndex = []string{"definition"}
	if tweak != nil {
		tweak(&cfg.Dictionary.L1)
	}
	return cfg
}

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	return New(cfg.Dictionary, cfg.Search, metrics.New(prometheus.NewRegistry()))
}

func catMat() []dictionary.Entry {
	return []dictionary.Entry{
		{ID: "1", Fields: map[string]any{"word": "cat", "definition": "a small feline"}},
		{ID: "2", Fields: map[string]any{"word": "mat", "definition": "a floor covering"}},
	}
}

func hitIDs(res *Result) []string {
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.EntryID
	}
	return ids
}

func build(t *testing.T, e *Engine, side config.Side, entries []dictionary.Entry) Handle {
	t.Helper()
	h, err := e.Build(context.Background(), side, entries)
	require.NoError(t, err)
	return h
}

func TestScenario_UniformTie(t *testing.T) {
	e := newEngine(t, testConfig(nil))
	build(t, e, config.SideL1, catMat())

	res, err := e.Search(context.Background(), Query{Text: "kat", Side: "l1"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res))
	assert.Equal(t, 1.0, res.Hits[0].Distance)
	assert.Equal(t, 1.0, res.Hits[1].Distance)
	assert.Equal(t, res.Hits[0].BM25, res.Hits[1].BM25)
}

func TestScenario_SubstitutionCost(t *testing.T) {
	e := newEngine(t, testConfig(func(l1 *config.SideConfig) {
		l1.WeightedLevenshtein.SubstitutionCosts = map[string]map[string]float64{"c": {"k": 0.5}}
	}))
	build(t, e, config.SideL1, catMat())

	res, err := e.Search(context.Background(), Query{Text: "kat", Side: "l1"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "1", res.Hits[0].EntryID)
	assert.Equal(t, 0.5, res.Hits[0].Distance)
	assert.Equal(t, "2", res.Hits[1].EntryID)
	assert.Equal(t, 1.0, res.Hits[1].Distance)
}

func TestScenario_CaseFolding(t *testing.T) {
	e := newEngine(t, testConfig(nil))
	build(t, e, config.SideL1, catMat())

	res, err := e.Search(context.Background(), Query{Text: "CAT", Side: "L1"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "1", res.Hits[0].EntryID)
	assert.Equal(t, 0.0, res.Hits[0].Distance)
	assert.Equal(t, "cat", res.Normalized)
	assert.Equal(t, []string{"cat"}, res.Terms)
}

func TestScenario_BeyondMaxDistance(t *testing.T) {
	e := newEngine(t, testConfig(nil))
	build(t, e, config.SideL1, catMat())

	res, err := e.Search(context.Background(), Query{Text: "elephant", Side: "l1"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
	assert.Zero(t, res.Total)
}

func TestSearch_CutoffAcrossBounds(t *testing.T) {
	entries := []dictionary.Entry{
		{ID: "1", Fields: map[string]any{"word": "cat"}},
		{ID: "2", Fields: map[string]any{"word": "cart"}},
		{ID: "3", Fields: map[string]any{"word": "scatter"}},
		{ID: "4", Fields: map[string]any{"word": "dog"}},
	}
	for _, bound := range []float64{0, 0.5, 1, 2, 3} {
		t.Run(fmt.Sprint(bound), func(t *testing.T) {
			e := newEngine(t, testConfig(func(l1 *config.SideConfig) { l1.MaxDistance = bound }))
			build(t, e, config.SideL1, entries)
			res, err := e.Search(context.Background(), Query{Text: "cat", Side: "l1", Limit: -1})
			require.NoError(t, err)
			for _, h := range res.Hits {
				assert.LessOrEqual(t, h.Distance, bound)
			}
		})
	}
}

func TestSearch_MultiTermSumsBM25(t *testing.T) {
	cfg := testConfig(nil)
	e := newEngine(t, cfg)
	words := []string{"small dog", "large dog", "small cat", "tree", "house", "river", "fish", "bird"}
	entries := make([]dictionary.Entry, 0, len(words))
	for i, w := range words {
		entries = append(entries, dictionary.Entry{ID: fmt.Sprint(i + 1), Fields: map[string]any{"definition": w}})
	}
	build(t, e, config.SideL2, entries)

	res, err := e.Search(context.Background(), Query{Text: "small dog", Side: "l2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, hitIDs(res))
	for _, h := range res.Hits {
		assert.Equal(t, 0.0, h.Distance)
	}
	assert.Greater(t, res.Hits[0].BM25, res.Hits[1].BM25, "both query terms outrank one")
	assert.Len(t, res.Hits[0].Terms, 2)
	assert.Equal(t, 3, res.Total, "an entry matched by two terms counts once")

	res, err = e.Search(context.Background(), Query{Text: "small dog", Side: "l2", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{"2"}, hitIDs(res))
}

func TestSearch_ListFieldLocations(t *testing.T) {
	e := newEngine(t, testConfig(func(l1 *config.SideConfig) {
		l1.KeysToIndex = []string{"word", "example_sentence"}
	}))
	build(t, e, config.SideL1, []dictionary.Entry{
		{ID: "1", Fields: map[string]any{"word": "kat", "example_sentence": []any{"en kat sover", "to kat"}}},
	})

	res, err := e.Search(context.Background(), Query{Text: "kat", Side: "l1"})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	fields := make([]string, 0)
	for _, loc := range res.Hits[0].Locations {
		fields = append(fields, loc.Field)
	}
	assert.ElementsMatch(t, []string{"word", "example_sentence[0]", "example_sentence[1]"}, fields)
}

func TestSearch_EmptyQuery(t *testing.T) {
	e := newEngine(t, testConfig(nil))
	build(t, e, config.SideL1, catMat())

	for _, text := range []string{"", "   ", "?!.,"} {
		res, err := e.Search(context.Background(), Query{Text: text, Side: "l1"})
		require.NoError(t, err, text)
		assert.Empty(t, res.Hits)
		assert.Empty(t, res.Terms)
	}
}

func TestSearch_Errors(t *testing.T) {
	e := newEngine(t, testConfig(nil))

	_, err := e.Search(context.Background(), Query{Text: "cat", Side: "l1"})
	assert.True(t, errors.Is(err, apperrors.ErrIndexUnavailable))
	assert.True(t, errors.Is(e.Ready(config.SideL1), apperrors.ErrIndexUnavailable))

	_, err = e.Search(context.Background(), Query{Text: "cat", Side: "l3"})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownSide))

	_, err = e.Build(context.Background(), config.Side("l3"), catMat())
	assert.True(t, errors.Is(err, apperrors.ErrUnknownSide))

	build(t, e, config.SideL1, catMat())
	assert.NoError(t, e.Ready(config.SideL1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Search(ctx, Query{Text: "cat", Side: "l1"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSearch_Paging(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Search.DefaultLimit = 2
	cfg.Search.MaxResults = 3
	e := newEngine(t, cfg)
	entries := make([]dictionary.Entry, 0, 5)
	for i, w := range []string{"cat", "bat", "hat", "mat", "rat"} {
		entries = append(entries, dictionary.Entry{ID: fmt.Sprint(i + 1), Fields: map[string]any{"word": w}})
	}
	build(t, e, config.SideL1, entries)

	res, err := e.Search(context.Background(), Query{Text: "cat", Side: "l1"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res))

	res, err = e.Search(context.Background(), Query{Text: "cat", Side: "l1", Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, hitIDs(res))

	res, err = e.Search(context.Background(), Query{Text: "cat", Side: "l1", Limit: -1})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 3, "capped by maxResults")
}

func TestBuild_ConfigErrorsKeepPreviousIndex(t *testing.T) {
	cfg := testConfig(nil)
	e := newEngine(t, cfg)
	first := build(t, e, config.SideL1, catMat())
	assert.Equal(t, uint64(1), first.Generation)

	tests := []struct {
		name  string
		tweak func(*config.SideConfig)
		want  error
		field string
	}{
		{"missing keys", func(s *config.SideConfig) { s.KeysToIndex = nil },
			apperrors.ErrInvalidConfig, "dictionary.l1.keysToIndex"},
		{"automaton with substitutions", func(s *config.SideConfig) {
			s.SearchStrategy = config.StrategyLevenshteinAutomata
			s.WeightedLevenshtein.SubstitutionCosts = map[string]map[string]float64{"c": {"k": 0.5}}
		}, apperrors.ErrUnsupportedStrategy, "dictionary.l1.weightedLevenshtein.substitutionCosts"},
		{"unknown stemmer", func(s *config.SideConfig) { s.Stemmer = "porter9" },
			apperrors.ErrInvalidConfig, "dictionary.l1.stemmer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := testConfig(tt.tweak)
			be := New(broken.Dictionary, broken.Search, nil)
			_, err := be.Build(context.Background(), config.SideL1, catMat())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			field, ok := apperrors.FieldPath(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, field)
			assert.Nil(t, be.Snapshot(config.SideL1))
		})
	}

	_, err := e.Build(context.Background(), config.SideL1, []dictionary.Entry{{ID: "1"}, {ID: "1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidEntry))
	assert.Equal(t, uint64(1), e.Snapshot(config.SideL1).Generation)
}

// expiringContext reports no error for its first Err calls and
// context.DeadlineExceeded once remaining runs out.
type expiringContext struct {
	context.Context
	remaining atomic.Int64
}

func (c *expiringContext) Err() error {
	if c.remaining.Add(-1) < 0 {
		return context.DeadlineExceeded
	}
	return nil
}

func TestBuild_ExpiredContextNeverPublishes(t *testing.T) {
	const budget = 1000
	e := newEngine(t, testConfig(nil))
	build(t, e, config.SideL1, catMat())

	counting := &expiringContext{Context: context.Background()}
	counting.remaining.Store(budget)
	build(t, e, config.SideL1, catMat())
	_, err := e.Build(counting, config.SideL1, catMat())
	require.NoError(t, err)
	checks := budget - counting.remaining.Load()
	require.Positive(t, checks)
	require.Equal(t, uint64(3), e.Snapshot(config.SideL1).Generation)

	// Expire at every check, including the last one taken just before
	// publishing.
	for allowed := int64(0); allowed < checks; allowed++ {
		t.Run(fmt.Sprintf("expires_after_%d_checks", allowed), func(t *testing.T) {
			ctx := &expiringContext{Context: context.Background()}
			ctx.remaining.Store(allowed)
			_, err := e.Build(ctx, config.SideL1, []dictionary.Entry{
				{ID: "7", Fields: map[string]any{"word": "hund"}},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, uint64(3), e.Snapshot(config.SideL1).Generation)
			assert.Empty(t, e.Snapshot(config.SideL1).Index.Lookup("hund"))
		})
	}
}

func TestBuild_EmptyKeysGiveEmptyIndex(t *testing.T) {
	e := newEngine(t, testConfig(func(l1 *config.SideConfig) { l1.KeysToIndex = []string{} }))
	h := build(t, e, config.SideL1, catMat())
	assert.Zero(t, h.Stats.Terms)

	res, err := e.Search(context.Background(), Query{Text: "cat", Side: "l1"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestBuild_AutomatonStrategy(t *testing.T) {
	e := newEngine(t, testConfig(func(l1 *config.SideConfig) {
		l1.SearchStrategy = config.StrategyLevenshteinAutomata
	}))
	h := build(t, e, config.SideL1, catMat())
	assert.Equal(t, config.StrategyLevenshteinAutomata, h.Strategy)

	res, err := e.Search(context.Background(), Query{Text: "kat", Side: "l1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, hitIDs(res))
}

func TestSearch_RecordsQueryStates(t *testing.T) {
	e := newEngine(t, testConfig(nil))
	build(t, e, config.SideL1, catMat())

	ctx, parent := tracing.StartSpan(context.Background(), "test", "trace-1")
	_, err := e.Search(ctx, Query{Text: "kat", Side: "l1"})
	require.NoError(t, err)
	require.Len(t, parent.Children, 1)
	assert.Equal(t, []string{
		StateReceived, StateNormalized, StateTokenized, StatePerTermMatched,
		StateAggregated, StateRanked, StateReturned,
	}, parent.Children[0].ChildNames())
}

func TestRebuildIsAtomic(t *testing.T) {
	e := newEngine(t, testConfig(nil))
	oldEntries := []dictionary.Entry{
		{ID: "1", Fields: map[string]any{"word": "cat"}},
		{ID: "2", Fields: map[string]any{"word": "cot"}},
	}
	newEntries := []dictionary.Entry{
		{ID: "3", Fields: map[string]any{"word": "cut"}},
		{ID: "4", Fields: map[string]any{"word": "cat"}},
		{ID: "5", Fields: map[string]any{"word": "kit"}},
	}
	build(t, e, config.SideL1, oldEntries)

	want := map[string]bool{"1,2": true, "4,3,5": true}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := e.Search(context.Background(), Query{Text: "cat", Side: "l1", Limit: -1})
				if err != nil {
					errs <- err.Error()
					return
				}
				got := fmt.Sprint(hitIDs(res))
				key := ""
				for i, id := range hitIDs(res) {
					if i > 0 {
						key += ","
					}
					key += id
				}
				if !want[key] {
					errs <- got
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			build(t, e, config.SideL1, newEntries)
		} else {
			build(t, e, config.SideL1, oldEntries)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Errorf("mixed or failed result: %s", msg)
	}
	assert.Equal(t, uint64(21), e.Snapshot(config.SideL1).Generation)
}

func BenchmarkEngine_Search(b *testing.B) {
	cfg := testConfig(nil)
	e := New(cfg.Dictionary, cfg.Search, nil)
	words := []string{"kat", "hund", "hest", "fugl", "bjørn", "ko", "gris", "får", "ged", "mus"}
	entries := make([]dictionary.Entry, 0, 2000)
	for i := 0; i < 2000; i++ {
		word := fmt.Sprintf("%s%d", words[i%len(words)], i/len(words))
		entries = append(entries, dictionary.Entry{ID: fmt.Sprint(i + 1), Fields: map[string]any{"word": word}})
	}
	if _, err := e.Build(context.Background(), config.SideL1, entries); err != nil {
		b.Fatal(err)
	}
	q := Query{Text: "hnd12", Side: "l1", Limit: 10}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Search(context.Background(), q); err != nil {
			b.Fatal(err)
		}
	}
}
