package searcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MotherTongues/mothertongues/internal/ranker"
	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
	"github.com/MotherTongues/mothertongues/pkg/logger"
	"github.com/MotherTongues/mothertongues/pkg/tracing"
)

// Query states, recorded as child spans of the query's root span.
const (
	StateReceived       = "received"
	StateNormalized     = "normalized"
	StateTokenized      = "tokenized"
	StatePerTermMatched = "per_term_matched"
	StateAggregated     = "aggregated"
	StateRanked         = "ranked"
	StateReturned       = "returned"
)

// Query is one search request. Limit 0 means search.defaultLimit and a
// negative Limit asks for every hit; both are capped by search.maxResults.
type Query struct {
	Text   string `json:"text"`
	Side   string `json:"side"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

// Result is a page of ranked hits. Total counts every matching entry before
// paging.
type Result struct {
	Query      string       `json:"query"`
	Side       config.Side  `json:"side"`
	Normalized string       `json:"normalized"`
	Terms      []string     `json:"terms"`
	Generation uint64       `json:"generation"`
	Total      int          `json:"total"`
	Hits       []ranker.Hit `json:"hits"`
}

// Search runs q against the published snapshot of its side. A query that
// analyzes to no terms yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	side, err := config.ParseSide(q.Side)
	if err != nil {
		e.recordQuery("unknown", "", "error", start, 0)
		return nil, err
	}
	snap := e.Snapshot(side)
	if snap == nil {
		e.recordQuery(string(side), "", "error", start, 0)
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexUnavailable, side)
	}

	queryID := logger.QueryID(ctx)
	if queryID == "" {
		queryID = string(side) + "-" + strconv.FormatUint(e.querySeq.Add(1), 10)
		ctx = logger.WithQueryID(ctx, queryID)
	}
	log := logger.FromContext(ctx).With("component", "search-engine")
	// A caller that already traces gets the query as a child span and logs
	// the tree itself.
	var root *tracing.Span
	if tracing.SpanFromContext(ctx) != nil {
		ctx, root = tracing.StartChildSpan(ctx, "search")
		defer root.End()
	} else {
		ctx, root = tracing.StartSpan(ctx, "search", queryID)
		defer func() {
			root.End()
			root.Log(ctx, log)
		}()
	}
	root.SetAttr("side", string(side))
	root.SetAttr("generation", snap.Generation)

	res, outcome, err := e.run(ctx, snap, q)
	results := 0
	if res != nil {
		results = res.Total
	}
	e.recordQuery(string(side), snap.Matcher.Strategy(), outcome, start, results)
	if err != nil {
		log.Warn("query failed", "side", side, "error", err)
		return nil, err
	}
	log.Debug("query executed",
		"side", side,
		"terms", res.Terms,
		"total", res.Total,
		"returned", len(res.Hits),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Engine) run(ctx context.Context, snap *Snapshot, q Query) (*Result, string, error) {
	res := &Result{
		Query:      q.Text,
		Side:       snap.Side,
		Generation: snap.Generation,
		Terms:      []string{},
		Hits:       []ranker.Hit{},
	}
	step(ctx, StateReceived, func(sp *tracing.Span) {
		sp.SetAttr("offset", q.Offset)
		sp.SetAttr("limit", q.Limit)
	})
	step(ctx, StateNormalized, func(sp *tracing.Span) {
		res.Normalized = snap.Analyzer.Normalize(q.Text)
		sp.SetAttr("normalized", res.Normalized)
	})
	step(ctx, StateTokenized, func(sp *tracing.Span) {
		res.Terms = snap.Analyzer.Terms(q.Text)
		sp.SetAttr("terms", len(res.Terms))
	})
	if len(res.Terms) == 0 {
		step(ctx, StateReturned, func(*tracing.Span) {})
		return res, "empty_query", nil
	}

	var candidates []ranker.Candidate
	var matchedTerms []string
	var err error
	step(ctx, StatePerTermMatched, func(sp *tracing.Span) {
		candidates, matchedTerms, err = e.collect(ctx, snap, res.Terms)
		sp.SetAttr("candidates", len(candidates))
		sp.SetAttr("index_terms", len(matchedTerms))
	})
	if err != nil {
		return nil, "error", err
	}

	var hits []ranker.Hit
	step(ctx, StateAggregated, func(sp *tracing.Span) {
		matched := snap.Index.EntriesMatching(matchedTerms)
		res.Total = int(matched.GetCardinality())
		hits = ranker.Aggregate(candidates, matched)
		sp.SetAttr("entries", res.Total)
	})
	step(ctx, StateRanked, func(sp *tracing.Span) {
		res.Hits = ranker.Page(hits, q.Offset, e.limit(q.Limit))
		sp.SetAttr("returned", len(res.Hits))
	})
	step(ctx, StateReturned, func(*tracing.Span) {})

	if res.Total == 0 {
		return res, "zero_result", nil
	}
	return res, "hit", nil
}

// collect matches every query term and expands the matched index terms into
// per-entry candidates. Terms are processed in query order. The distinct
// index terms matched by any query term are returned alongside.
func (e *Engine) collect(ctx context.Context, snap *Snapshot, terms []string) ([]ranker.Candidate, []string, error) {
	maxDistance := snap.Profile.MaxDistance
	candidates := make([]ranker.Candidate, 0)
	var indexTerms []string
	seen := make(map[string]struct{})
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("matching %q: %w", term, err)
		}
		matches, err := snap.Matcher.Match(ctx, term, maxDistance)
		if err != nil {
			return nil, nil, fmt.Errorf("matching %q: %w", term, err)
		}
		if e.metrics != nil {
			e.metrics.MatchedTerms.WithLabelValues(string(snap.Side), snap.Matcher.Strategy()).Observe(float64(len(matches)))
		}
		for _, m := range matches {
			if _, ok := seen[m.Term]; !ok {
				seen[m.Term] = struct{}{}
				indexTerms = append(indexTerms, m.Term)
			}
			for _, p := range snap.Index.Lookup(m.Term) {
				candidates = append(candidates, ranker.Candidate{
					EntryID:   p.EntryID,
					Ordinal:   p.Ordinal,
					QueryTerm: term,
					IndexTerm: m.Term,
					Distance:  m.Distance,
					BM25:      p.Score,
					Locations: p.Locations,
				})
			}
		}
	}
	return candidates, indexTerms, nil
}

func (e *Engine) limit(requested int) int {
	limit := requested
	if limit == 0 {
		limit = e.search.DefaultLimit
	}
	if e.search.MaxResults > 0 && (limit <= 0 || limit > e.search.MaxResults) {
		limit = e.search.MaxResults
	}
	return limit
}

// step runs fn inside a child span named after a query state.
func step(ctx context.Context, name string, fn func(sp *tracing.Span)) {
	_, sp := tracing.StartChildSpan(ctx, name)
	fn(sp)
	sp.End()
}

func (e *Engine) recordQuery(side, strategy, outcome string, start time.Time, results int) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(side, outcome).Inc()
	if outcome == "error" {
		return
	}
	e.metrics.SearchLatency.WithLabelValues(side, strategy).Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.WithLabelValues(side).Observe(float64(results))
}
