// Package index builds the immutable inverted index of one dictionary side:
// analyzed term -> postings (entry, per-field frequency, locations, BM25),
// plus a roaring bitmap of entry ordinals per term.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/internal/tokenizer"
	"github.com/MotherTongues/mothertongues/pkg/config"
)

// BuildOptions carries the language profile pieces the build needs.
type BuildOptions struct {
	KeysToIndex []string
	Analyzer    *tokenizer.Analyzer
	BM25        config.BM25Config
}

// Index is a read-only term -> postings map. All methods are safe for
// concurrent use because nothing mutates an Index after Build returns.
type Index struct {
	postings map[string]PostingList
	bitmaps  map[string]*roaring.Bitmap
	terms    []string
	keys     []string
	stats    Stats
}

// Build indexes entries under opts. Entries are validated and processed in
// identifier order, so identical input yields an identical index.
func Build(ctx context.Context, entries []dictionary.Entry, opts BuildOptions) (*Index, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("building index: analyzer is required")
	}
	if err := dictionary.Validate(entries); err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}
	start := time.Now()
	keys := dedupe(opts.KeysToIndex)
	sorted := dictionary.Sorted(entries)
	b := newBuilder()

	for i, entry := range sorted {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("building index: %w", err)
			}
		}
		ordinal := uint32(i)
		for _, key := range keys {
			values := entry.Values(key)
			if len(values) == 0 {
				b.addEmpty(ordinal, key)
				continue
			}
			for _, v := range values {
				b.addValue(ordinal, entry.ID, key, v.Key, opts.Analyzer.Analyze(v.Text))
			}
		}
	}

	b.score(keys, func(docs [][]string) *BM25 {
		return NewBM25(docs, opts.BM25)
	})

	idx := &Index{
		postings: make(map[string]PostingList, len(b.postings)),
		bitmaps:  b.bitmaps,
		terms:    make([]string, 0, len(b.postings)),
		keys:     keys,
	}
	postingCount := 0
	for term, docs := range b.postings {
		ordinals := make([]uint32, 0, len(docs))
		for ord := range docs {
			ordinals = append(ordinals, ord)
		}
		sort.Slice(ordinals, func(i, j int) bool { return ordinals[i] < ordinals[j] })
		list := make(PostingList, 0, len(ordinals))
		for _, ord := range ordinals {
			list = append(list, *docs[ord])
		}
		idx.postings[term] = list
		idx.terms = append(idx.terms, term)
		postingCount += len(list)
	}
	sort.Strings(idx.terms)
	for _, bm := range idx.bitmaps {
		bm.RunOptimize()
	}
	idx.stats = Stats{
		Entries:  len(sorted),
		Terms:    len(idx.terms),
		Postings: postingCount,
	}

	slog.Default().With("component", "index-builder").Info("index built",
		"entries", idx.stats.Entries,
		"terms", idx.stats.Terms,
		"postings", idx.stats.Postings,
		"keys", keys,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return idx, nil
}

// Lookup returns the postings of term in entry order, or nil. The returned
// slice is shared and must not be modified.
func (ix *Index) Lookup(term string) PostingList {
	return ix.postings[term]
}

// Terms returns the sorted vocabulary. The slice is shared and must not be
// modified.
func (ix *Index) Terms() []string {
	return ix.terms
}

// Keys returns the configured keys this index was built from.
func (ix *Index) Keys() []string {
	return ix.keys
}

// EntriesMatching returns the ordinals of every entry holding at least one
// of terms. The result is a fresh bitmap the caller may modify.
func (ix *Index) EntriesMatching(terms []string) *roaring.Bitmap {
	bitmaps := make([]*roaring.Bitmap, 0, len(terms))
	for _, term := range terms {
		if bm, ok := ix.bitmaps[term]; ok {
			bitmaps = append(bitmaps, bm)
		}
	}
	if len(bitmaps) == 0 {
		return roaring.NewBitmap()
	}
	return roaring.FastOr(bitmaps...)
}

func (ix *Index) Stats() Stats {
	return ix.stats
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
