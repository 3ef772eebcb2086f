package ranker

import (
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MotherTongues/mothertongues/internal/index"
)

func hitIDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.EntryID
	}
	return out
}

func TestAggregate_MinDistanceAndBM25PerQueryTerm(t *testing.T) {
	hits := Aggregate([]Candidate{
		{EntryID: "2", Ordinal: 1, QueryTerm: "kat", IndexTerm: "mat", Distance: 1, BM25: 0.1},
		{EntryID: "1", Ordinal: 0, QueryTerm: "kat", IndexTerm: "cat", Distance: 1, BM25: 0.4,
			Locations: []index.Location{{Field: "word", Position: 0}}},
		{EntryID: "1", Ordinal: 0, QueryTerm: "kat", IndexTerm: "kit", Distance: 1, BM25: 0.9},
		{EntryID: "1", Ordinal: 0, QueryTerm: "big", IndexTerm: "big", Distance: 0, BM25: 0.3,
			Locations: []index.Location{{Field: "definition", Position: 2}}},
	}, roaring.BitmapOf(0, 1))
	require.Len(t, hits, 2, "hits follow entry order, not arrival order")

	one := hits[0]
	assert.Equal(t, "1", one.EntryID)
	assert.Equal(t, 0.0, one.Distance)
	assert.InDelta(t, 1.2, one.BM25, 1e-9, "max for kat plus big")
	assert.Len(t, one.Terms, 3)
	assert.Equal(t, []index.Location{
		{Field: "word", Position: 0},
		{Field: "definition", Position: 2},
	}, one.Locations)

	assert.Equal(t, "2", hits[1].EntryID)
	assert.Equal(t, 1.0, hits[1].Distance)
	assert.Empty(t, hits[1].Locations)
}

func TestAggregate_Empty(t *testing.T) {
	assert.Empty(t, Aggregate(nil, nil))
	assert.Empty(t, Aggregate(nil, roaring.New()))
}

func TestAggregate_SparseOrdinals(t *testing.T) {
	hits := Aggregate([]Candidate{
		{EntryID: "900", Ordinal: 899, QueryTerm: "ko", IndexTerm: "ko", Distance: 0},
		{EntryID: "4", Ordinal: 3, QueryTerm: "ko", IndexTerm: "kø", Distance: 0.5},
		{EntryID: "77", Ordinal: 76, QueryTerm: "ko", IndexTerm: "ko", Distance: 0},
		{EntryID: "5", Ordinal: 4, QueryTerm: "ko", IndexTerm: "ko", Distance: 0},
	}, roaring.BitmapOf(3, 76, 899))
	assert.Equal(t, []string{"4", "77", "900"}, hitIDs(hits), "ordinal 4 is outside the matched set")
}

func TestAggregate_LocationsReportedOnce(t *testing.T) {
	shared := []index.Location{{Field: "word", Position: 0}, {Field: "example_sentence[1]", Position: 3}}
	hits := Aggregate([]Candidate{
		{EntryID: "1", Ordinal: 0, QueryTerm: "kat", IndexTerm: "kat", Distance: 0, Locations: shared},
		{EntryID: "1", Ordinal: 0, QueryTerm: "katt", IndexTerm: "kat", Distance: 1, Locations: shared},
		{EntryID: "1", Ordinal: 0, QueryTerm: "katt", IndexTerm: "katte", Distance: 1,
			Locations: []index.Location{{Field: "word", Position: 0}, {Field: "word", Position: 1}}},
	}, roaring.BitmapOf(0))
	require.Len(t, hits, 1)
	assert.Equal(t, []index.Location{
		{Field: "word", Position: 0},
		{Field: "example_sentence[1]", Position: 3},
		{Field: "word", Position: 1},
	}, hits[0].Locations)
	assert.Len(t, hits[0].Terms, 3)
}

func TestSort_DistanceBeforeBM25(t *testing.T) {
	hits := []Hit{
		{EntryID: "a", Distance: 1, BM25: 100, ordinal: 0},
		{EntryID: "b", Distance: 0.5, BM25: 0, ordinal: 1},
		{EntryID: "c", Distance: 1, BM25: 200, ordinal: 2},
		{EntryID: "d", Distance: 0.5, BM25: 0, ordinal: 3},
		{EntryID: "e", Distance: 0, BM25: 0, ordinal: 4},
	}
	Sort(hits)
	assert.Equal(t, []string{"e", "b", "d", "c", "a"}, hitIDs(hits))
}

func TestSort_TieUsesEntryOrder(t *testing.T) {
	// Ordinals follow numeric identifier order, so "9" precedes "10".
	hits := []Hit{
		{EntryID: "10", Distance: 1, ordinal: 1},
		{EntryID: "9", Distance: 1, ordinal: 0},
	}
	Sort(hits)
	assert.Equal(t, []string{"9", "10"}, hitIDs(hits))
}

func rankedFixture() []Hit {
	hits := make([]Hit, 0, 20)
	for i := 0; i < 20; i++ {
		hits = append(hits, Hit{
			EntryID:  fmt.Sprintf("e%02d", i),
			Distance: float64(i % 3),
			BM25:     float64((i * 7) % 5),
			ordinal:  uint32(i),
		})
	}
	return hits
}

func TestPage_MatchesFullSort(t *testing.T) {
	want := rankedFixture()
	Sort(want)

	tests := []struct {
		offset, limit int
		from, to      int
	}{
		{0, 5, 0, 5},
		{5, 5, 5, 10},
		{18, 5, 18, 20},
		{25, 5, 20, 20},
		{-3, 2, 0, 2},
		{0, 0, 0, 20},
		{7, -1, 7, 20},
		{30, 0, 20, 20},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset=%d,limit=%d", tt.offset, tt.limit), func(t *testing.T) {
			got := Page(rankedFixture(), tt.offset, tt.limit)
			assert.Equal(t, hitIDs(want[tt.from:tt.to]), hitIDs(got))
		})
	}
}

func BenchmarkPage(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Page(rankedFixture(), 0, 10)
	}
}
