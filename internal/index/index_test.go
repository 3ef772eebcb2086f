package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MotherTongues/mothertongues/internal/dictionary"
	"github.com/MotherTongues/mothertongues/internal/tokenizer"
	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

func testOptions(t *testing.T, keys ...string) BuildOptions {
	t.Helper()
	a, err := tokenizer.NewAnalyzer(config.SideConfig{
		Tokenizer: config.TokenizerWhitespace,
		Stemmer:   "none",
		Normalization: config.NormalizationConfig{
			Lower:                     true,
			UnicodeNormalization:      "NFC",
			RemovePunctuation:         config.DefaultPunctuation,
			RemoveCombiningCharacters: true,
		},
	})
	require.NoError(t, err)
	return BuildOptions{KeysToIndex: keys, Analyzer: a, BM25: defaultParams}
}

func sampleEntries() []dictionary.Entry {
	return []dictionary.Entry{
		{ID: "2", Fields: map[string]any{
			"word":             "hund",
			"definition":       "dog",
			"example_sentence": []any{"en stor hund", "hund og kat"},
		}},
		{ID: "1", Fields: map[string]any{
			"word":       "kat",
			"definition": "cat",
		}},
		{ID: "3", Fields: map[string]any{
			"word":       "ko",
			"definition": "the cow, the big cow",
		}},
	}
}

func TestBuild_PostingsAndLocations(t *testing.T) {
	idx, err := Build(context.Background(), sampleEntries(), testOptions(t, "word", "example_sentence"))
	require.NoError(t, err)

	assert.Equal(t, Stats{Entries: 3, Terms: 6, Postings: 7}, idx.Stats())

	hund := idx.Lookup("hund")
	require.Len(t, hund, 1)
	assert.Equal(t, "2", hund[0].EntryID)
	assert.Equal(t, 3, hund[0].Frequency)
	assert.Equal(t, map[string]int{
		"word":                1,
		"example_sentence[0]": 1,
		"example_sentence[1]": 1,
	}, hund[0].FieldFreqs)
	assert.ElementsMatch(t, []Location{
		{Field: "word", Position: 0},
		{Field: "example_sentence[0]", Position: 2},
		{Field: "example_sentence[1]", Position: 0},
	}, hund[0].Locations)

	kat := idx.Lookup("kat")
	require.Len(t, kat, 2)
	assert.Equal(t, "1", kat[0].EntryID, "postings follow entry order")
	assert.Equal(t, "2", kat[1].EntryID)

	assert.Nil(t, idx.Lookup("dog"), "definition is not indexed")
	assert.NotEmpty(t, idx.Lookup("stor"))
}

func TestBuild_TermsSorted(t *testing.T) {
	idx, err := Build(context.Background(), sampleEntries(), testOptions(t, "word", "example_sentence"))
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "hund", "kat", "ko", "og", "stor"}, idx.Terms())
}

func TestBuild_ScoresPerKey(t *testing.T) {
	idx, err := Build(context.Background(), sampleEntries(), testOptions(t, "word", "definition"))
	require.NoError(t, err)

	for _, term := range idx.Terms() {
		for _, p := range idx.Lookup(term) {
			assert.GreaterOrEqual(t, p.Score, 0.0, term)
			sum := 0.0
			for _, s := range p.Scores {
				sum += s
			}
			assert.InDelta(t, sum, p.Score, 1e-12, term)
		}
	}

	cow := idx.Lookup("cow")
	require.Len(t, cow, 1)
	assert.Contains(t, cow[0].Scores, "definition")
	assert.NotContains(t, cow[0].Scores, "word")
	assert.Greater(t, cow[0].Score, 0.0)
}

func TestBuild_Deterministic(t *testing.T) {
	opts := testOptions(t, "word", "definition", "example_sentence")
	a, err := Build(context.Background(), sampleEntries(), opts)
	require.NoError(t, err)

	reversed := sampleEntries()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b, err := Build(context.Background(), reversed, opts)
	require.NoError(t, err)

	assert.Equal(t, a.Terms(), b.Terms())
	for _, term := range a.Terms() {
		assert.Equal(t, a.Lookup(term), b.Lookup(term), term)
	}
}

func TestBuild_DuplicateKeysIgnored(t *testing.T) {
	once, err := Build(context.Background(), sampleEntries(), testOptions(t, "word"))
	require.NoError(t, err)
	twice, err := Build(context.Background(), sampleEntries(), testOptions(t, "word", "word"))
	require.NoError(t, err)

	assert.Equal(t, []string{"word"}, twice.Keys())
	assert.Equal(t, once.Lookup("kat"), twice.Lookup("kat"))
}

func TestBuild_NoKeys(t *testing.T) {
	idx, err := Build(context.Background(), sampleEntries(), testOptions(t))
	require.NoError(t, err)
	assert.Empty(t, idx.Terms())
	assert.Equal(t, 3, idx.Stats().Entries)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(context.Background(), []dictionary.Entry{{ID: "1"}, {ID: "1"}}, testOptions(t, "word"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidEntry))

	_, err = Build(context.Background(), sampleEntries(), BuildOptions{KeysToIndex: []string{"word"}})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Build(ctx, sampleEntries(), testOptions(t, "word"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestIndex_Bitmaps(t *testing.T) {
	idx, err := Build(context.Background(), sampleEntries(), testOptions(t, "word", "example_sentence"))
	require.NoError(t, err)

	kat := idx.EntriesMatching([]string{"kat"})
	assert.Equal(t, []uint32{0, 1}, kat.ToArray())
	kat.Add(2)
	assert.Equal(t, uint64(2), idx.EntriesMatching([]string{"kat"}).GetCardinality(), "result is detached")

	assert.True(t, idx.EntriesMatching([]string{"missing"}).IsEmpty())

	union := idx.EntriesMatching([]string{"kat", "ko", "missing"})
	assert.Equal(t, []uint32{0, 1, 2}, union.ToArray())
	assert.True(t, idx.EntriesMatching(nil).IsEmpty())
}
