package matcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/blevesearch/vellum"
	lev "github.com/blevesearch/vellum/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

const dfaCacheSize = 1024

// Parametric builders are expensive to create and immutable once built, so
// one per distance is shared by every automaton matcher.
var builders [config.MaxAutomatonDistance + 1]struct {
	once    sync.Once
	builder *lev.LevenshteinAutomatonBuilder
	err     error
}

func builderFor(k uint8) (*lev.LevenshteinAutomatonBuilder, error) {
	slot := &builders[k]
	slot.once.Do(func() {
		slot.builder, slot.err = lev.NewLevenshteinAutomatonBuilder(k, false)
	})
	return slot.builder, slot.err
}

type dfaKey struct {
	term string
	k    uint8
}

// Automaton intersects a Levenshtein DFA for the query with an FST of the
// vocabulary. It supports uniform integer distances up to 2 only. A nil fst
// stands for an empty vocabulary.
type Automaton struct {
	fst  *vellum.FST
	dfas *lru.Cache[dfaKey, *lev.DFA]
}

// NewAutomaton compiles terms, which must be sorted and unique, into an FST.
func NewAutomaton(terms []string) (*Automaton, error) {
	cache, err := lru.New[dfaKey, *lev.DFA](dfaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating dfa cache: %w", err)
	}
	if len(terms) == 0 {
		return &Automaton{dfas: cache}, nil
	}
	var buf bytes.Buffer
	b, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fst builder: %w", err)
	}
	for i, t := range terms {
		if err := b.Insert([]byte(t), uint64(i)); err != nil {
			return nil, fmt.Errorf("inserting term %q into fst: %w", t, err)
		}
	}
	if err := b.Close(); err != nil {
		return nil, fmt.Errorf("closing fst builder: %w", err)
	}
	fst, err := vellum.Load(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("loading fst: %w", err)
	}
	return &Automaton{fst: fst, dfas: cache}, nil
}

func (a *Automaton) Strategy() string { return config.StrategyLevenshteinAutomata }

// Match enumerates the vocabulary terms accepted by the DFA of term. Fractional
// bounds are floored since uniform distances are integers.
func (a *Automaton) Match(ctx context.Context, term string, maxDistance float64) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("automaton match %q: %w", term, err)
	}
	if maxDistance < 0 {
		return []Match{}, nil
	}
	bound := math.Floor(maxDistance)
	if bound > config.MaxAutomatonDistance {
		return nil, apperrors.Unsupported("maxDistance",
			"%s supports at most distance %d, got %v",
			config.StrategyLevenshteinAutomata, config.MaxAutomatonDistance, maxDistance)
	}
	k := uint8(bound)
	if a.fst == nil {
		return []Match{}, nil
	}
	if k == 0 {
		_, ok, err := a.fst.Get([]byte(term))
		if err != nil {
			return nil, fmt.Errorf("automaton match %q: %w", term, err)
		}
		if !ok {
			return []Match{}, nil
		}
		return []Match{{Term: term, Distance: 0}}, nil
	}

	dfa, err := a.dfa(term, k)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0)
	it, err := a.fst.Search(dfa, nil, nil)
	for err == nil {
		key, _ := it.Current()
		candidate := string(key)
		matches = append(matches, Match{
			Term:     candidate,
			Distance: float64(levenshtein([]rune(candidate), []rune(term))),
		})
		if len(matches)%cancelCheckInterval == 0 {
			if cerr := ctx.Err(); cerr != nil {
				return nil, fmt.Errorf("automaton match %q: %w", term, cerr)
			}
		}
		err = it.Next()
	}
	if !errors.Is(err, vellum.ErrIteratorDone) {
		return nil, fmt.Errorf("automaton match %q: %w", term, err)
	}
	sortMatches(matches)
	return matches, nil
}

func (a *Automaton) dfa(term string, k uint8) (*lev.DFA, error) {
	key := dfaKey{term: term, k: k}
	if d, ok := a.dfas.Get(key); ok {
		return d, nil
	}
	lb, err := builderFor(k)
	if err != nil {
		return nil, fmt.Errorf("levenshtein builder k=%d: %w", k, err)
	}
	d, err := lb.BuildDfa(term, k)
	if err != nil {
		return nil, fmt.Errorf("building dfa for %q: %w", term, err)
	}
	a.dfas.Add(key, d)
	return d, nil
}

// levenshtein is the uniform-cost edit distance over runes.
func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
