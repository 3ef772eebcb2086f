// Package matcher finds the index terms within an edit-distance bound of a
// query term. Two strategies share one contract: an exhaustive weighted
// Levenshtein scan and a Levenshtein-automaton walk over an FST of the
// vocabulary.
package matcher

import (
	"context"
	"math"
	"sort"

	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// Match is an index term and its distance from the query term.
type Match struct {
	Term     string  `json:"term"`
	Distance float64 `json:"distance"`
}

// Matcher is built once per index snapshot and is safe for concurrent use.
type Matcher interface {
	Match(ctx context.Context, term string, maxDistance float64) ([]Match, error)
	Strategy() string
}

// New returns the matcher selected by side.SearchStrategy over terms, which
// must be the sorted, de-duplicated index vocabulary. workers bounds the
// fan-out of the weighted scan; values below 1 mean one worker.
func New(side config.SideConfig, terms []string, workers int) (Matcher, error) {
	switch side.SearchStrategy {
	case config.StrategyWeightedLevenshtein:
		w, err := NewWeighted(side.WeightedLevenshtein, terms, workers)
		if err != nil {
			return nil, err
		}
		return w, nil
	case config.StrategyLevenshteinAutomata:
		if !side.WeightedLevenshtein.IsUniform() {
			return nil, apperrors.Unsupported("weightedLevenshtein",
				"%s only supports uniform edit costs", config.StrategyLevenshteinAutomata)
		}
		a, err := NewAutomaton(terms)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "":
		return nil, apperrors.Config("searchStrategy", "required")
	default:
		return nil, apperrors.Configf("searchStrategy", "unknown search strategy %q", side.SearchStrategy)
	}
}

func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].Term < matches[j].Term
	})
}

// roundDistance trims float noise so that sums such as 0.1+0.2 compare equal
// to the configured bound.
func roundDistance(d float64) float64 {
	return math.Round(d*1e6) / 1e6
}
