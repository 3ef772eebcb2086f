package matcher

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

const cancelCheckInterval = 64

// Weighted scores every vocabulary term with a weighted Levenshtein distance.
// Distances convert the index term into the query term.
type Weighted struct {
	terms   [][]rune
	raw     []string
	costs   Costs
	workers int
}

// Costs are the compiled edit costs of the weighted strategy.
type Costs struct {
	Insertion            float64
	Deletion             float64
	InsertionAtBeginning float64
	DeletionAtEnd        float64
	DefaultSubstitution  float64
	Substitutions        map[rune]map[rune]float64
}

// CompileCosts converts the configured costs. Substitution keys must be
// single characters.
func CompileCosts(cfg config.WeightedLevenshteinConfig) (Costs, error) {
	c := Costs{
		Insertion:            cfg.InsertionCost,
		Deletion:             cfg.DeletionCost,
		InsertionAtBeginning: cfg.InsertionAtBeginningCost,
		DeletionAtEnd:        cfg.DeletionAtEndCost,
		DefaultSubstitution:  cfg.DefaultSubstitutionCost,
		Substitutions:        make(map[rune]map[rune]float64, len(cfg.SubstitutionCosts)),
	}
	for src, row := range cfg.SubstitutionCosts {
		s := []rune(src)
		if len(s) != 1 {
			return Costs{}, apperrors.Configf("substitutionCosts", "key %q is not a single character", src)
		}
		compiled := make(map[rune]float64, len(row))
		for dst, cost := range row {
			d := []rune(dst)
			if len(d) != 1 {
				return Costs{}, apperrors.Configf("substitutionCosts."+src, "key %q is not a single character", dst)
			}
			if cost < 0 {
				return Costs{}, apperrors.Configf("substitutionCosts."+src+"."+dst, "must not be negative, got %v", cost)
			}
			compiled[d[0]] = cost
		}
		c.Substitutions[s[0]] = compiled
	}
	return c, nil
}

func (c Costs) substitution(src, dst rune) float64 {
	if src == dst {
		return 0
	}
	if row, ok := c.Substitutions[src]; ok {
		if cost, ok := row[dst]; ok {
			return cost
		}
	}
	return c.DefaultSubstitution
}

func NewWeighted(cfg config.WeightedLevenshteinConfig, terms []string, workers int) (*Weighted, error) {
	costs, err := CompileCosts(cfg)
	if err != nil {
		return nil, apperrors.Prefix("weightedLevenshtein", err)
	}
	if workers < 1 {
		workers = 1
	}
	w := &Weighted{
		terms:   make([][]rune, len(terms)),
		raw:     terms,
		costs:   costs,
		workers: workers,
	}
	for i, t := range terms {
		w.terms[i] = []rune(t)
	}
	return w, nil
}

func (w *Weighted) Strategy() string { return config.StrategyWeightedLevenshtein }

// Match scans the vocabulary in parallel chunks and returns every term whose
// distance is within maxDistance, ordered by distance then term.
func (w *Weighted) Match(ctx context.Context, term string, maxDistance float64) ([]Match, error) {
	query := []rune(term)
	n := len(w.terms)
	if n == 0 {
		return []Match{}, nil
	}
	workers := w.workers
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	results := make([][]Match, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		lo := i * chunk
		hi := min(lo+chunk, n)
		slot := i
		g.Go(func() error {
			scratch := newRows(len(query))
			found := make([]Match, 0)
			for k := lo; k < hi; k++ {
				if (k-lo)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				d, ok := w.costs.distance(w.terms[k], query, maxDistance, scratch)
				if ok {
					found = append(found, Match{Term: w.raw[k], Distance: d})
				}
			}
			results[slot] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("weighted match %q: %w", term, err)
	}

	matches := make([]Match, 0)
	for _, r := range results {
		matches = append(matches, r...)
	}
	sortMatches(matches)
	return matches, nil
}

// Distance returns the weighted distance converting source into target
// without a cutoff.
func (c Costs) Distance(source, target string) float64 {
	t := []rune(target)
	d, _ := c.distance([]rune(source), t, -1, newRows(len(t)))
	return d
}

type rows struct {
	prev, cur []float64
}

func newRows(m int) *rows {
	return &rows{prev: make([]float64, m+1), cur: make([]float64, m+1)}
}

// distance runs the DP one source row at a time. With a non-negative bound
// it stops as soon as a whole row exceeds it, since costs never decrease
// along a path. The bool reports whether the result is within the bound.
func (c Costs) distance(source, target []rune, bound float64, r *rows) (float64, bool) {
	m := len(target)
	prev, cur := r.prev, r.cur

	prev[0] = 0
	for j := 1; j <= m; j++ {
		prev[j] = prev[j-1] + c.InsertionAtBeginning
	}
	for i := 1; i <= len(source); i++ {
		del := c.Deletion
		if m == 0 {
			del = c.DeletionAtEnd
		}
		cur[0] = prev[0] + del
		rowMin := cur[0]
		for j := 1; j <= m; j++ {
			del := c.Deletion
			if j == m {
				del = c.DeletionAtEnd
			}
			best := prev[j] + del
			if v := cur[j-1] + c.Insertion; v < best {
				best = v
			}
			if v := prev[j-1] + c.substitution(source[i-1], target[j-1]); v < best {
				best = v
			}
			cur[j] = best
			if best < rowMin {
				rowMin = best
			}
		}
		if bound >= 0 && roundDistance(rowMin) > bound {
			return roundDistance(rowMin), false
		}
		prev, cur = cur, prev
	}
	d := roundDistance(prev[m])
	return d, bound < 0 || d <= bound
}
