// Package ranker turns per-term match candidates into an ordered result list.
// Edit distance is the primary key; BM25 only breaks ties between entries at
// the same minimum distance.
package ranker

import (
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/MotherTongues/mothertongues/internal/index"
)

// Candidate is one (query term, index term, entry) match.
type Candidate struct {
	EntryID   string
	Ordinal   uint32
	QueryTerm string
	IndexTerm string
	Distance  float64
	BM25      float64
	Locations []index.Location
}

// TermMatch records which index term a query term matched and how far apart
// they were.
type TermMatch struct {
	QueryTerm string  `json:"query_term"`
	IndexTerm string  `json:"index_term"`
	Distance  float64 `json:"distance"`
}

// Hit is the ranked result for one entry.
type Hit struct {
	EntryID   string           `json:"entry_id"`
	Distance  float64          `json:"distance"`
	BM25      float64          `json:"bm25"`
	Terms     []TermMatch      `json:"terms"`
	Locations []index.Location `json:"locations,omitempty"`

	ordinal uint32
}

type accumulator struct {
	hit     Hit
	order   []string
	perTerm map[string]float64
	located map[index.Location]struct{}
}

// Aggregate groups candidates by entry. matched is the set of entry
// ordinals the candidates were drawn from; each entry gets the slot at its
// rank in matched and hits come back in entry order. Candidates outside
// matched are ignored.
//
// The hit distance is the minimum over the entry's candidates. BM25 is
// summed over distinct query terms, each contributing the best score among
// the index terms it matched. Locations are reported once each.
func Aggregate(candidates []Candidate, matched *roaring.Bitmap) []Hit {
	if matched == nil || matched.IsEmpty() {
		return []Hit{}
	}
	slots := make([]*accumulator, matched.GetCardinality())
	for _, c := range candidates {
		if !matched.Contains(c.Ordinal) {
			continue
		}
		slot := matched.Rank(c.Ordinal) - 1
		acc := slots[slot]
		if acc == nil {
			acc = &accumulator{
				hit: Hit{
					EntryID:  c.EntryID,
					Distance: c.Distance,
					ordinal:  c.Ordinal,
				},
				perTerm: make(map[string]float64),
				located: make(map[index.Location]struct{}),
			}
			slots[slot] = acc
		}
		if c.Distance < acc.hit.Distance {
			acc.hit.Distance = c.Distance
		}
		best, seen := acc.perTerm[c.QueryTerm]
		if !seen {
			acc.order = append(acc.order, c.QueryTerm)
		}
		if !seen || c.BM25 > best {
			acc.perTerm[c.QueryTerm] = c.BM25
		}
		acc.hit.Terms = append(acc.hit.Terms, TermMatch{
			QueryTerm: c.QueryTerm,
			IndexTerm: c.IndexTerm,
			Distance:  c.Distance,
		})
		for _, loc := range c.Locations {
			if _, dup := acc.located[loc]; dup {
				continue
			}
			acc.located[loc] = struct{}{}
			acc.hit.Locations = append(acc.hit.Locations, loc)
		}
	}

	hits := make([]Hit, 0, len(slots))
	for _, acc := range slots {
		if acc == nil {
			continue
		}
		total := 0.0
		for _, q := range acc.order {
			total += acc.perTerm[q]
		}
		acc.hit.BM25 = round(total)
		hits = append(hits, acc.hit)
	}
	return hits
}

// Sort orders hits by distance ascending, then BM25 descending, then entry
// order ascending.
func Sort(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		return better(hits[i], hits[j])
	})
}

func better(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.BM25 != b.BM25 {
		return a.BM25 > b.BM25
	}
	if a.ordinal != b.ordinal {
		return a.ordinal < b.ordinal
	}
	return a.EntryID < b.EntryID
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
