package index

import (
	"math"
	"sort"

	"github.com/MotherTongues/mothertongues/pkg/config"
)

// BM25 is an Okapi BM25 scorer over one tokenized corpus. Terms whose IDF
// is negative (present in more than half the documents) get
// epsilon * mean IDF instead, or 0 when that mean is itself negative.
type BM25 struct {
	k1        float64
	b         float64
	docLens   []int
	avgDocLen float64
	termFreqs []map[string]int
	idf       map[string]float64
}

// NewBM25 computes document frequencies and IDF for corpus, where each
// element is the term list of one document.
func NewBM25(corpus [][]string, params config.BM25Config) *BM25 {
	s := &BM25{
		k1:        params.K1,
		b:         params.B,
		docLens:   make([]int, len(corpus)),
		termFreqs: make([]map[string]int, len(corpus)),
		idf:       make(map[string]float64),
	}
	docFreq := make(map[string]int)
	total := 0
	for i, doc := range corpus {
		s.docLens[i] = len(doc)
		total += len(doc)
		freqs := make(map[string]int, len(doc))
		for _, term := range doc {
			freqs[term]++
		}
		s.termFreqs[i] = freqs
		for term := range freqs {
			docFreq[term]++
		}
	}
	if len(corpus) > 0 {
		s.avgDocLen = float64(total) / float64(len(corpus))
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	n := float64(len(corpus))
	idfSum := 0.0
	negative := make([]string, 0)
	for _, term := range terms {
		idf := computeIDF(n, float64(docFreq[term]))
		s.idf[term] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, term)
		}
	}
	if len(docFreq) > 0 {
		floor := max(params.Epsilon*idfSum/float64(len(docFreq)), 0)
		for _, term := range negative {
			s.idf[term] = floor
		}
	}
	return s
}

// IDF returns the inverse document frequency of term, 0 when unseen.
func (s *BM25) IDF(term string) float64 {
	return s.idf[term]
}

// Score returns the BM25 contribution of term to document doc.
func (s *BM25) Score(term string, doc int) float64 {
	if doc < 0 || doc >= len(s.termFreqs) {
		return 0
	}
	tf := float64(s.termFreqs[doc][term])
	if tf == 0 {
		return 0
	}
	return s.IDF(term) * computeTFNorm(tf, float64(s.docLens[doc]), s.avgDocLen, s.k1, s.b)
}

// Len returns the number of documents in the corpus.
func (s *BM25) Len() int {
	return len(s.docLens)
}

func computeIDF(totalDocs float64, docFreq float64) float64 {
	return math.Log(totalDocs-docFreq+0.5) - math.Log(docFreq+0.5)
}

func computeTFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
