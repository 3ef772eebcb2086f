package index

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/MotherTongues/mothertongues/internal/tokenizer"
)

// builder accumulates postings for one build. It is not safe for concurrent
// use; Build owns it until the Index is frozen.
type builder struct {
	postings map[string]map[uint32]*Posting
	bitmaps  map[string]*roaring.Bitmap
	corpora  map[string]*corpus
}

// corpus is the BM25 document collection of one configured key. A list
// field contributes one document per element.
type corpus struct {
	docs   [][]string
	owners []uint32
}

func newBuilder() *builder {
	return &builder{
		postings: make(map[string]map[uint32]*Posting),
		bitmaps:  make(map[string]*roaring.Bitmap),
		corpora:  make(map[string]*corpus),
	}
}

func (b *builder) corpus(key string) *corpus {
	c, ok := b.corpora[key]
	if !ok {
		c = &corpus{}
		b.corpora[key] = c
	}
	return c
}

// addValue records the tokens of one field value of entry ordinal under the
// configured key.
func (b *builder) addValue(ordinal uint32, entryID, key, field string, tokens []tokenizer.Token) {
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, tok.Term)

		docs, ok := b.postings[tok.Term]
		if !ok {
			docs = make(map[uint32]*Posting)
			b.postings[tok.Term] = docs
			b.bitmaps[tok.Term] = roaring.NewBitmap()
		}
		p, ok := docs[ordinal]
		if !ok {
			p = &Posting{
				EntryID:    entryID,
				Ordinal:    ordinal,
				FieldFreqs: make(map[string]int),
				Locations:  make([]Location, 0, 2),
				Scores:     make(map[string]float64),
			}
			docs[ordinal] = p
			b.bitmaps[tok.Term].Add(ordinal)
		}
		p.Frequency++
		p.FieldFreqs[field]++
		p.Locations = append(p.Locations, Location{Field: field, Position: tok.Position})
	}
	c := b.corpus(key)
	c.docs = append(c.docs, terms)
	c.owners = append(c.owners, ordinal)
}

// addEmpty registers an entry that has no text under key, so that it still
// counts towards that key's corpus size.
func (b *builder) addEmpty(ordinal uint32, key string) {
	c := b.corpus(key)
	c.docs = append(c.docs, nil)
	c.owners = append(c.owners, ordinal)
}

// score computes BM25 per key and adds it to the owning postings. Totals
// are summed in key order so repeated builds produce identical floats.
func (b *builder) score(keys []string, build func(docs [][]string) *BM25) {
	for _, key := range keys {
		c, ok := b.corpora[key]
		if !ok {
			continue
		}
		scorer := build(c.docs)
		for doc, terms := range c.docs {
			owner := c.owners[doc]
			seen := make(map[string]struct{}, len(terms))
			for _, term := range terms {
				if _, dup := seen[term]; dup {
					continue
				}
				seen[term] = struct{}{}
				if p, ok := b.postings[term][owner]; ok {
					p.Scores[key] += scorer.Score(term, doc)
				}
			}
		}
	}
	for _, docs := range b.postings {
		for _, p := range docs {
			total := 0.0
			for _, key := range keys {
				total += p.Scores[key]
			}
			p.Score = total
		}
	}
}
