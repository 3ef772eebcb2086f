// Package tokenizer splits normalized field text into positioned terms and
// runs the full analysis chain (normalize, split, stem) shared by index
// builds and queries.
package tokenizer

import (
	"strings"

	"github.com/blevesearch/segment"

	"github.com/MotherTongues/mothertongues/internal/normalizer"
	"github.com/MotherTongues/mothertongues/internal/stemmer"
	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// Token represents a single analyzed term and its position within one field
// value.
type Token struct {
	Term     string
	Position int
}

// Split breaks already-normalized text into words. In whitespace mode the
// text is split on Unicode white space, so hyphens and apostrophes survive
// unless the normalizer removed them. In unicode mode UAX#29 word boundaries
// are used and punctuation segments are dropped.
func Split(text string, mode string) []string {
	if mode == config.TokenizerUnicode {
		return splitWords(text)
	}
	return strings.Fields(text)
}

func splitWords(text string) []string {
	words := make([]string, 0, 8)
	seg := segment.NewWordSegmenterDirect([]byte(text))
	for seg.Segment() {
		if seg.Type() == segment.None {
			continue
		}
		words = append(words, string(seg.Bytes()))
	}
	return words
}

// Analyzer is the compiled analysis chain of one language profile. It is
// safe for concurrent use.
type Analyzer struct {
	normalizer *normalizer.Normalizer
	stemmer    stemmer.Stemmer
	mode       string
}

// NewAnalyzer compiles the normalizer, tokenizer mode and stemmer of side.
// ConfigError field paths are relative to the profile ("stemmer",
// "normalization.removePunctuation").
func NewAnalyzer(side config.SideConfig) (*Analyzer, error) {
	n, err := normalizer.New(side.Normalization)
	if err != nil {
		return nil, apperrors.Prefix("normalization", err)
	}
	s, err := stemmer.New(side.Stemmer)
	if err != nil {
		return nil, apperrors.Prefix("stemmer", err)
	}
	mode := side.Tokenizer
	switch mode {
	case "":
		mode = config.TokenizerWhitespace
	case config.TokenizerWhitespace, config.TokenizerUnicode:
	default:
		return nil, apperrors.Configf("tokenizer", "unknown tokenizer %q", side.Tokenizer)
	}
	return &Analyzer{normalizer: n, stemmer: s, mode: mode}, nil
}

// Normalize exposes the profile's normalizer.
func (a *Analyzer) Normalize(text string) string {
	return a.normalizer.Normalize(text)
}

// Analyze normalizes text, splits it and stems every word. Words that stem
// to nothing are skipped and do not consume a position.
func (a *Analyzer) Analyze(text string) []Token {
	words := Split(a.normalizer.Normalize(text), a.mode)
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		term := a.stemmer.Stem(word)
		if term == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     term,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms returns the distinct analyzed terms of text in first-seen order.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}
