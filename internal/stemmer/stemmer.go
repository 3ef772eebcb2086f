// Package stemmer maps stemmer tokens from the language profile to affix
// stripping functions. "none" is the identity; the snowball_* tokens use the
// Snowball stemmers from github.com/kljensen/snowball.
package stemmer

import (
	"sort"
	"strings"

	"github.com/kljensen/snowball"

	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

const snowballPrefix = "snowball_"

var snowballLanguages = map[string]struct{}{
	"english":   {},
	"french":    {},
	"spanish":   {},
	"russian":   {},
	"swedish":   {},
	"norwegian": {},
	"hungarian": {},
}

// Stemmer reduces a normalized term to its stem.
type Stemmer interface {
	Stem(term string) string
	Name() string
}

// New returns the stemmer for token. Unknown tokens are ConfigErrors with an
// empty field path for the caller to prefix.
func New(token string) (Stemmer, error) {
	if token == "none" {
		return identity{}, nil
	}
	if lang, ok := strings.CutPrefix(token, snowballPrefix); ok {
		if _, known := snowballLanguages[lang]; known {
			return snowballStemmer{language: lang}, nil
		}
	}
	return nil, apperrors.Configf("", "unknown stemmer %q, expected one of %s", token, strings.Join(Tokens(), ", "))
}

// Tokens lists every accepted stemmer token.
func Tokens() []string {
	tokens := []string{"none"}
	for lang := range snowballLanguages {
		tokens = append(tokens, snowballPrefix+lang)
	}
	sort.Strings(tokens[1:])
	return tokens
}

type identity struct{}

func (identity) Stem(term string) string { return term }
func (identity) Name() string            { return "none" }

type snowballStemmer struct {
	language string
}

// Stem stems term, stop words included so that index and query agree. A
// stemmer error leaves the term unchanged.
func (s snowballStemmer) Stem(term string) string {
	if term == "" {
		return term
	}
	stemmed, err := snowball.Stem(term, s.language, true)
	if err != nil || stemmed == "" {
		return term
	}
	return stemmed
}

func (s snowballStemmer) Name() string { return snowballPrefix + s.language }
