package config

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// Side selects one language profile of the dictionary.
type Side string

const (
	SideL1 Side = "l1"
	SideL2 Side = "l2"
)

// Sides lists every side in build order.
var Sides = []Side{SideL1, SideL2}

// ParseSide maps a case-insensitive token to a Side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideL1:
		return SideL1, nil
	case SideL2:
		return SideL2, nil
	}
	return "", fmt.Errorf("%w: expected %q or %q, got %q", apperrors.ErrUnknownSide, SideL1, SideL2, s)
}

const (
	StrategyWeightedLevenshtein = "weighted_levenstein"
	StrategyLevenshteinAutomata = "liblevenstein_automata"

	// MaxAutomatonDistance is the largest edit distance the automaton
	// strategy can build a DFA for.
	MaxAutomatonDistance = 2

	TokenizerWhitespace = "whitespace"
	TokenizerUnicode    = "unicode"

	StemmerNone            = "none"
	StemmerSnowballEnglish = "snowball_english"

	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"

	SourceFile     = "file"
	SourcePostgres = "postgres"

	DefaultPunctuation = "[.,/#!$%^&?*';:{}=\\-_`~()]"
)

var unicodeForms = map[string]struct{}{
	"": {}, "none": {}, "NFC": {}, "NFD": {}, "NFKC": {}, "NFKD": {},
}

// Validate checks structural constraints. Failures are ConfigErrors carrying
// the dotted path of the offending field.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit < 0 {
		return apperrors.Config("search.defaultLimit", "must not be negative")
	}
	if c.Search.MaxResults < 0 {
		return apperrors.Config("search.maxResults", "must not be negative")
	}
	if c.Search.Workers < 0 {
		return apperrors.Config("search.workers", "must not be negative")
	}
	switch c.Source.Type {
	case SourceFile, SourcePostgres:
	default:
		return apperrors.Configf("source.type", "unknown source %q", c.Source.Type)
	}
	switch c.Cache.Backend {
	case CacheRedis, CacheMemory, CacheNone, "":
	default:
		return apperrors.Configf("cache.backend", "unknown backend %q", c.Cache.Backend)
	}
	for _, side := range Sides {
		if err := c.Dictionary.Side(side).Validate("dictionary." + string(side)); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one language profile. prefix is the dotted path of the
// profile, e.g. "dictionary.l1".
func (s SideConfig) Validate(prefix string) error {
	if s.KeysToIndex == nil {
		return apperrors.Config(prefix+".keysToIndex", "required")
	}
	for i, key := range s.KeysToIndex {
		if strings.TrimSpace(key) == "" {
			return apperrors.Configf(fmt.Sprintf("%s.keysToIndex[%d]", prefix, i), "must not be empty")
		}
	}
	switch s.Tokenizer {
	case TokenizerWhitespace, TokenizerUnicode, "":
	default:
		return apperrors.Configf(prefix+".tokenizer", "unknown tokenizer %q", s.Tokenizer)
	}
	if s.Stemmer == "" {
		return apperrors.Config(prefix+".stemmer", "required")
	}
	if _, ok := unicodeForms[s.Normalization.UnicodeNormalization]; !ok {
		return apperrors.Configf(prefix+".normalization.unicodeNormalization", "unknown form %q", s.Normalization.UnicodeNormalization)
	}
	for i, rule := range s.Normalization.ReplaceRules {
		if rule.Find == "" {
			return apperrors.Configf(fmt.Sprintf("%s.normalization.replaceRules[%d].find", prefix, i), "must not be empty")
		}
	}
	if s.MaxDistance < 0 || math.IsNaN(s.MaxDistance) {
		return apperrors.Config(prefix+".maxDistance", "must not be negative")
	}
	if err := s.BM25.validate(prefix + ".bm25"); err != nil {
		return err
	}

	switch s.SearchStrategy {
	case StrategyWeightedLevenshtein:
		return s.WeightedLevenshtein.validate(prefix + ".weightedLevenshtein")
	case StrategyLevenshteinAutomata:
		if s.MaxDistance != math.Trunc(s.MaxDistance) || s.MaxDistance > MaxAutomatonDistance {
			return apperrors.Configf(prefix+".maxDistance", "%s requires an integer distance between 0 and %d, got %v",
				StrategyLevenshteinAutomata, MaxAutomatonDistance, s.MaxDistance)
		}
		w := s.WeightedLevenshtein
		if len(w.SubstitutionCosts) > 0 || w.SubstitutionCostsPath != "" {
			return apperrors.Unsupported(prefix+".weightedLevenshtein.substitutionCosts",
				"custom substitution costs are not supported by %s", StrategyLevenshteinAutomata)
		}
		if !w.IsUniform() {
			return apperrors.Unsupported(prefix+".weightedLevenshtein",
				"non-uniform edit costs are not supported by %s", StrategyLevenshteinAutomata)
		}
		return nil
	case "":
		return apperrors.Config(prefix+".searchStrategy", "required")
	default:
		return apperrors.Configf(prefix+".searchStrategy", "unknown strategy %q", s.SearchStrategy)
	}
}

func (w WeightedLevenshteinConfig) validate(prefix string) error {
	costs := []struct {
		name  string
		value float64
	}{
		{"insertionCost", w.InsertionCost},
		{"deletionCost", w.DeletionCost},
		{"insertionAtBeginningCost", w.InsertionAtBeginningCost},
		{"deletionAtEndCost", w.DeletionAtEndCost},
		{"defaultSubstitutionCost", w.DefaultSubstitutionCost},
	}
	for _, c := range costs {
		if c.value < 0 || math.IsNaN(c.value) {
			return apperrors.Configf(prefix+"."+c.name, "must not be negative, got %v", c.value)
		}
	}
	for src, row := range w.SubstitutionCosts {
		if utf8.RuneCountInString(src) != 1 {
			return apperrors.Configf(prefix+".substitutionCosts."+src, "key must be a single character")
		}
		for dst, cost := range row {
			field := prefix + ".substitutionCosts." + src + "." + dst
			if utf8.RuneCountInString(dst) != 1 {
				return apperrors.Config(field, "key must be a single character")
			}
			if cost < 0 || math.IsNaN(cost) {
				return apperrors.Configf(field, "must not be negative, got %v", cost)
			}
		}
	}
	return nil
}

func (b BM25Config) validate(prefix string) error {
	if b.K1 < 0 {
		return apperrors.Config(prefix+".k1", "must not be negative")
	}
	if b.B < 0 || b.B > 1 {
		return apperrors.Config(prefix+".b", "must be between 0 and 1")
	}
	if b.Epsilon < 0 {
		return apperrors.Config(prefix+".epsilon", "must not be negative")
	}
	return nil
}
