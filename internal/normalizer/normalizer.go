// Package normalizer implements the deterministic text transform applied to
// both indexed terms and incoming queries: case folding, Unicode
// normalization, punctuation removal, combining-mark stripping and ordered
// replacement rules.
package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/MotherTongues/mothertongues/pkg/config"
	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// combiningMarks is the Combining Diacritical Marks block.
var combiningMarks = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

// Normalizer is a compiled NormalizationConfig. It is safe for concurrent
// use; stateful x/text transformers are created per call.
type Normalizer struct {
	lower       bool
	form        norm.Form
	hasForm     bool
	punctuation *regexp.Regexp
	stripMarks  bool
	replacer    []config.ReplaceRule
}

// New compiles cfg. Errors are ConfigErrors whose field is relative to the
// normalization block, e.g. "removePunctuation".
func New(cfg config.NormalizationConfig) (*Normalizer, error) {
	n := &Normalizer{
		lower:      cfg.Lower,
		stripMarks: cfg.RemoveCombiningCharacters,
		replacer:   append([]config.ReplaceRule(nil), cfg.ReplaceRules...),
	}
	switch cfg.UnicodeNormalization {
	case "", "none":
	case "NFC":
		n.form, n.hasForm = norm.NFC, true
	case "NFD":
		n.form, n.hasForm = norm.NFD, true
	case "NFKC":
		n.form, n.hasForm = norm.NFKC, true
	case "NFKD":
		n.form, n.hasForm = norm.NFKD, true
	default:
		return nil, apperrors.Configf("unicodeNormalization", "unknown form %q", cfg.UnicodeNormalization)
	}
	if cfg.RemovePunctuation != "" {
		re, err := regexp.Compile(cfg.RemovePunctuation)
		if err != nil {
			return nil, apperrors.Configf("removePunctuation", "compiling %q: %v", cfg.RemovePunctuation, err)
		}
		n.punctuation = re
	}
	return n, nil
}

// Normalize applies the configured steps in order. It never fails; invalid
// UTF-8 is passed through the x/text transformers unchanged.
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	text := raw
	if n.lower {
		text = cases.Fold().String(text)
	}
	if n.hasForm {
		text = n.form.String(text)
	}
	if n.punctuation != nil {
		text = n.punctuation.ReplaceAllString(text, "")
	}
	if n.stripMarks {
		text = StripCombining(text)
	}
	for _, rule := range n.replacer {
		text = strings.ReplaceAll(text, rule.Find, rule.Replace)
	}
	return text
}

// StripCombining decomposes text and removes every code point in the
// Combining Diacritical Marks block. The result is left decomposed.
func StripCombining(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningMarks)))
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// Normalize compiles cfg and normalizes raw in one call.
func Normalize(raw string, cfg config.NormalizationConfig) (string, error) {
	n, err := New(cfg)
	if err != nil {
		return "", fmt.Errorf("compiling normalizer: %w", err)
	}
	return n.Normalize(raw), nil
}
