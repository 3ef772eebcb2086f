package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

const baseYAML = `
logging:
  level: debug
  format: text
dictionary:
  l1Name: Danish
  l1:
    keysToIndex: [word]
    normalization:
      replaceRules:
        æ: ae
        ø: oe
  l2:
    keysToIndex: [definition, example_sentence]
    stemmer: snowball_english
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaultsAndFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), baseYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "Danish", cfg.Dictionary.L1Name)
	assert.Equal(t, "English", cfg.Dictionary.L2Name)
	assert.Equal(t, []string{"word"}, cfg.Dictionary.L1.KeysToIndex)
	assert.Equal(t, StrategyWeightedLevenshtein, cfg.Dictionary.L1.SearchStrategy)
	assert.True(t, cfg.Dictionary.L1.Normalization.Lower)
	assert.Equal(t, DefaultPunctuation, cfg.Dictionary.L1.Normalization.RemovePunctuation)
	assert.Equal(t, 1.5, cfg.Dictionary.L2.BM25.K1)
	assert.Equal(t, ReplaceRules{{Find: "æ", Replace: "ae"}, {Find: "ø", Replace: "oe"}},
		cfg.Dictionary.L1.Normalization.ReplaceRules)
}

func TestLoad_ReplaceRulesSequence(t *testing.T) {
	body := strings.Replace(baseYAML, "        æ: ae\n        ø: oe\n",
		"        - {find: \"aa\", replace: \"å\"}\n        - {find: \"a\", replace: \"b\"}\n", 1)
	cfg, err := Load(writeConfig(t, t.TempDir(), body))
	require.NoError(t, err)

	assert.Equal(t, ReplaceRules{{Find: "aa", Replace: "å"}, {Find: "a", Replace: "b"}},
		cfg.Dictionary.L1.Normalization.ReplaceRules)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MTD_LOGGING_LEVEL", "warn")
	t.Setenv("MTD_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(writeConfig(t, t.TempDir(), baseYAML))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_SubstitutionCostsFileRelativeToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "costs.csv"),
		[]byte("# src,dst,cost\na,b,0.01\na,e,0.02\nc,d,1.0\n"), 0o644))
	body := baseYAML + `
    weightedLevenshtein:
      substitutionCostsPath: costs.csv
      substitutionCosts:
        c:
          d: 0.3
`
	cfg, err := Load(writeConfig(t, dir, body))
	require.NoError(t, err)

	costs := cfg.Dictionary.L2.WeightedLevenshtein.SubstitutionCosts
	assert.Equal(t, 0.01, costs["a"]["b"])
	assert.Equal(t, 0.02, costs["a"]["e"])
	assert.Equal(t, 0.3, costs["c"]["d"])
	assert.Equal(t, filepath.Join(dir, "costs.csv"), cfg.Dictionary.L2.WeightedLevenshtein.SubstitutionCostsPath)
}

func TestLoad_SubstitutionCostsFileMissing(t *testing.T) {
	body := baseYAML + `
    weightedLevenshtein:
      substitutionCostsPath: missing.csv
`
	_, err := Load(writeConfig(t, t.TempDir(), body))
	require.Error(t, err)
	field, ok := apperrors.FieldPath(err)
	require.True(t, ok)
	assert.Equal(t, "dictionary.l2.weightedLevenshtein.substitutionCostsPath", field)
}

func TestReadSubstitutionCosts_BadCost(t *testing.T) {
	_, err := ReadSubstitutionCosts(strings.NewReader("a,b,cheap\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing cost")
}

func validSide() SideConfig {
	s := defaultSide(StemmerNone)
	s.KeysToIndex = []string{"word"}
	return s
}

func TestSideConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*SideConfig)
		wantField string
		wantErr   error
	}{
		{
			name:      "absent keys are required",
			mutate:    func(s *SideConfig) { s.KeysToIndex = nil },
			wantField: "dictionary.l1.keysToIndex",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name:   "explicitly empty keys are accepted",
			mutate: func(s *SideConfig) { s.KeysToIndex = []string{} },
		},
		{
			name:      "blank key",
			mutate:    func(s *SideConfig) { s.KeysToIndex = []string{"word", " "} },
			wantField: "dictionary.l1.keysToIndex[1]",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name:      "unknown strategy",
			mutate:    func(s *SideConfig) { s.SearchStrategy = "soundex" },
			wantField: "dictionary.l1.searchStrategy",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name: "automaton rejects substitution costs",
			mutate: func(s *SideConfig) {
				s.SearchStrategy = StrategyLevenshteinAutomata
				s.WeightedLevenshtein.SubstitutionCosts = map[string]map[string]float64{"c": {"k": 0.5}}
			},
			wantField: "dictionary.l1.weightedLevenshtein.substitutionCosts",
			wantErr:   apperrors.ErrUnsupportedStrategy,
		},
		{
			name: "automaton rejects weighted edit costs",
			mutate: func(s *SideConfig) {
				s.SearchStrategy = StrategyLevenshteinAutomata
				s.WeightedLevenshtein.DeletionAtEndCost = 0.1
			},
			wantField: "dictionary.l1.weightedLevenshtein",
			wantErr:   apperrors.ErrUnsupportedStrategy,
		},
		{
			name: "automaton rejects fractional distance",
			mutate: func(s *SideConfig) {
				s.SearchStrategy = StrategyLevenshteinAutomata
				s.MaxDistance = 1.5
			},
			wantField: "dictionary.l1.maxDistance",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name: "automaton rejects distance above two",
			mutate: func(s *SideConfig) {
				s.SearchStrategy = StrategyLevenshteinAutomata
				s.MaxDistance = 3
			},
			wantField: "dictionary.l1.maxDistance",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name: "automaton with uniform costs",
			mutate: func(s *SideConfig) {
				s.SearchStrategy = StrategyLevenshteinAutomata
				s.MaxDistance = 1
			},
		},
		{
			name:      "negative cost",
			mutate:    func(s *SideConfig) { s.WeightedLevenshtein.InsertionCost = -1 },
			wantField: "dictionary.l1.weightedLevenshtein.insertionCost",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name: "multi-character substitution key",
			mutate: func(s *SideConfig) {
				s.WeightedLevenshtein.SubstitutionCosts = map[string]map[string]float64{"ch": {"k": 0.5}}
			},
			wantField: "dictionary.l1.weightedLevenshtein.substitutionCosts.ch",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name:      "bm25 b out of range",
			mutate:    func(s *SideConfig) { s.BM25.B = 1.2 },
			wantField: "dictionary.l1.bm25.b",
			wantErr:   apperrors.ErrInvalidConfig,
		},
		{
			name:      "unknown unicode form",
			mutate:    func(s *SideConfig) { s.Normalization.UnicodeNormalization = "NFX" },
			wantField: "dictionary.l1.normalization.unicodeNormalization",
			wantErr:   apperrors.ErrInvalidConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side := validSide()
			tt.mutate(&side)

			err := side.Validate("dictionary.l1")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			field, ok := apperrors.FieldPath(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantField, field)
		})
	}
}

func TestValidate_DefaultRequiresKeys(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	field, _ := apperrors.FieldPath(err)
	assert.Equal(t, "dictionary.l1.keysToIndex", field)
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide(" L2 ")
	require.NoError(t, err)
	assert.Equal(t, SideL2, side)

	_, err = ParseSide("l3")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownSide))
}
