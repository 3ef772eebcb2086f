package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_WrapsSentinel(t *testing.T) {
	err := Config("dictionary.l1.keysToIndex", "required")

	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.False(t, errors.Is(err, ErrUnsupportedStrategy))
	assert.Equal(t, "invalid configuration: dictionary.l1.keysToIndex: required", err.Error())
}

func TestUnsupported_WrapsStrategySentinel(t *testing.T) {
	err := Unsupported("dictionary.l2.weightedLevenshtein.substitutionCosts", "not supported by %s", "liblevenstein_automata")

	assert.True(t, errors.Is(err, ErrUnsupportedStrategy))
	assert.Contains(t, err.Error(), "liblevenstein_automata")
}

func TestFieldPath_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("building l1: %w", Configf("dictionary.l1.stemmer", "unknown stemmer %q", "porter"))

	field, ok := FieldPath(wrapped)
	require.True(t, ok)
	assert.Equal(t, "dictionary.l1.stemmer", field)

	_, ok = FieldPath(errors.New("plain"))
	assert.False(t, ok)
}

func TestEntryError(t *testing.T) {
	err := InvalidEntry("42", "duplicate id")

	assert.True(t, errors.Is(err, ErrInvalidEntry))
	assert.Equal(t, `invalid entry: entry "42": duplicate id`, err.Error())
}

func TestPrefix(t *testing.T) {
	err := Prefix("dictionary.l1.normalization", Config("removePunctuation", "bad class"))

	field, ok := FieldPath(err)
	require.True(t, ok)
	assert.Equal(t, "dictionary.l1.normalization.removePunctuation", field)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	plain := errors.New("boom")
	assert.Same(t, plain, Prefix("x", plain))
}
