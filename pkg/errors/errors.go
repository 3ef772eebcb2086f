// Package errors defines the error taxonomy shared by the search core:
// sentinel values for each failure class and a ConfigError that carries the
// path of the offending configuration field.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrUnsupportedStrategy = errors.New("unsupported strategy combination")
	ErrIndexUnavailable    = errors.New("index unavailable")
	ErrUnknownSide         = errors.New("unknown language side")
	ErrInvalidEntry        = errors.New("invalid entry")
	ErrTimeout             = errors.New("operation timed out")
)

// ConfigError reports a configuration problem at a dotted field path such as
// "dictionary.l1.keysToIndex".
type ConfigError struct {
	Err     error
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Err.Error(), e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config returns a ConfigError wrapping ErrInvalidConfig.
func Config(field string, message string) *ConfigError {
	return &ConfigError{
		Err:     ErrInvalidConfig,
		Field:   field,
		Message: message,
	}
}

// Configf is Config with a formatted message.
func Configf(field string, format string, args ...any) *ConfigError {
	return Config(field, fmt.Sprintf(format, args...))
}

// Unsupported returns a ConfigError wrapping ErrUnsupportedStrategy.
func Unsupported(field string, format string, args ...any) *ConfigError {
	return &ConfigError{
		Err:     ErrUnsupportedStrategy,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// FieldPath returns the configuration field path carried by err, if any.
func FieldPath(err error) (string, bool) {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Field, true
	}
	return "", false
}

// EntryError describes an entry that cannot be indexed.
type EntryError struct {
	EntryID string
	Message string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: entry %q: %s", ErrInvalidEntry.Error(), e.EntryID, e.Message)
}

func (e *EntryError) Unwrap() error {
	return ErrInvalidEntry
}

func InvalidEntry(entryID string, format string, args ...any) *EntryError {
	return &EntryError{
		EntryID: entryID,
		Message: fmt.Sprintf(format, args...),
	}
}

// Prefix prepends prefix to the field path of a ConfigError. Other errors
// are returned unchanged.
func Prefix(prefix string, err error) error {
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		return err
	}
	field := prefix
	if cfgErr.Field != "" {
		field = prefix + "." + cfgErr.Field
	}
	return &ConfigError{
		Err:     cfgErr.Err,
		Field:   field,
		Message: cfgErr.Message,
	}
}
