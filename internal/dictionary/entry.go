// Package dictionary defines the entry records supplied by the ingestion
// pipeline and the rules for pulling indexable text out of them.
package dictionary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/MotherTongues/mothertongues/pkg/errors"
)

// IDField is the record key holding the entry identifier in flat JSON
// records.
const IDField = "entryID"

// Entry is one dictionary item. Field values are strings, lists of strings
// or nested objects; Metadata is never indexed.
type Entry struct {
	ID       string         `json:"entryID"`
	Fields   map[string]any `json:"fields"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts the flat record shape produced by MTD parsers:
// {"entryID": 1, "word": "...", "definition": "..."}. Every key other than
// entryID becomes a field.
func (e *Entry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding entry: %w", err)
	}
	id, ok := raw[IDField]
	if !ok {
		return fmt.Errorf("decoding entry: missing %q", IDField)
	}
	e.ID = scalarString(id)
	delete(raw, IDField)
	e.Fields = raw
	return nil
}

// MarshalJSON writes the flat record shape.
func (e Entry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat[IDField] = e.ID
	return json.Marshal(flat)
}

// FieldValue is one indexable text value with the concrete key it was read
// from. List elements carry an index suffix: "example_sentence[2]".
type FieldValue struct {
	Key  string
	Text string
}

// Values extracts the text stored under key. key is a dotted path into
// nested objects ("meta.gloss"); a trailing "[n]" on a segment selects one
// list element. A list value yields one FieldValue per element. Missing
// keys and non-text values yield nothing.
func (e Entry) Values(key string) []FieldValue {
	var current any = e.Fields
	segments := strings.Split(key, ".")
	for _, seg := range segments {
		name, idx, hasIdx := splitIndex(seg)
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = obj[name]
		if !ok {
			return nil
		}
		if hasIdx {
			list := toList(current)
			if idx < 0 || idx >= len(list) {
				return nil
			}
			current = list[idx]
		}
	}

	switch v := current.(type) {
	case nil:
		return nil
	case []any, []string:
		list := toList(v)
		out := make([]FieldValue, 0, len(list))
		for i, item := range list {
			text, ok := textOf(item)
			if !ok {
				continue
			}
			out = append(out, FieldValue{Key: fmt.Sprintf("%s[%d]", key, i), Text: text})
		}
		return out
	default:
		text, ok := textOf(v)
		if !ok {
			return nil
		}
		return []FieldValue{{Key: key, Text: text}}
	}
}

func splitIndex(seg string) (string, int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	idx, err := strconv.Atoi(seg[open+1 : len(seg)-1])
	if err != nil {
		return seg, 0, false
	}
	return seg[:open], idx, true
}

func toList(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return nil
}

func textOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number, float64, int, int64, bool:
		return scalarString(t), true
	}
	return "", false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Validate checks that every entry has a non-empty, unique identifier.
func Validate(entries []Entry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.ID) == "" {
			return apperrors.InvalidEntry(strconv.Itoa(i), "identifier is empty")
		}
		if _, dup := seen[e.ID]; dup {
			return apperrors.InvalidEntry(e.ID, "identifier is not unique")
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

// Sorted returns a copy of entries ordered by identifier: numerically when
// every identifier is an integer, lexicographically otherwise.
func Sorted(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	numeric := true
	nums := make(map[string]int64, len(out))
	for _, e := range out {
		n, err := strconv.ParseInt(e.ID, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[e.ID] = n
	}
	sort.SliceStable(out, func(i, j int) bool {
		if numeric {
			return nums[out[i].ID] < nums[out[j].ID]
		}
		return out[i].ID < out[j].ID
	})
	return out
}
