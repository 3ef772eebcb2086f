package reload

import (
	"time"

	"github.com/MotherTongues/mothertongues/internal/searcher"
)

// DictionaryUpdated asks for a rebuild. An empty Sides list means every
// side.
type DictionaryUpdated struct {
	Sides  []string `json:"sides,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// IndexBuilt reports the outcome of one side's rebuild. Error is set and
// Handle zero when the previous index was kept.
type IndexBuilt struct {
	Side       string          `json:"side"`
	Generation uint64          `json:"generation,omitempty"`
	Handle     searcher.Handle `json:"handle"`
	Error      string          `json:"error,omitempty"`
	At         time.Time       `json:"at"`
}
