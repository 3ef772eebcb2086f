package searcher

import (
	"time"

	"github.com/MotherTongues/mothertongues/internal/index"
	"github.com/MotherTongues/mothertongues/internal/matcher"
	"github.com/MotherTongues/mothertongues/internal/tokenizer"
	"github.com/MotherTongues/mothertongues/pkg/config"
)

// Snapshot is everything a query on one side needs. It is never modified
// after publication, so queries read it without locks.
type Snapshot struct {
	Side       config.Side
	Generation uint64
	BuiltAt    time.Time
	Profile    config.SideConfig
	Index      *index.Index
	Matcher    matcher.Matcher
	Analyzer   *tokenizer.Analyzer
}

// Handle identifies a published snapshot.
type Handle struct {
	Side       config.Side   `json:"side"`
	Generation uint64        `json:"generation"`
	BuiltAt    time.Time     `json:"built_at"`
	Strategy   string        `json:"strategy"`
	Stats      index.Stats   `json:"stats"`
	Duration   time.Duration `json:"duration"`
}

func (s *Snapshot) handle(took time.Duration) Handle {
	return Handle{
		Side:       s.Side,
		Generation: s.Generation,
		BuiltAt:    s.BuiltAt,
		Strategy:   s.Matcher.Strategy(),
		Stats:      s.Index.Stats(),
		Duration:   took,
	}
}
