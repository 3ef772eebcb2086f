package index

// Location is one occurrence of a term, used for highlighting. Field is the
// concrete key the text came from, e.g. "example_sentence[0]".
type Location struct {
	Field    string `json:"field"`
	Position int    `json:"position"`
}

// Posting links a term to one entry. Ordinal is the entry's position in
// identifier order. FieldFreqs holds the term frequency per
// concrete field; Scores holds the BM25 score per configured key and Score
// their sum.
type Posting struct {
	EntryID    string             `json:"entry_id"`
	Ordinal    uint32             `json:"ordinal"`
	Frequency  int                `json:"frequency"`
	FieldFreqs map[string]int     `json:"field_freqs"`
	Locations  []Location         `json:"locations"`
	Scores     map[string]float64 `json:"scores"`
	Score      float64            `json:"score"`
}

type PostingList []Posting

// Stats summarises a built index.
type Stats struct {
	Entries  int `json:"entries"`
	Terms    int `json:"terms"`
	Postings int `json:"postings"`
}
