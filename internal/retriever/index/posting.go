package index

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     int `json:"doc_id"`
	Frequency int `json:"frequency"`
}

// PostingList is ordered by ascending DocID. Its length is the term's
// document frequency.
type PostingList []Posting

// Input is one chunk handed to Build: its text and caller-supplied metadata.
type Input struct {
	Text     string
	Metadata map[string]any
}

// Document is an ingested chunk. ID is its position in ingestion order.
type Document struct {
	ID       int
	Terms    []string
	Length   int
	Text     string
	Metadata map[string]any
}
