package analytics

import "time"

type EventType string

const (
	EventQuery       EventType = "query"
	EventQueryFailed EventType = "query_failed"
	EventIngest      EventType = "ingest"
	EventIngestFail  EventType = "ingest_failed"
)

type QueryEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	TopK       int       `json:"top_k"`
	Returned   int       `json:"returned"`
	TopScore   float64   `json:"top_score"`
	Generation uint64    `json:"generation"`
	CacheHit   bool      `json:"cache_hit"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

type IngestEvent struct {
	Type       EventType `json:"type"`
	Source     string    `json:"source"`
	ChunkType  string    `json:"chunk_type"`
	Documents  int       `json:"documents"`
	Generation uint64    `json:"generation"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
