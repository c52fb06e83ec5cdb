// Package store keeps an audit log of corpus ingests in PostgreSQL. The
// index itself is never persisted; only who loaded what, when, and with
// which outcome.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/postgres"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS corpus_ingests (
	id             BIGSERIAL PRIMARY KEY,
	source         TEXT             NOT NULL,
	chunk_type     TEXT             NOT NULL,
	status         TEXT             NOT NULL,
	documents      INTEGER          NOT NULL DEFAULT 0,
	vocabulary     INTEGER          NOT NULL DEFAULT 0,
	avg_doc_length DOUBLE PRECISION NOT NULL DEFAULT 0,
	generation     BIGINT           NOT NULL DEFAULT 0,
	duration_ms    BIGINT           NOT NULL DEFAULT 0,
	error          TEXT             NOT NULL DEFAULT '',
	ingested_at    TIMESTAMPTZ      NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_corpus_ingests_ingested_at ON corpus_ingests (ingested_at DESC);
`

// IngestRecord is one row of the ingest log.
type IngestRecord struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	ChunkType    string    `json:"chunk_type"`
	Status       string    `json:"status"`
	Documents    int       `json:"documents"`
	Vocabulary   int       `json:"vocabulary"`
	AvgDocLength float64   `json:"avg_doc_length"`
	Generation   uint64    `json:"generation"`
	DurationMs   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`
}

type IngestLog struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewIngestLog(db *postgres.Client) *IngestLog {
	return &IngestLog{
		db:     db,
		logger: slog.Default().With("component", "ingest-log"),
	}
}

// EnsureSchema creates the ingest table if it does not exist.
func (l *IngestLog) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ingest log schema: %w", err)
	}
	return nil
}

// Record inserts rec and returns it with ID and IngestedAt filled in.
func (l *IngestLog) Record(ctx context.Context, rec IngestRecord) (IngestRecord, error) {
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}
	err := l.db.DB.QueryRowContext(ctx,
		`INSERT INTO corpus_ingests
		 (source, chunk_type, status, documents, vocabulary, avg_doc_length, generation, duration_ms, error, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		rec.Source, rec.ChunkType, rec.Status, rec.Documents, rec.Vocabulary,
		rec.AvgDocLength, int64(rec.Generation), rec.DurationMs, rec.Error, rec.IngestedAt,
	).Scan(&rec.ID)
	if err != nil {
		return IngestRecord{}, fmt.Errorf("recording ingest of %s: %w", rec.Source, err)
	}
	l.logger.Debug("ingest recorded", "id", rec.ID, "source", rec.Source, "status", rec.Status)
	return rec, nil
}

// Recent returns up to limit records, newest first.
func (l *IngestLog) Recent(ctx context.Context, limit int) ([]IngestRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT id, source, chunk_type, status, documents, vocabulary, avg_doc_length,
		        generation, duration_ms, error, ingested_at
		 FROM corpus_ingests
		 ORDER BY ingested_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing ingests: %w", err)
	}
	defer rows.Close()

	records := make([]IngestRecord, 0, limit)
	for rows.Next() {
		var rec IngestRecord
		var generation int64
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.ChunkType, &rec.Status, &rec.Documents,
			&rec.Vocabulary, &rec.AvgDocLength, &generation, &rec.DurationMs, &rec.Error, &rec.IngestedAt); err != nil {
			return nil, fmt.Errorf("scanning ingest row: %w", err)
		}
		rec.Generation = uint64(generation)
		records = append(records, rec)
	}
	return records, rows.Err()
}
