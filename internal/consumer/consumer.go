// Package consumer turns ingest requests published on Kafka into corpus
// ingests, so a corpus can be swapped without calling the HTTP API.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/logger"
)

// Ingester is the subset of ingest.Service the consumer drives.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (retriever.Stats, error)
}

// IngestConsumer wraps a Kafka consumer reading the corpus ingest topic.
type IngestConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IngestConsumer {
	return &IngestConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IngestConsumer) Start(ctx context.Context) error {
	ic.logger.Info("ingest consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that ingests each request.
// Undecodable messages are logged and skipped; a message key, when present,
// becomes the request id in the handler's log lines.
func HandleMessage(ing Ingester) kafka.MessageHandler {
	log := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		req, err := kafka.DecodeJSON[ingest.Request](value)
		if err != nil {
			log.Error("failed to decode ingest request", "error", err, "key", string(key))
			return nil
		}
		if len(key) > 0 {
			ctx = logger.WithRequestID(ctx, string(key))
		}
		stats, err := ing.Ingest(ctx, req)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", req.Source, err)
		}
		log.Info("ingest request processed",
			"source", req.Source,
			"documents", stats.Documents,
			"generation", stats.Generation,
		)
		return nil
	}
}
