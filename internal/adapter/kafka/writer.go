// Package kafka publishes newly indexed documents to the observation feed.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/Hkarnen/comp90024-assignment-2/internal/domain"
)

const (
	maxPublishAttempts = 3
	initialBackoff     = 200 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// WriterConfig selects the feed cluster and topic.
type WriterConfig struct {
	Brokers []string
	Topic   string
}

// Writer produces feed messages to a Kafka topic.
// It implements harvest.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured feed topic.
func NewWriter(cfg WriterConfig, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes docs and writes them in a single WriteMessages call,
// retrying transient broker errors with exponential backoff.
func (w *Writer) Publish(ctx context.Context, source domain.Source, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	harvestedAt := domain.Now()
	msgs := make([]kafkago.Message, len(docs))
	for i, doc := range docs {
		msg, err := serializeToMessage(source, doc, harvestedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxPublishAttempts; attempt++ {
		if err = w.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if attempt == maxPublishAttempts {
			break
		}
		w.logger.Warn("feed publish failed, retrying", "error", err, "source", source, "attempt", attempt, "batch_size", len(msgs))
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
	return fmt.Errorf("publish %d %s documents: %w", len(msgs), source, err)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a document into a Kafka message keyed by its
// identity key, so a re-published document lands on the same partition.
func serializeToMessage(source domain.Source, doc domain.Document, harvestedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s document %s: %w", source, doc.IdentityKey(), err)
	}
	return kafkago.Message{
		Key:   []byte(doc.IdentityKey()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(source)},
			{Key: "harvested_at", Value: []byte(harvestedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
