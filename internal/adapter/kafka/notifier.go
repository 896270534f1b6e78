// Package kafka publishes run-completion notifications so downstream
// consumers (cache warmers, alerting) learn about new result sets without
// polling the object store.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/cat-loss-etl/internal/config"
	"github.com/couchcryptid/cat-loss-etl/internal/domain"
)

// Notifier produces one summary message per published run.
// It implements pipeline.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured sink topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// NotifyRunPublished serializes and publishes a run summary, keyed by run id
// so replays of the same run compact away.
func (n *Notifier) NotifyRunPublished(ctx context.Context, summary domain.RunSummary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a RunSummary into a Kafka message.
func serializeToMessage(summary domain.RunSummary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run summary: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(summary.Run),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run", Value: []byte(summary.Run)},
			{Key: "published_at", Value: []byte(summary.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
