// Package kafka announces completed refreshes to downstream consumers so
// they can re-read the canonical table without polling it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/cryodata/glacier-attrs-etl/internal/config"
	"github.com/cryodata/glacier-attrs-etl/internal/refresh"
)

// Notifier produces refresh-completion events to a Kafka topic.
// It implements refresh.Notifier.
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

// refreshEvent is the wire form of a completed refresh.
type refreshEvent struct {
	RunID      string    `json:"run_id"`
	Rows       int       `json:"rows"`
	BuiltAt    time.Time `json:"built_at"`
	DurationMS int64     `json:"duration_ms"`
}

// RefreshCompleted publishes one event for the given refresh result.
func (n *Notifier) RefreshCompleted(ctx context.Context, res refresh.Result) error {
	msg, err := serializeToMessage(res)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, msg)
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a refresh result into a Kafka message keyed by
// run ID.
func serializeToMessage(res refresh.Result) (kafkago.Message, error) {
	event := refreshEvent{
		RunID:      res.RunID.String(),
		Rows:       res.Rows,
		BuiltAt:    res.BuiltAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize refresh event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "rows", Value: []byte(strconv.Itoa(res.Rows))},
			{Key: "built_at", Value: []byte(res.BuiltAt.Format(time.RFC3339))},
		},
	}, nil
}
