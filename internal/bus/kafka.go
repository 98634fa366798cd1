package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes confirmation events to a Kafka topic, keyed by
// action id so every event of one action lands on the same partition.
type KafkaSink struct {
	w       messageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaSink creates a sink for a comma separated broker list.
func NewKafkaSink(brokers, topic string) *KafkaSink {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:         kafka.TCP(addrs...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 50 * time.Millisecond,
		},
		topic:   topic,
		timeout: 10 * time.Second,
	}
}

// Handle is a bus Handler. Write failures are logged, never retried.
func (s *KafkaSink) Handle(ctx context.Context, evt *ConfirmationEvent) {
	value, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Kafka sink marshal failed", "action_id", evt.ActionID, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.w.WriteMessages(writeCtx, kafka.Message{
		Key:     []byte(evt.ActionID),
		Value:   value,
		Time:    evt.At,
		Headers: []kafka.Header{{Key: "status", Value: []byte(evt.Status)}},
	})
	if err != nil {
		slog.Warn("Kafka sink write failed", "topic", s.topic, "action_id", evt.ActionID, "error", err)
	}
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
