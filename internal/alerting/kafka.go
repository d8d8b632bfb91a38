package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON keyed by currency.
type KafkaNotifier struct {
	writer MessageWriter
	logger zerolog.Logger
}

// NewKafkaNotifier builds a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string, timeout time.Duration, logger zerolog.Logger) *KafkaNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: timeout,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaNotifierWithWriter(w, logger)
}

// NewKafkaNotifierWithWriter wraps an existing writer.
func NewKafkaNotifierWithWriter(w MessageWriter, logger zerolog.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, logger: logger.With().Str("component", "alert_kafka").Logger()}
}

func (k *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal kafka event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Currency),
		Value: value,
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish kafka event: %w", err)
	}
	k.logger.Debug().Str("currency", ev.Currency.String()).Msg("event published")
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error { return k.writer.Close() }

var _ Notifier = (*KafkaNotifier)(nil)
