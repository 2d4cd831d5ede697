package telemetry

import (
	"context"
	"encoding/json"

	"github.com/karsell/intake/internal/logging"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes intake events to a Kafka topic. Delivery is fire and
// forget; a broker outage only costs telemetry, never a draft save.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	log    logging.Logger
}

// NewKafkaSink connects a producer to the given brokers.
func NewKafkaSink(brokers []string, topic string, log logging.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client, topic: topic, log: log}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, e Event) {
	value, err := json.Marshal(e)
	if err != nil {
		s.log.Warn(ctx, "telemetry event marshal failed", "type", e.Type, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(e.SessionID),
		Value: value,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.log.Warn(context.Background(), "telemetry publish failed", "type", e.Type, "error", err)
		}
	})
}

func (s *KafkaSink) Close() {
	s.client.Close()
}

// LogSink writes events to the service log. Used when Kafka is not
// configured so downstream behavior stays observable in development.
type LogSink struct {
	Log logging.Logger
}

func (s LogSink) Publish(ctx context.Context, e Event) {
	s.Log.Info(ctx, "intake event", "type", e.Type, "session", e.SessionID, "draft", e.DraftID)
}
