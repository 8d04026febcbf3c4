package notify

import (
	"context"
	"fmt"
	"time"

	"wallet-risk-monitor/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
)

// KafkaProducer is the subset of *kgo.Client the sink needs.
type KafkaProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaSink publishes alert events keyed by wallet id, so all alerts of one
// wallet land on the same partition in order.
type KafkaSink struct {
	producer KafkaProducer
	topic    string
	now      func() time.Time
}

// NewKafkaClient builds a producer client with Prometheus hooks on reg.
func NewKafkaClient(brokers []string, topic, namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) (*kgo.Client, error) {
	kafkaMetrics := kprom.NewMetrics(namespace,
		kprom.Registerer(reg),
		kprom.Gatherer(gatherer))
	kcl, err := kgo.NewClient(
		kgo.WithHooks(kafkaMetrics),
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.ZstdCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return kcl, nil
}

// NewKafkaSink creates a Kafka sink.
func NewKafkaSink(producer KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, now: time.Now}
}

func (s *KafkaSink) Name() string { return "kafka" }

// Send produces one record and waits for the broker ack.
func (s *KafkaSink) Send(ctx context.Context, alert *domain.Alert) error {
	body, err := encodeAlert(alert, s.now())
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(alert.WalletID.String()),
		Value: body,
	}

	done := make(chan error, 1)
	s.producer.Produce(ctx, record, func(_ *kgo.Record, err error) {
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("producing alert record: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
