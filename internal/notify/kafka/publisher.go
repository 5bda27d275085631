// Package kafka publishes notification events to a Kafka topic. Delivery is
// best-effort: the publisher is wrapped in a circuit breaker so a down broker
// degrades to dropped events instead of back-pressuring state transitions.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"

	"pact/internal/notify"
	"pact/pkg/platform/circuit"
)

// While the breaker is open, one in every probeInterval events is still sent
// so the breaker can observe broker recovery; the rest are dropped.
const probeInterval = 10

type Publisher struct {
	client  *kgo.Client
	topic   string
	breaker *circuit.Breaker
	logger  *slog.Logger
	dropped atomic.Uint64
}

// New connects to the given brokers and returns a Publisher for topic.
func New(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{
		client:  client,
		topic:   topic,
		breaker: circuit.New("kafka-notifications", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
	}, nil
}

// Publish produces the message keyed by contract ID so all events for one
// contract land in one partition, preserving their order for consumers.
func (p *Publisher) Publish(ctx context.Context, msg notify.Message) error {
	if p.breaker.IsOpen() {
		if n := p.dropped.Add(1); n%probeInterval != 0 {
			p.logger.DebugContext(ctx, "notification dropped, breaker open", "event", msg.Event)
			return nil
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.ContractID),
		Value: payload,
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "notification breaker opened", "error", err.Error())
		}
		return fmt.Errorf("produce notification: %w", err)
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "notification breaker closed")
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
