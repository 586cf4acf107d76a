package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/twmb/franz-go/pkg/kgo"
)

const DefaultTopic = "nameregistry.events"

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces events keyed by name so each name's history stays
// ordered within one partition.
type KafkaPublisher struct {
	client producer
	topic  string
}

// NewKafkaPublisher dials the seed brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no seed brokers configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

func newKafkaPublisherWithProducer(p producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: p, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %d: %w", ev.Seq, err)
		}
		key := ev.Name
		if key == "" {
			key = string(ev.Type)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(key),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "event-type", Value: []byte(ev.Type)},
				{Key: "event-id", Value: []byte(ev.ID)},
			},
		})
	}
	return p.client.ProduceSync(ctx, records...).FirstErr()
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

var _ ports.EventPublisher = (*KafkaPublisher)(nil)
