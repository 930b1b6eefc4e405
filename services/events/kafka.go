package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/sahilchouksey/course-marketplace/config"
)

// KafkaPublisher writes events to a topic keyed by order id, so every event
// for one purchase lands on the same partition in order.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	log      *slog.Logger
	wg       sync.WaitGroup
}

func NewKafkaPublisher(cfg config.Kafka, log *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("parse kafka version: %w", err)
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, newSaramaConfig(version))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return newKafkaPublisher(producer, cfg.Topic, log), nil
}

func newKafkaPublisher(producer sarama.AsyncProducer, topic string, log *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log,
	}

	p.wg.Add(2)
	go p.drainSuccesses()
	go p.drainErrors()

	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.OrderID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("Event-Type"), Value: []byte(evt.Type)},
			{Key: []byte("Purchase-Id"), Value: []byte(strconv.FormatUint(uint64(evt.PurchaseID), 10))},
		},
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		p.log.Warn("context cancelled before publishing event",
			slog.String("type", string(evt.Type)),
			slog.String("order_id", evt.OrderID),
			slog.Any("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

// Close flushes buffered messages and waits for the drain goroutines
func (p *KafkaPublisher) Close() error {
	p.log.Info("closing kafka producer")
	err := p.producer.Close()
	p.wg.Wait()
	if err != nil {
		p.log.Error("failed to close kafka producer", slog.Any("error", err))
	}
	return err
}

func (p *KafkaPublisher) drainSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.log.Debug("event published",
			slog.String("topic", msg.Topic),
			slog.Int("partition", int(msg.Partition)),
			slog.Int64("offset", msg.Offset),
		)
	}
}

func (p *KafkaPublisher) drainErrors() {
	defer p.wg.Done()
	for perr := range p.producer.Errors() {
		p.log.Error("failed to publish event", slog.Any("error", perr.Err))
	}
}

func newSaramaConfig(ver sarama.KafkaVersion) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = ver
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Compression = sarama.CompressionSnappy
	return cfg
}
