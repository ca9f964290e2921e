package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// ParseBrokers splits a comma-separated broker list
func ParseBrokers(brokers string) []string {
	list := strings.Split(brokers, ",")
	out := make([]string, 0, len(list))
	for _, broker := range list {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}
	return out
}

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON events to a single topic
type Producer struct {
	writer       MessageWriter
	logger       ectologger.Logger
	topic        string
	writeTimeout time.Duration
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewProducerWithWriter(writer, cfg.Topic, cfg.WriteTimeout, logger)
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(writer MessageWriter, topic string, writeTimeout time.Duration, logger ectologger.Logger) *Producer {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Producer{
		writer:       writer,
		logger:       logger,
		topic:        topic,
		writeTimeout: writeTimeout,
	}
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish marshals value and writes it keyed by key. Messages with the same key keep their order.
func (p *Producer) Publish(ctx context.Context, key string, value any) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.destination", p.topic))

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal kafka message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	headers := []kafka.Header{}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		headers = append(headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
	}

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
		Time:    time.Now().UTC(),
	})
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RecordKafkaPublish(p.topic, "error")
		return fmt.Errorf("failed to publish to %s: %w", p.topic, err)
	}

	metrics.RecordKafkaPublish(p.topic, "ok")
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": p.topic,
		"key":   key,
	}).Debug("Published kafka message")
	return nil
}
