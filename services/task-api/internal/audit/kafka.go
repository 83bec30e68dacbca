package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the subset of *kafka.Writer the emitter needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultPublishTimeout bounds how long a create or delete response can wait
// on the broker.
const DefaultPublishTimeout = 2 * time.Second

// KafkaConfig configures the Kafka emitter.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	// PublishTimeout caps one Emit call, retries included.
	PublishTimeout time.Duration
}

// KafkaEmitter publishes events to a Kafka topic, keyed by task id so every
// event for one task lands on the same partition.
type KafkaEmitter struct {
	mu      sync.RWMutex
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaEmitter creates a synchronous Kafka writer for cfg.
func NewKafkaEmitter(cfg KafkaConfig, logger *zap.Logger) (*KafkaEmitter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("audit: kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("audit: kafka topic required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	if cfg.ClientID != "" {
		writer.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	emitter := newKafkaEmitter(writer, cfg.Topic, logger)
	if cfg.PublishTimeout > 0 {
		emitter.timeout = cfg.PublishTimeout
	}
	return emitter, nil
}

func newKafkaEmitter(w messageWriter, topic string, logger *zap.Logger) *KafkaEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaEmitter{
		writer:  w,
		topic:   topic,
		timeout: DefaultPublishTimeout,
		logger:  logger.With(zap.String("component", "audit-kafka")),
	}
}

// Emit writes event as a JSON message and gives up after the publish timeout.
func (e *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.writer == nil {
		return fmt.Errorf("audit: kafka writer is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: serialize event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TaskID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "action", Value: []byte(event.Action)},
			{Key: "request_id", Value: []byte(event.RequestID)},
		},
		Time: event.CreatedAt,
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("audit: publish to %s: %w", e.topic, err)
	}

	e.logger.Debug("audit event published",
		zap.String("event_id", event.EventID.String()),
		zap.String("topic", e.topic))
	return nil
}

// Close flushes and closes the writer. Safe to call multiple times.
func (e *KafkaEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return nil
	}
	err := e.writer.Close()
	e.writer = nil
	return err
}

// NewEmitter picks the Kafka emitter when brokers are configured and the
// logger emitter otherwise.
func NewEmitter(cfg KafkaConfig, logger *zap.Logger) (Emitter, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("kafka not configured, using logger emitter for audit events")
		return NewLoggerEmitter(logger), nil
	}
	emitter, err := NewKafkaEmitter(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using kafka emitter for audit events", zap.String("topic", cfg.Topic))
	return emitter, nil
}
