package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// KafkaSink publishes events to a topic through an async producer.
// Delivery is fire-and-forget; producer errors and dropped events are logged.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
	done     chan struct{}
	drained  chan struct{}
}

// NewKafkaProducer dials brokers with settings suited to audit traffic.
func NewKafkaProducer(brokers []string) (sarama.AsyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Flush.Frequency = 100 * time.Millisecond
	cfg.Producer.Flush.Messages = 100
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// NewKafkaSink wraps producer and starts draining its error channel.
func NewKafkaSink(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger,
		done:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
	go s.handleErrors()
	return s
}

func (s *KafkaSink) handleErrors() {
	defer close(s.drained)
	for {
		select {
		case perr, ok := <-s.producer.Errors():
			if !ok {
				return
			}
			if perr != nil {
				s.logger.Error("audit publish failed", "error", perr.Err, "topic", perr.Msg.Topic)
			}
		case <-s.done:
			return
		}
	}
}

func (s *KafkaSink) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit encode failed", "error", err, "action", event.Action)
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.Action),
		Value: sarama.ByteEncoder(payload),
	}
	select {
	case <-s.done:
		return
	default:
	}
	// A full producer buffer drops the event so request paths never block.
	select {
	case s.producer.Input() <- msg:
	default:
		s.logger.WarnContext(ctx, "audit event dropped", "action", event.Action, "reason", "producer queue full")
	}
}

// Close stops the error loop and flushes pending messages.
func (s *KafkaSink) Close() error {
	close(s.done)
	<-s.drained
	if err := s.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
