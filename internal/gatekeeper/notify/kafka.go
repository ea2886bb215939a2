package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/segmentio/kafka-go"
)

// EventApprovalRequested is the event type header value.
const EventApprovalRequested = "login.approval_requested"

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each notice as a JSON event keyed by user id so every
// request for one user lands on the same partition.
type Kafka struct {
	Writer MessageWriter
	Topic  string
}

// NewKafka returns a notifier writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			MaxAttempts:  3,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		Topic: topic,
	}
}

func (k *Kafka) NotifyApprovers(ctx context.Context, n domain.ApprovalNotice) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode approval event: %w", err)
	}

	msg := kafka.Message{
		Topic: k.Topic,
		Key:   []byte(n.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventApprovalRequested)},
			{Key: "request_id", Value: []byte(n.RequestID)},
		},
		Time: n.CreatedAt,
	}

	if err := k.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.Writer.Close()
}
