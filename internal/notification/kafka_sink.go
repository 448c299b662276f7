package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/sunupay/subscription-service/internal/domain"
	"github.com/sunupay/subscription-service/pkg/logger"
)

const (
	TopicSubscriptionActivated = "subscription.activated"
	TopicSubscriptionFailed    = "subscription.payment_failed"
	TopicSubscriptionExpiring  = "subscription.expiring_soon"
	TopicSubscriptionExpired   = "subscription.expired"
	TopicSubscriptionCancelled = "subscription.cancelled"
)

// subscriptionEvent is the Kafka wire form of a notification
type subscriptionEvent struct {
	SubscriptionID string     `json:"subscription_id"`
	UserID         string     `json:"user_id"`
	Tier           string     `json:"tier"`
	Kind           string     `json:"kind"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// KafkaSink publishes lifecycle notifications to Kafka, one topic per
// notification kind, keyed by subscription id.
type KafkaSink struct {
	producer sarama.SyncProducer
	log      *logger.Logger
}

// NewKafkaSink creates a Kafka-backed sink
func NewKafkaSink(producer sarama.SyncProducer, log *logger.Logger) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		log:      log,
	}
}

// NewSyncProducer creates a sarama producer with delivery confirmation
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3

	return sarama.NewSyncProducer(brokers, config)
}

func topicFor(kind domain.NotificationKind) (string, error) {
	switch kind {
	case domain.NotificationActivated:
		return TopicSubscriptionActivated, nil
	case domain.NotificationFailed:
		return TopicSubscriptionFailed, nil
	case domain.NotificationExpiringSoon:
		return TopicSubscriptionExpiring, nil
	case domain.NotificationExpired:
		return TopicSubscriptionExpired, nil
	case domain.NotificationCancelled:
		return TopicSubscriptionCancelled, nil
	default:
		return "", fmt.Errorf("unknown notification kind: %s", kind)
	}
}

// Send publishes the notification to its topic
func (s *KafkaSink) Send(_ context.Context, n *domain.Notification) error {
	topic, err := topicFor(n.Kind)
	if err != nil {
		return err
	}

	event := subscriptionEvent{
		SubscriptionID: n.SubscriptionID.String(),
		UserID:         n.UserID,
		Tier:           string(n.Tier),
		Kind:           string(n.Kind),
		EndDate:        n.EndDate,
		Timestamp:      time.Now(),
	}
	if n.Contact != nil {
		event.Email = n.Contact.Email
		event.Phone = n.Contact.Phone
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(n.SubscriptionID.String()),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(topic),
			},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := s.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish subscription event: %w", err)
	}

	s.log.Info("Published subscription event to topic %s: partition=%d offset=%d",
		topic, partition, offset)

	return nil
}

// Close closes the underlying producer
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
