package appkafka

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/socialgraph/internal/models"
	"github.com/segmentio/kafka-go"
)

// EventNotificationCreated is the message key of a freshly persisted notification.
const EventNotificationCreated = "notification_created"

type NotificationEvent struct {
	Type         string              `json:"type"`
	Notification models.Notification `json:"notification"`
}

// NotificationPublisher writes notification events keyed by recipient,
// so all events of one user land on the same partition in order.
type NotificationPublisher struct {
	writer KafkaWriter
}

func NewNotificationPublisher(w KafkaWriter) *NotificationPublisher {
	return &NotificationPublisher{writer: w}
}

func (p *NotificationPublisher) PublishNotification(ctx context.Context, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(NotificationEvent{Type: EventNotificationCreated, Notification: n})
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}
	return p.writer.WriteMessages(kafka.Message{
		Key:   []byte(n.RecipientID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventNotificationCreated)},
		},
	})
}

// DecodeNotificationEvent parses a message value written by PublishNotification.
func DecodeNotificationEvent(data []byte) (NotificationEvent, error) {
	var ev NotificationEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return NotificationEvent{}, err
	}
	if ev.Type != EventNotificationCreated {
		return NotificationEvent{}, fmt.Errorf("unexpected event type %q", ev.Type)
	}
	if ev.Notification.ID == "" || ev.Notification.RecipientID == "" {
		return NotificationEvent{}, fmt.Errorf("notification event without id or recipient")
	}
	return ev, nil
}
