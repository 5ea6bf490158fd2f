package appkafka

import (
	"context"
	"testing"
	"time"

	"example.com/socialgraph/internal/models"
)

func TestPublishNotification_RoundTrip(t *testing.T) {
	mk := &MockKafka{Loopback: true}
	pub := NewNotificationPublisher(mk)
	n := models.Notification{
		ID:          "n1",
		RecipientID: "b",
		SenderID:    "a",
		Kind:        models.KindLike,
		PostID:      "p1",
		Created:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := pub.PublishNotification(context.Background(), n); err != nil {
		t.Fatalf("publish: %v", err)
	}

	written := mk.Written()
	if len(written) != 1 || string(written[0].Key) != "b" {
		t.Fatalf("expected one message keyed by recipient, got %+v", written)
	}

	msg, err := mk.ReadMessage(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := DecodeNotificationEvent(msg.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Notification.ID != "n1" || ev.Notification.Kind != models.KindLike || !ev.Notification.Created.Equal(n.Created) {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestPublishNotification_WriterFailure(t *testing.T) {
	pub := NewNotificationPublisher(&MockKafkaFail{})
	if err := pub.PublishNotification(context.Background(), models.Notification{ID: "n", RecipientID: "b"}); err == nil {
		t.Fatal("expected error from failing writer")
	}
}

func TestPublishNotification_CanceledContext(t *testing.T) {
	mk := &MockKafka{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewNotificationPublisher(mk).PublishNotification(ctx, models.Notification{ID: "n", RecipientID: "b"}); err == nil {
		t.Fatal("expected context error")
	}
	if len(mk.Written()) != 0 {
		t.Fatal("nothing should be written after cancellation")
	}
}

func TestDecodeNotificationEvent_Rejects(t *testing.T) {
	cases := map[string]string{
		"invalid json": "{invalid-json}",
		"wrong type":   `{"type":"post_created","notification":{"id":"n","recipient_id":"b"}}`,
		"missing ids":  `{"type":"notification_created","notification":{}}`,
	}
	for name, raw := range cases {
		if _, err := DecodeNotificationEvent([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
