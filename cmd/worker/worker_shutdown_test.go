package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
	"github.com/segmentio/kafka-go"
)

// TestWorker_GracefulShutdown ensures that the worker:
// 1. Processes notification events from Kafka.
// 2. Pushes them to the connected recipient.
// 3. Shuts down gracefully when the context is canceled.
func TestWorker_GracefulShutdown(t *testing.T) {
	mockStore := store.NewMock()
	ctx := context.Background()
	senderID, _ := mockStore.CreateUser(ctx, "author")
	recipientID, _ := mockStore.CreateUser(ctx, "follower")

	n := models.Notification{
		ID:          "n-100",
		RecipientID: recipientID,
		SenderID:    senderID,
		Kind:        models.KindFollow,
		Created:     time.Now().UTC(),
	}
	_ = mockStore.CreateNotification(ctx, n)

	mockKafka := &MockKafkaReader{}
	worker, ts := newTestWorker(t, mockStore, mockKafka)
	conn := connect(t, worker, ts, recipientID)

	// queue the event only once the recipient is online
	mockKafka.Push(kafka.Message{Key: []byte(recipientID), Value: encodeEvent(t, n)})

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(runCtx) // Worker processes messages until ctx.Done()
		close(done)
	}()

	p := readPush(t, conn)
	if p.Notification.ID != n.ID || p.Notification.Message != "author started following you." {
		t.Fatalf("unexpected push: %+v", p)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not shutdown gracefully in time")
	}

	if err := worker.Close(); err != nil {
		t.Fatalf("worker Close() error: %v", err)
	}
	if !mockKafka.IsClosed() {
		t.Fatal("expected Kafka reader to be closed")
	}
	if worker.hub.OnlineCount() != 0 {
		t.Fatal("expected connections dropped on close")
	}
}

// MockKafkaReader simulates a Kafka reader for testing purposes
type MockKafkaReader struct {
	mu       sync.Mutex
	messages []kafka.Message // Queue of messages to return
	closed   bool
}

func (m *MockKafkaReader) Push(msgs ...kafka.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
}

// ReadMessage returns the next message in the queue or an empty one when idle
func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		time.Sleep(5 * time.Millisecond) // simulate idle wait
		return kafka.Message{}, nil
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, nil
}

// Close marks the mock Kafka reader as closed
func (m *MockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockKafkaReader) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
