package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appkafka "example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/store"
)

// TestServer_GracefulShutdown verifies that Run returns once its context is
// cancelled and that the mock store and Kafka can be closed afterwards.
func TestServer_GracefulShutdown(t *testing.T) {
	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{}
	s := New(mockStore, mockStore, appkafka.NewNotificationPublisher(mockKafka), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, s, "127.0.0.1:0", "", "")
		close(done)
	}()

	// give the listener a moment before the shutdown signal
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
		mockStore.Close()
		if err := mockKafka.Close(); err != nil {
			t.Fatalf("Kafka close error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shutdown gracefully within the expected time")
	}
}

// TestServer_RejectsAfterClose checks that the routes answer until the
// listener is closed and not after.
func TestServer_RejectsAfterClose(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	mockStore := store.NewMock()
	s := New(mockStore, mockStore, nil, Options{})

	server := httptest.NewUnstartedServer(s.Routes())
	server.Start()

	resp, err := http.Post(server.URL+"/users", "application/json", bytesReader(`{"username":"almaz"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	server.Close()
	if _, err := http.Post(server.URL+"/users", "application/json", bytesReader(`{"username":"nur"}`)); err == nil {
		t.Fatal("expected requests to fail after close")
	}
}

// bytesReader creates an io.Reader from a string, used for HTTP request bodies.
func bytesReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
