package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	appkafka "example.com/socialgraph/internal/broker"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/middleware"
	"example.com/socialgraph/internal/realtime"
	"example.com/socialgraph/internal/social"
	"example.com/socialgraph/internal/store"
)

var logg = logger.New()

// PushTypeNotification tags realtime pushes carrying a new notification.
const PushTypeNotification = "notification"

// Push is the JSON frame sent to a connected recipient.
type Push struct {
	Type         string                  `json:"type"`
	Notification social.NotificationView `json:"notification"`
	UnreadCount  int                     `json:"unread_count"`
}

// Worker consumes notification events from Kafka and pushes them to online
// recipients through the hub.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	hub          *realtime.Hub
	renderer     *social.Renderer
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, hub *realtime.Hub, renderer *social.Renderer, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	if renderer == nil {
		renderer = social.NewRenderer("en")
	}
	return &Worker{
		store:        store,
		reader:       reader,
		hub:          hub,
		renderer:     renderer,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			// block until queued; only shutdown drops the message
			for queued := false; !queued; {
				select {
				case jobs <- msg.Value:
					queued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
				}
			}
		}
	}
}

// processLoop delivers decoded events until jobs is closed.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}
			if _, err := w.deliver(ctx, data); err != nil {
				logg.Error("worker", "Failed to deliver notification", err)
			}
		}
	}
}

// deliver decodes one event and pushes it to the recipient. It reports
// whether a connection received the push; an offline recipient is not an error.
func (w *Worker) deliver(ctx context.Context, data []byte) (bool, error) {
	ev, err := appkafka.DecodeNotificationEvent(data)
	if err != nil {
		return false, fmt.Errorf("invalid notification event: %w", err)
	}
	n := ev.Notification
	if !w.hub.IsOnline(n.RecipientID) {
		logg.Debug("worker", "Recipient offline, skipping push")
		return false, nil
	}

	name := ""
	sender, err := w.store.GetUser(ctx, n.SenderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("get sender: %w", err)
	default:
		name = sender.Username
	}

	unread, err := w.store.CountUnread(ctx, n.RecipientID)
	if err != nil {
		return false, fmt.Errorf("count unread: %w", err)
	}

	sent, err := w.hub.SendJSON(n.RecipientID, Push{
		Type: PushTypeNotification,
		Notification: social.NotificationView{
			ID:        n.ID,
			Kind:      n.Kind,
			Message:   w.renderer.Message(n.Kind, name),
			Sender:    social.UserRef{ID: n.SenderID, Username: name},
			PostID:    n.PostID,
			CommentID: n.CommentID,
			IsRead:    n.IsRead,
			CreatedAt: n.Created,
		},
		UnreadCount: unread,
	})
	if err != nil {
		return false, err
	}
	return sent, nil
}

// Routes exposes GET /ws. The token comes from the Authorization header,
// or from the token query parameter for browser clients.
func (w *Worker) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(rw http.ResponseWriter, r *http.Request) {
		tokenStr, err := middleware.BearerToken(r)
		if err != nil {
			tokenStr = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		userID, err := middleware.ParseToken(tokenStr)
		if err != nil {
			http.Error(rw, "invalid token", http.StatusUnauthorized)
			return
		}
		w.hub.ServeWS(rw, r, userID)
	})
	return mux
}

// ServeWS serves Routes on addr until ctx is cancelled.
func (w *Worker) ServeWS(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Info("worker", "Starting websocket server on "+addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("worker", "Websocket server stopped unexpectedly", err)
		}
	}()

	<-ctx.Done()
	w.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("worker", "Error during websocket server shutdown", err)
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader, live connections and Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	w.hub.Close()

	logg.Info("worker", "Closing Cassandra session")
	w.store.Close()
	return nil
}
